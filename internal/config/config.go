// Package config loads the taskboard config.toml and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	FileName = "config.toml"

	DefaultDataDir  = ".taskboard"
	DefaultPort     = 3000
	DefaultCacheTTL = 30 * time.Second
	DefaultAPIURL   = "http://localhost:3000"
)

// Config represents the config.toml file.
type Config struct {
	Server Server `toml:"server"`
	Board  Board  `toml:"board"`

	// Debug is set from the DEBUG environment variable only.
	Debug bool `toml:"-"`
}

// Server configures the HTTP API.
type Server struct {
	Port int `toml:"port"`
	// RedisURL enables the read cache when set, e.g. redis://localhost:6379/0.
	RedisURL string   `toml:"redis_url"`
	CacheTTL Duration `toml:"cache_ttl"`
}

// Board configures the terminal board.
type Board struct {
	APIURL string `toml:"api_url"`
	// RefreshInterval reloads the board periodically; zero disables it.
	RefreshInterval Duration `toml:"refresh_interval"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration must not be negative: %s", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:     DefaultPort,
			CacheTTL: Duration{DefaultCacheTTL},
		},
		Board: Board{
			APIURL: DefaultAPIURL,
		},
	}
}

// Path returns the config file location inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Load reads dataDir/config.toml over the defaults and then applies the
// process environment. A missing file is not an error.
func Load(dataDir string) (*Config, error) {
	return LoadWithEnv(dataDir, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(dataDir string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	fileCfg, meta, err := loadConfigFile(Path(dataDir))
	if err != nil {
		return nil, err
	}
	merge(cfg, fileCfg, meta)

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(path string) (*Config, toml.MetaData, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, toml.MetaData{}, nil
	}
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: unknown key %q", path, undecoded[0].String())
	}

	return &cfg, meta, nil
}

func merge(dst, src *Config, meta toml.MetaData) {
	if meta.IsDefined("server", "port") {
		dst.Server.Port = src.Server.Port
	}
	if meta.IsDefined("server", "redis_url") {
		dst.Server.RedisURL = strings.TrimSpace(src.Server.RedisURL)
	}
	if meta.IsDefined("server", "cache_ttl") {
		dst.Server.CacheTTL = src.Server.CacheTTL
	}
	if meta.IsDefined("board", "api_url") {
		dst.Board.APIURL = strings.TrimSpace(src.Board.APIURL)
	}
	if meta.IsDefined("board", "refresh_interval") {
		dst.Board.RefreshInterval = src.Board.RefreshInterval
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("REDIS_URL"); ok {
		cfg.Server.RedisURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("TASKBOARD_API_URL"); ok && v != "" {
		cfg.Board.APIURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("DEBUG"); ok {
		if dbg, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = dbg
		}
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Board.APIURL == "" {
		errs = append(errs, errors.New("board.api_url is required"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the API server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// WriteDefault writes the default configuration to dataDir unless a config
// file already exists. It reports whether a file was written.
func WriteDefault(dataDir string) (bool, error) {
	path := Path(dataDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file %s: %w", path, err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return false, fmt.Errorf("create data directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create config file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return false, fmt.Errorf("write config file %s: %w", path, err)
	}
	return true, nil
}
