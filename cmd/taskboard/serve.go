package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ldi/taskboard/internal/cache"
	"github.com/ldi/taskboard/internal/config"
	"github.com/ldi/taskboard/internal/db"
	"github.com/ldi/taskboard/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port         int
		autoSnapshot bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the task API",
		Long: `Start the task API.

The port comes from --port, then PORT, then config.toml. Set redis_url in
config.toml or REDIS_URL to cache task reads in Redis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cmd, cfg, autoSnapshot)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on")
	cmd.Flags().BoolVar(&autoSnapshot, "auto-snapshot", false, "Export a snapshot after every write")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, autoSnapshot bool) error {
	logger := newLogger(cmd.ErrOrStderr(), cfg.Debug)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if autoSnapshot {
		path := resolvedSnapshotPath()
		database.EnableAutoSnapshot(path, func(err error) {
			logger.WithError(err).WithField("path", path).Error("snapshot export failed")
		})
	}

	store, closeStore, err := newStore(ctx, cfg, database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := server.NewServer(store, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

// newStore wraps the database in the Redis read cache when one is
// configured. Entries left by an earlier process are dropped first.
func newStore(ctx context.Context, cfg *config.Config, database *db.DB, logger *log.Logger) (server.Store, func(), error) {
	if cfg.Server.RedisURL == "" {
		return database, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Server.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	client := redis.NewClient(opts)
	closeFn := func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}

	c := cache.New(database, client, cfg.Server.CacheTTL.Duration)
	c.Invalidate(ctx)
	logger.WithFields(log.Fields{"addr": opts.Addr, "ttl": cfg.Server.CacheTTL.Duration.String()}).Info("task cache enabled")
	return c, closeFn, nil
}
