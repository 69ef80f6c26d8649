package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ldi/taskboard/internal/config"
	"github.com/ldi/taskboard/internal/db"
	"github.com/ldi/taskboard/internal/mcp"
	"github.com/ldi/taskboard/internal/ui"
)

var Version = "dev"

var (
	dataDir      string
	dbPath       string
	snapshotPath string
	verbose      bool
)

// Replaced in tests.
var (
	runMenu    = ui.RunMenu
	runBoardUI = ui.RunBoard
	serveMCP   = mcp.Serve
)

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func execute(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskboard",
		Short: "Personal task board with urgent, later and someday columns",
		Long: `Taskboard keeps tasks in three priority columns behind a small REST API.

Running ` + "`taskboard`" + ` with no command opens a menu of the commands below.`,
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := runMenu(menuItems(cmd))
			if err != nil {
				return fmt.Errorf("failed to run menu: %w", err)
			}
			if selected == "" {
				return nil
			}
			sub, _, err := cmd.Find([]string{selected})
			if err != nil || sub == cmd {
				return fmt.Errorf("unknown command: %s", selected)
			}
			sub.SetContext(cmd.Context())
			return sub.RunE(sub, nil)
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", config.DefaultDataDir, "Directory holding the database, config and snapshot")
	root.PersistentFlags().StringVar(&dbPath, "db-path", "", "Path to database file (default <data-dir>/taskboard.db)")
	root.PersistentFlags().StringVar(&snapshotPath, "snapshot-path", "", "Path to snapshot file (default <data-dir>/snapshot.jsonl)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newBoardCmd(),
		newMCPCmd(),
		newListCmd(),
		newStatusCmd(),
		newExportCmd(),
	)
	return root
}

// menuItems lists the subcommands the menu can run, in the order cobra
// shows them in help.
func menuItems(root *cobra.Command) []ui.MenuItem {
	var items []ui.MenuItem
	for _, sub := range root.Commands() {
		if !sub.IsAvailableCommand() || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		items = append(items, ui.MenuItem{Name: sub.Name(), Description: sub.Short})
	}
	return items
}

func resolvedDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return filepath.Join(dataDir, "taskboard.db")
}

func resolvedSnapshotPath() string {
	if snapshotPath != "" {
		return snapshotPath
	}
	return filepath.Join(dataDir, "snapshot.jsonl")
}

// openDB opens the task store and creates its schema if needed.
func openDB(ctx context.Context) (*db.DB, error) {
	database, err := db.Open(resolvedDBPath())
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(out io.Writer, debug bool) *log.Logger {
	logger := log.New()
	logger.SetOutput(out)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if verbose || debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func mcpServe(store mcp.Store) error {
	return serveMCP(mcp.NewServer(store))
}
