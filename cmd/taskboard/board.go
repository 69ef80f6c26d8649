package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ldi/taskboard/internal/board"
	"github.com/ldi/taskboard/internal/client"
	"github.com/ldi/taskboard/internal/ui"
)

func newBoardCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the terminal board against a running task API",
		Long: `Open the terminal board against a running task API.

With --verbose the board logs to <data-dir>/board.log, since the terminal is
taken by the board itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if apiURL != "" {
				cfg.Board.APIURL = apiURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logOut := io.Discard
			if verbose || cfg.Debug {
				if err := os.MkdirAll(dataDir, 0755); err != nil {
					return fmt.Errorf("failed to create %s directory: %w", dataDir, err)
				}
				f, err := os.OpenFile(filepath.Join(dataDir, "board.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return fmt.Errorf("failed to open board log: %w", err)
				}
				defer f.Close()
				logOut = f
			}
			logger := newLogger(logOut, cfg.Debug)

			api := client.New(cfg.Board.APIURL)
			if err := api.Ping(ctx); err != nil {
				return fmt.Errorf("task API at %s is not reachable (start it with `taskboard serve`): %w", cfg.Board.APIURL, err)
			}

			notices := ui.NewNotifier(16)
			b := board.New(api, board.WithNotifier(notices), board.WithLogger(logger))
			return runBoardUI(ctx, b, notices, cfg.Board.RefreshInterval.Duration)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "Task API base URL (overrides config and TASKBOARD_API_URL)")
	return cmd
}
