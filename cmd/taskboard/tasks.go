package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/ldi/taskboard/internal/board"
	"github.com/ldi/taskboard/pkg/models"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task store to agents over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			// stdout carries the protocol.
			logger := newLogger(cmd.ErrOrStderr(), cfg.Debug)
			path := resolvedSnapshotPath()
			database.EnableAutoSnapshot(path, func(err error) {
				logger.WithError(err).WithField("path", path).Error("snapshot export failed")
			})

			// Writes go through the same cache as serve so its entries are evicted.
			store, closeStore, err := newStore(ctx, cfg, database, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			return mcpServe(store)
		},
	}
}

func newListCmd() *cobra.Command {
	var (
		priority string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in board order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			var tasks []*models.Task
			if priority != "" {
				tasks, err = database.ListTasksByPriority(ctx, models.Priority(priority))
			} else {
				tasks, err = database.ListTasks(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := sonic.ConfigStd.MarshalIndent(tasks, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			now := time.Now()
			fmt.Fprintf(out, "%-5s %-8s %-3s %-10s %-30s %s\n", "ID", "PRIORITY", "PIN", "DUE", "TITLE", "TAGS")
			fmt.Fprintln(out, strings.Repeat("-", 76))
			cols := board.Partition(board.Sort(tasks))
			for _, p := range models.Priorities() {
				for _, t := range cols[p] {
					pin := ""
					if t.Pinned {
						pin = "*"
					}
					due := ""
					if t.DueDate != nil {
						due = board.DueLabel(*t.DueDate, now)
						if board.Overdue(*t.DueDate, now) {
							due += "!"
						}
					}
					fmt.Fprintf(out, "%-5d %-8s %-3s %-10s %-30s %s\n", t.ID, t.Priority, pin, due, t.Title, strings.Join(t.Tags, ","))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "", "Only list one column (urgent, later, someday)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts per column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			counts, err := database.CountByPriority(ctx)
			if err != nil {
				return err
			}
			tasks, err := database.ListTasks(ctx)
			if err != nil {
				return err
			}

			now := time.Now()
			var pinned, overdue int
			for _, t := range tasks {
				if t.Pinned {
					pinned++
				}
				if t.DueDate != nil && board.Overdue(*t.DueDate, now) {
					overdue++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Taskboard Status")
			fmt.Fprintln(out, "================")
			fmt.Fprintf(out, "Total Tasks:     %d\n", len(tasks))
			fmt.Fprintf(out, "Pinned:          %d\n", pinned)
			fmt.Fprintf(out, "Overdue:         %d\n", overdue)
			fmt.Fprintln(out, "\nColumns:")
			for _, p := range models.Priorities() {
				fmt.Fprintf(out, "  %-8s %d\n", p.Info().Title+":", counts[p])
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every task to the JSONL snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			path := resolvedSnapshotPath()
			if err := database.ExportSnapshot(ctx, path); err != nil {
				return fmt.Errorf("failed to export snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported snapshot to %s\n", path)
			return nil
		},
	}
}
