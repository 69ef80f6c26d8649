package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ldi/taskboard/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory, database and default config",
		Long: `Create the data directory, database and default config.

If a snapshot exists and the database has no tasks yet, the snapshot is imported.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dataDir, err)
	}
	fmt.Fprintf(out, "✓ Created %s/ directory\n", dataDir)

	gitignorePath := filepath.Join(dataDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("taskboard.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Fprintf(out, "✓ Created %s\n", gitignorePath)

	written, err := config.WriteDefault(dataDir)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(out, "✓ Wrote default config to %s\n", config.Path(dataDir))
	}

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	fmt.Fprintf(out, "✓ Initialized database at %s\n", resolvedDBPath())

	snapshot := resolvedSnapshotPath()
	if _, err := os.Stat(snapshot); err == nil {
		tasks, err := database.ListTasks(ctx)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			n, err := database.ImportSnapshot(ctx, snapshot)
			if err != nil {
				return fmt.Errorf("failed to import snapshot: %w", err)
			}
			fmt.Fprintf(out, "✓ Imported %d tasks from %s\n", n, snapshot)
		}
	}

	fmt.Fprintln(out, "✓ Taskboard initialized successfully")
	return nil
}
