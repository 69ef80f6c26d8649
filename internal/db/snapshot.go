package db

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ldi/taskboard/pkg/models"
)

const snapshotVersion = 1

type snapshotMeta struct {
	RecordType string    `json:"record_type"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
}

type snapshotTask struct {
	RecordType string `json:"record_type"`
	*models.Task
}

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation. Export errors
// are passed to onError when it is non-nil.
func (db *DB) EnableAutoSnapshot(path string, onError func(error)) {
	db.SetOnChange(func(ctx context.Context) {
		if err := db.ExportSnapshot(ctx, path); err != nil && onError != nil {
			onError(err)
		}
	})
}

// ExportSnapshot writes a meta line followed by one JSON line per task, in
// id order, to the given path atomically using a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tasks, err := db.queryTasks(ctx, db.DB, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	enc := sonic.ConfigStd.NewEncoder(w)
	if err := enc.Encode(snapshotMeta{RecordType: "meta", Version: snapshotVersion, ExportedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}
	for _, t := range tasks {
		if err := enc.Encode(snapshotTask{RecordType: "task", Task: t}); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ImportSnapshot reads a JSONL snapshot and upserts its tasks by id, keeping
// their original ids and creation times. It returns the number of tasks read.
func (db *DB) ImportSnapshot(ctx context.Context, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	imported := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var base struct {
			RecordType string `json:"record_type"`
		}
		if err := sonic.Unmarshal(data, &base); err != nil {
			return 0, fmt.Errorf("line %d: failed to unmarshal base record: %w", line, err)
		}

		switch base.RecordType {
		case "meta":
			var meta snapshotMeta
			if err := sonic.Unmarshal(data, &meta); err != nil {
				return 0, fmt.Errorf("line %d: failed to unmarshal meta: %w", line, err)
			}
			if meta.Version > snapshotVersion {
				return 0, fmt.Errorf("unsupported snapshot version %d", meta.Version)
			}
		case "task":
			var t models.Task
			if err := sonic.Unmarshal(data, &t); err != nil {
				return 0, fmt.Errorf("line %d: failed to unmarshal task: %w", line, err)
			}
			if err := upsertTask(ctx, tx, &t); err != nil {
				return 0, fmt.Errorf("line %d: %w", line, err)
			}
			imported++
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	db.triggerChange(ctx)
	return imported, nil
}

func upsertTask(ctx context.Context, exec executor, t *models.Task) error {
	in := models.TaskInput{
		Title:    t.Title,
		Priority: t.Priority,
		Tags:     t.Tags,
		DueDate:  t.DueDate,
		Pinned:   t.Pinned,
	}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("invalid task %d: %w", t.ID, err)
	}
	tags, err := encodeTags(in.Tags)
	if err != nil {
		return err
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO tasks (id, title, priority, tags, due_date, pinned, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			priority = excluded.priority,
			tags = excluded.tags,
			due_date = excluded.due_date,
			pinned = excluded.pinned,
			comments = excluded.comments,
			created_at = excluded.created_at`,
		t.ID, in.Title, string(in.Priority), tags, in.DueDate, boolToInt(in.Pinned), t.Comments,
		createdAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	if err != nil {
		return fmt.Errorf("failed to sync task %d: %w", t.ID, err)
	}
	return nil
}
