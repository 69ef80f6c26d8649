package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ldi/taskboard/pkg/models"
	"go.opentelemetry.io/otel/attribute"
)

const taskColumns = `id, title, priority, tags, due_date, pinned, comments, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// ListTasks returns every task, pinned first and then newest first.
func (db *DB) ListTasks(ctx context.Context) (_ []*models.Task, err error) {
	ctx, span := startSpan(ctx, "ListTasks")
	defer func() { endSpan(span, err) }()

	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY pinned DESC, created_at DESC, id DESC`
	tasks, err := db.queryTasks(ctx, db.DB, query)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("tasks.count", len(tasks)))
	return tasks, nil
}

// ListTasksByPriority returns the tasks of one column in listing order.
func (db *DB) ListTasksByPriority(ctx context.Context, p models.Priority) ([]*models.Task, error) {
	if err := models.ValidatePriority(p); err != nil {
		return nil, err
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE priority = ? ORDER BY pinned DESC, created_at DESC, id DESC`
	return db.queryTasks(ctx, db.DB, query, string(p))
}

// GetTask retrieves a task by its ID. It fails with models.ErrNotFound when
// no such task exists.
func (db *DB) GetTask(ctx context.Context, id int64) (_ *models.Task, err error) {
	ctx, span := startSpan(ctx, "GetTask", attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	return db.getTask(ctx, db.DB, id)
}

func (db *DB) getTask(ctx context.Context, exec executor, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(exec.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// CreateTask validates in and inserts a new task.
func (db *DB) CreateTask(ctx context.Context, in models.TaskInput) (_ *models.Task, err error) {
	ctx, span := startSpan(ctx, "CreateTask", attribute.String("task.priority", string(in.Priority)))
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	t, err := db.createTask(ctx, db.DB, in)
	if err != nil {
		return nil, err
	}

	db.triggerChange(ctx)
	return t, nil
}

func (db *DB) createTask(ctx context.Context, exec executor, in models.TaskInput) (*models.Task, error) {
	tags, err := encodeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO tasks (title, priority, tags, due_date, pinned, comments)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING ` + taskColumns
	t, err := scanTask(exec.QueryRowContext(ctx, query,
		in.Title, string(in.Priority), tags, in.DueDate, boolToInt(in.Pinned), in.Comments,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// UpdateTask applies patch to the task with the given id. Only the fields set
// in patch are written. An unknown id is reported before the patch is checked.
func (db *DB) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (_ *models.Task, err error) {
	ctx, span := startSpan(ctx, "UpdateTask", attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := db.getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	sets, args, err := patchAssignments(patch)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return current, nil
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + taskColumns
	args = append(args, id)
	t, err := scanTask(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return t, nil
}

func patchAssignments(patch models.TaskPatch) ([]string, []any, error) {
	var sets []string
	var args []any

	if patch.Title.Set {
		sets = append(sets, "title = ?")
		args = append(args, patch.Title.Value)
	}
	if patch.Priority.Set {
		sets = append(sets, "priority = ?")
		args = append(args, string(patch.Priority.Value))
	}
	if patch.Tags.Set {
		tags, err := encodeTags(patch.Tags.Value)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if patch.DueDate.Set {
		sets = append(sets, "due_date = ?")
		args = append(args, patch.DueDate.Ptr())
	}
	if patch.Comments.Set {
		sets = append(sets, "comments = ?")
		args = append(args, patch.Comments.Ptr())
	}
	if patch.Pinned.Set {
		sets = append(sets, "pinned = ?")
		args = append(args, boolToInt(patch.Pinned.Value))
	}
	return sets, args, nil
}

// DeleteTask deletes a task by its ID.
func (db *DB) DeleteTask(ctx context.Context, id int64) (err error) {
	ctx, span := startSpan(ctx, "DeleteTask", attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NotFound(id)
	}

	db.triggerChange(ctx)
	return nil
}

// CountByPriority returns the number of tasks in each column. Every valid
// priority is present in the result.
func (db *DB) CountByPriority(ctx context.Context) (map[models.Priority]int, error) {
	counts := make(map[models.Priority]int, 3)
	for _, p := range models.Priorities() {
		counts[p] = 0
	}

	rows, err := db.QueryContext(ctx, `SELECT priority, COUNT(*) FROM tasks GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.Priority(p)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}

// queryTasks is a helper to execute a query that returns a list of tasks.
func (db *DB) queryTasks(ctx context.Context, exec executor, query string, args ...any) ([]*models.Task, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var priority, tags, createdAt string
	var dueDate, comments sql.NullString
	var pinned int
	if err := row.Scan(&t.ID, &t.Title, &priority, &tags, &dueDate, &pinned, &comments, &createdAt); err != nil {
		return nil, err
	}

	t.Priority = models.Priority(priority)
	t.Pinned = pinned == 1
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if comments.Valid {
		t.Comments = &comments.String
	}

	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	t.Tags = decoded

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	t.CreatedAt = created
	return t, nil
}

// encodeTags stores tags as a JSON array string.
func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := sonic.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	if err := sonic.UnmarshalString(s, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags %q: %w", s, err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
