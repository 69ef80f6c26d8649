package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ldi/taskboard/pkg/models"
)

// Create adds a task and reloads the board.
func (b *Board) Create(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	task, err := b.store.CreateTask(ctx, in)
	if err != nil {
		b.fail("add", 0, err, "Failed to add task")
		return nil, fmt.Errorf("failed to add task: %w", err)
	}
	b.notify(LevelSuccess, "Task added successfully!")
	return task, b.Refresh(ctx)
}

// Update applies a partial edit and reloads the board.
func (b *Board) Update(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error) {
	task, err := b.store.UpdateTask(ctx, id, patch)
	if err != nil {
		b.fail("update", id, err, "Failed to update task")
		return nil, fmt.Errorf("failed to update task %d: %w", id, err)
	}
	b.notify(LevelSuccess, "Task updated successfully!")
	return task, b.Refresh(ctx)
}

// Delete removes a task and reloads the board.
func (b *Board) Delete(ctx context.Context, id int64) error {
	if err := b.store.DeleteTask(ctx, id); err != nil {
		b.fail("delete", id, err, "Failed to delete task")
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	b.notify(LevelSuccess, "Task deleted successfully!")
	return b.Refresh(ctx)
}

// TogglePin flips the pinned flag of a card on the board.
func (b *Board) TogglePin(ctx context.Context, id int64) (*models.Task, error) {
	task, ok := b.Task(id)
	if !ok {
		return nil, models.NotFound(id)
	}
	return b.Update(ctx, id, models.TaskPatch{Pinned: models.Some(!task.Pinned)})
}

func (b *Board) fail(op string, id int64, err error, message string) {
	fields := log.Fields{"op": op, "error": err.Error()}
	if id != 0 {
		fields["task_id"] = id
	}
	b.logger.WithFields(fields).Warn("task request failed")
	b.notify(LevelError, message)
}
