package board

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/ldi/taskboard/pkg/models"
)

var (
	ErrSameColumn = errors.New("task is already in that column")

	// ErrMovePending is returned for a card whose last move the store has not
	// answered yet.
	ErrMovePending = errors.New("task is still being moved")
)

// PendingMove is an optimistic column change awaiting confirmation.
type PendingMove struct {
	TaskID int64
	From   models.Priority
	To     models.Priority
}

// BeginDrag marks a card as being dragged. Only one card drags at a time.
func (b *Board) BeginDrag(id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, _, ok := b.locate(id); !ok {
		return models.NotFound(id)
	}
	if b.hasPending(id) {
		return ErrMovePending
	}
	b.dragging = id
	return nil
}

func (b *Board) CancelDrag() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dragging = 0
}

// Dragging returns the card currently being dragged.
func (b *Board) Dragging() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dragging, b.dragging != 0
}

// ApplyMove moves a card to another column locally, without asking the
// store. Counts of both columns change immediately. A card has at most one
// move in flight.
func (b *Board) ApplyMove(id int64, to models.Priority) (PendingMove, error) {
	if err := models.ValidatePriority(to); err != nil {
		return PendingMove{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	from, idx, ok := b.locate(id)
	if !ok {
		return PendingMove{}, models.NotFound(id)
	}
	if b.hasPending(id) {
		return PendingMove{}, ErrMovePending
	}
	if from == to {
		return PendingMove{}, ErrSameColumn
	}

	moved := *b.columns[from][idx]
	moved.Tags = slices.Clone(moved.Tags)
	moved.Priority = to

	b.columns[from] = slices.Delete(b.columns[from], idx, idx+1)
	target := b.columns[to]
	b.columns[to] = slices.Insert(target, insertIndex(target, moved.Pinned), &moved)

	b.pending[id] = from
	if b.dragging == id {
		b.dragging = 0
	}
	return PendingMove{TaskID: id, From: from, To: to}, nil
}

// ConfirmMove sends the priority change to the store. On success the local
// state stands as is. On failure the whole board is reloaded from the store,
// discarding the optimistic change, and the store error is returned.
func (b *Board) ConfirmMove(ctx context.Context, mv PendingMove) error {
	_, err := b.store.UpdateTask(ctx, mv.TaskID, models.TaskPatch{Priority: models.Some(mv.To)})

	b.mu.Lock()
	delete(b.pending, mv.TaskID)
	b.mu.Unlock()

	if err == nil {
		b.notify(LevelSuccess, "Task moved successfully!")
		return nil
	}

	b.logger.WithFields(log.Fields{
		"task_id": mv.TaskID,
		"from":    mv.From,
		"to":      mv.To,
		"error":   err.Error(),
	}).Warn("move rejected, reloading board")
	b.notify(LevelError, "Failed to move task")

	if rerr := b.Refresh(ctx); rerr != nil {
		return errors.Join(fmt.Errorf("failed to move task %d: %w", mv.TaskID, err), rerr)
	}
	return fmt.Errorf("failed to move task %d: %w", mv.TaskID, err)
}

// Move applies a column change locally and then confirms it with the store.
func (b *Board) Move(ctx context.Context, id int64, to models.Priority) error {
	mv, err := b.ApplyMove(id, to)
	if err != nil {
		return err
	}
	return b.ConfirmMove(ctx, mv)
}

// Rect is the vertical extent of a card on screen.
type Rect struct {
	Top    float64
	Height float64
}

func (r Rect) Mid() float64 {
	return r.Top + r.Height/2
}

// DropPosition returns the index a card dropped at y takes among siblings,
// the other cards of the column in display order. The sibling whose midpoint
// is nearest to y decides: above its midpoint lands before it, otherwise
// after it. With no siblings the card is appended.
func DropPosition(siblings []Rect, y float64) int {
	closest := -1
	best := math.MaxFloat64
	for i, r := range siblings {
		if d := math.Abs(y - r.Mid()); d < best {
			best = d
			closest = i
		}
	}
	if closest < 0 {
		return len(siblings)
	}
	if y < siblings[closest].Mid() {
		return closest
	}
	return closest + 1
}

// Reorder moves a card within its own column to where it was dropped. rects
// are the bounds of the column's other cards. The new order is local only
// and is replaced by the next refresh.
func (b *Board) Reorder(id int64, y float64, rects []Rect) error {
	b.mu.Lock()
	p, idx, ok := b.locate(id)
	if !ok {
		b.mu.Unlock()
		return models.NotFound(id)
	}
	col := b.columns[p]
	if len(rects) != len(col)-1 {
		b.mu.Unlock()
		return fmt.Errorf("reorder: got %d sibling bounds for %d other cards", len(rects), len(col)-1)
	}

	task := col[idx]
	rest := slices.Delete(col, idx, idx+1)
	b.columns[p] = slices.Insert(rest, DropPosition(rects, y), task)
	if b.dragging == id {
		b.dragging = 0
	}
	b.mu.Unlock()

	b.notify(LevelSuccess, "Task reordered")
	return nil
}

// Shift reorders a card by delta rows within its column, for keyboard
// driven boards where every card is one row tall.
func (b *Board) Shift(id int64, delta int) error {
	b.mu.Lock()
	p, idx, ok := b.locate(id)
	if !ok {
		b.mu.Unlock()
		return models.NotFound(id)
	}
	others := len(b.columns[p]) - 1
	b.mu.Unlock()

	target := min(max(idx+delta, 0), others)
	rects := make([]Rect, others)
	for i := range rects {
		rects[i] = Rect{Top: float64(i), Height: 1}
	}
	// A quarter row above the target slot is nearest to the sibling above it.
	return b.Reorder(id, float64(target)-0.25, rects)
}
