// Package board keeps the client-side arrangement of tasks into priority
// columns and mediates optimistic edits against the task API.
package board

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ldi/taskboard/pkg/models"
)

// Store is the remote task store the board syncs with.
type Store interface {
	ListTasks(ctx context.Context) ([]*models.Task, error)
	CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "success"
}

// Notifier shows short-lived messages to the user.
type Notifier interface {
	Notify(level Level, message string)
}

type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// CardState is where a card is in the drag lifecycle.
type CardState int

const (
	StateIdle CardState = iota
	StateDragging
	StatePendingMove
)

func (s CardState) String() string {
	switch s {
	case StateDragging:
		return "dragging"
	case StatePendingMove:
		return "pending-move"
	default:
		return "idle"
	}
}

type Option func(*Board)

func WithNotifier(n Notifier) Option {
	return func(b *Board) { b.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// WithClock overrides the time source used for due-date labels.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// Board owns the visible column state. All methods are safe for concurrent
// use; store calls are made without holding the lock.
type Board struct {
	store    Store
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time

	mu         sync.Mutex
	columns    map[models.Priority][]*models.Task
	loaded     bool
	started    uint64
	applied    uint64
	dragging   int64
	pending    map[int64]models.Priority
	refreshing int
}

func New(store Store, opts ...Option) *Board {
	b := &Board{
		store:   store,
		logger:  log.StandardLogger(),
		now:     time.Now,
		columns: Partition(nil),
		pending: make(map[int64]models.Priority),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Refresh fetches the full task list and rebuilds every column from it. When
// fetches overlap, only the most recently started one that completes is
// applied; results from older fetches are discarded.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	b.started++
	gen := b.started
	b.refreshing++
	b.mu.Unlock()

	tasks, err := b.store.ListTasks(ctx)

	b.mu.Lock()
	b.refreshing--
	b.mu.Unlock()

	if err != nil {
		b.notify(LevelError, "Error loading tasks")
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	if !b.apply(gen, tasks) {
		b.logger.WithField("generation", gen).Debug("discarding stale task list")
	}
	return nil
}

func (b *Board) apply(gen uint64, tasks []*models.Task) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen <= b.applied {
		return false
	}
	b.applied = gen
	b.columns = Partition(Sort(tasks))
	b.loaded = true

	if b.dragging != 0 {
		if _, _, ok := b.locate(b.dragging); !ok {
			b.dragging = 0
		}
	}
	return true
}

// Loaded reports whether a task list has been applied yet.
func (b *Board) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Refreshing reports whether a fetch is in flight.
func (b *Board) Refreshing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshing > 0
}

// Column returns a copy of one column in display order.
func (b *Board) Column(p models.Priority) []*models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.columns[p])
}

// Columns returns a copy of every column.
func (b *Board) Columns() map[models.Priority][]*models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[models.Priority][]*models.Task, len(b.columns))
	for p, col := range b.columns {
		out[p] = slices.Clone(col)
	}
	return out
}

// Counts reflects the current local state, including unconfirmed moves.
func (b *Board) Counts() map[models.Priority]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts(b.columns)
}

// Task looks a card up by id.
func (b *Board) Task(id int64) (*models.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, i, ok := b.locate(id)
	if !ok {
		return nil, false
	}
	return b.columns[p][i], true
}

func (b *Board) State(id int64) CardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.dragging == id:
		return StateDragging
	case b.hasPending(id):
		return StatePendingMove
	default:
		return StateIdle
	}
}

// Now is the board's clock.
func (b *Board) Now() time.Time {
	return b.now()
}

func (b *Board) hasPending(id int64) bool {
	_, ok := b.pending[id]
	return ok
}

// locate must be called with mu held.
func (b *Board) locate(id int64) (models.Priority, int, bool) {
	for _, p := range models.Priorities() {
		for i, t := range b.columns[p] {
			if t.ID == id {
				return p, i, true
			}
		}
	}
	return "", 0, false
}

func (b *Board) notify(level Level, message string) {
	if b.notifier != nil {
		b.notifier.Notify(level, message)
	}
}
