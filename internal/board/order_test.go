package board

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/ldi/taskboard/pkg/models"
)

func TestSort(t *testing.T) {
	tasks := []*models.Task{
		task(1, models.PriorityUrgent, false, ""),
		task(2, models.PriorityUrgent, false, "2024-03-01"),
		task(3, models.PriorityUrgent, true, ""),
		task(4, models.PriorityUrgent, false, "2024-01-15T23:00:00Z"),
		task(5, models.PriorityUrgent, true, "2030-01-01"),
		task(6, models.PriorityUrgent, false, ""),
		task(7, models.PriorityUrgent, false, "2024-03-01"),
	}

	got := ids(Sort(tasks))
	want := []int64{5, 3, 4, 2, 7, 1, 6}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sort = %v, want %v", got, want)
	}
	if tasks[0].ID != 1 {
		t.Error("Sort must not reorder its input")
	}
}

func TestSortPinnedBeatsDueDate(t *testing.T) {
	pinned := task(1, models.PriorityUrgent, true, "")
	dated := task(2, models.PriorityUrgent, false, "2000-01-01")

	got := ids(Sort([]*models.Task{dated, pinned}))
	if !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("expected pinned undated task first, got %v", got)
	}
}

func TestSortInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dates := []string{"", "", "2024-01-01", "2024-01-02", "2024-02-10", "2023-12-31T12:00:00Z"}

	for round := 0; round < 50; round++ {
		var tasks []*models.Task
		for i := 0; i < 20; i++ {
			tasks = append(tasks, task(int64(i+1), models.PriorityLater, rng.Intn(3) == 0, dates[rng.Intn(len(dates))]))
		}
		sorted := Sort(tasks)

		for i := 1; i < len(sorted); i++ {
			a, b := sorted[i-1], sorted[i]
			if !a.Pinned && b.Pinned {
				t.Fatalf("pinned task %d after unpinned %d", b.ID, a.ID)
			}
			if a.Pinned != b.Pinned {
				continue
			}
			ad, aok := dueDay(a)
			bd, bok := dueDay(b)
			if !aok && bok {
				t.Fatalf("dated task %d after undated %d", b.ID, a.ID)
			}
			if aok && bok {
				if ad.After(bd) {
					t.Fatalf("due dates decrease between %d and %d", a.ID, b.ID)
				}
				if ad.Equal(bd) && a.ID > b.ID {
					t.Fatalf("sort is not stable between %d and %d", a.ID, b.ID)
				}
			}
			if !aok && !bok && a.ID > b.ID {
				t.Fatalf("sort is not stable between %d and %d", a.ID, b.ID)
			}
		}
	}
}

func TestPartition(t *testing.T) {
	cols := Partition([]*models.Task{
		task(1, models.PrioritySomeday, false, ""),
		task(2, models.PriorityUrgent, false, ""),
		task(3, models.PrioritySomeday, false, ""),
	})

	if len(cols) != 3 {
		t.Fatalf("expected three columns, got %d", len(cols))
	}
	if got := ids(cols[models.PrioritySomeday]); !reflect.DeepEqual(got, []int64{1, 3}) {
		t.Errorf("someday = %v", got)
	}
	if cols[models.PriorityLater] == nil {
		t.Error("empty column must be non-nil")
	}
	counts := Counts(cols)
	if counts[models.PriorityUrgent] != 1 || counts[models.PriorityLater] != 0 || counts[models.PrioritySomeday] != 2 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestInsertIndex(t *testing.T) {
	pinnedCol := []*models.Task{
		task(1, models.PriorityLater, true, ""),
		task(2, models.PriorityLater, true, ""),
		task(3, models.PriorityLater, false, ""),
	}
	tests := []struct {
		name   string
		col    []*models.Task
		pinned bool
		want   int
	}{
		{name: "empty column", col: nil, want: 0},
		{name: "no pinned cards", col: pinnedCol[2:], pinned: true, want: 0},
		{name: "unpinned after pinned block", col: pinnedCol, want: 2},
		{name: "pinned joins pinned block", col: pinnedCol, pinned: true, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insertIndex(tt.col, tt.pinned); got != tt.want {
				t.Errorf("insertIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDropPosition(t *testing.T) {
	rows := []Rect{{Top: 0, Height: 10}, {Top: 10, Height: 10}, {Top: 20, Height: 30}}
	tests := []struct {
		name     string
		siblings []Rect
		y        float64
		want     int
	}{
		{name: "no siblings", siblings: nil, y: 5, want: 0},
		{name: "above first", siblings: rows, y: -20, want: 0},
		{name: "upper half of first", siblings: rows, y: 2, want: 0},
		{name: "lower half of first", siblings: rows, y: 7, want: 1},
		{name: "upper half of second", siblings: rows, y: 12, want: 1},
		{name: "nearest is tall third", siblings: rows, y: 30, want: 2},
		{name: "below last", siblings: rows, y: 100, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DropPosition(tt.siblings, tt.y); got != tt.want {
				t.Errorf("DropPosition(%v) = %d, want %d", tt.y, got, tt.want)
			}
		})
	}
}

func TestDueLabel(t *testing.T) {
	loc := time.FixedZone("board", 2*3600)
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, loc)

	tests := []struct {
		due     string
		label   string
		overdue bool
	}{
		{due: "2024-03-10", label: "Today"},
		{due: "2024-03-10T01:00:00Z", label: "Today"},
		{due: "2024-03-11", label: "Tomorrow"},
		{due: "2024-03-20", label: "Mar 20"},
		{due: "2024-03-09", label: "Mar 9", overdue: true},
		{due: "2023-12-31T23:59:59Z", label: "Dec 31", overdue: true},
		{due: "not a date", label: ""},
	}
	for _, tt := range tests {
		t.Run(tt.due, func(t *testing.T) {
			if got := DueLabel(tt.due, now); got != tt.label {
				t.Errorf("DueLabel = %q, want %q", got, tt.label)
			}
			if got := Overdue(tt.due, now); got != tt.overdue {
				t.Errorf("Overdue = %v, want %v", got, tt.overdue)
			}
		})
	}
}
