package board

import (
	"slices"
	"time"

	"github.com/ldi/taskboard/pkg/models"
)

// Sort returns a copy of tasks in display order: pinned before unpinned,
// dated before undated, earlier due day before later. Ties keep their input
// order.
func Sort(tasks []*models.Task) []*models.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, compareTasks)
	return out
}

func compareTasks(a, b *models.Task) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}

	ad, aok := dueDay(a)
	bd, bok := dueDay(b)
	switch {
	case aok && bok:
		return ad.Compare(bd)
	case aok:
		return -1
	case bok:
		return 1
	}
	return 0
}

// dueDay reports the calendar day a task is due. Unparseable dates count as
// undated.
func dueDay(t *models.Task) (time.Time, bool) {
	if t.DueDate == nil || *t.DueDate == "" {
		return time.Time{}, false
	}
	d, err := models.ParseDueDateIn(*t.DueDate, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Partition groups already sorted tasks by column. Every column is present,
// empty ones as empty slices.
func Partition(tasks []*models.Task) map[models.Priority][]*models.Task {
	cols := make(map[models.Priority][]*models.Task, len(models.Priorities()))
	for _, p := range models.Priorities() {
		cols[p] = []*models.Task{}
	}
	for _, t := range tasks {
		if col, ok := cols[t.Priority]; ok {
			cols[t.Priority] = append(col, t)
		}
	}
	return cols
}

// Counts returns the number of cards in each column.
func Counts(cols map[models.Priority][]*models.Task) map[models.Priority]int {
	counts := make(map[models.Priority]int, len(models.Priorities()))
	for _, p := range models.Priorities() {
		counts[p] = len(cols[p])
	}
	return counts
}

// insertIndex is where a card moved into col lands. Without pinned cards it
// goes to the front. A pinned card joins the pinned block right after its
// first card; an unpinned one goes after the last pinned card.
func insertIndex(col []*models.Task, pinned bool) int {
	first, last := -1, -1
	for i, t := range col {
		if t.Pinned {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	switch {
	case last < 0:
		return 0
	case pinned:
		return first + 1
	default:
		return last + 1
	}
}
