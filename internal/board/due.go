package board

import (
	"time"

	"github.com/ldi/taskboard/pkg/models"
)

// DueLabel renders a due date relative to now: "Today", "Tomorrow" or a
// short month and day such as "Jan 2". Only calendar days in now's location
// are compared. An unparseable date yields "".
func DueLabel(due string, now time.Time) string {
	d, err := models.ParseDueDateIn(due, now.Location())
	if err != nil {
		return ""
	}
	today := startOfDay(now)
	switch {
	case d.Equal(today):
		return "Today"
	case d.Equal(today.AddDate(0, 0, 1)):
		return "Tomorrow"
	default:
		return d.Format("Jan 2")
	}
}

// Overdue reports whether due falls on a calendar day before now's.
func Overdue(due string, now time.Time) bool {
	d, err := models.ParseDueDateIn(due, now.Location())
	if err != nil {
		return false
	}
	return d.Before(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
