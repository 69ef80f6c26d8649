package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successBoxStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	failureBoxStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)

	activityHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)

	subTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				Padding(0, 1)
)

// Entry is one notification shown in the activity panel.
type Entry struct {
	Text   string
	Failed bool
}

// Activity keeps the most recent board notifications, split into the ones
// that reported success and the ones that reported a failure.
type Activity struct {
	Succeeded []Entry
	Failed    []Entry
	Width     int
	Title     string
	Limit     int
}

func NewActivity(width, limit int) *Activity {
	return &Activity{
		Succeeded: make([]Entry, 0),
		Failed:    make([]Entry, 0),
		Width:     width,
		Limit:     limit,
		Title:     "Activity",
	}
}

func (a *Activity) Add(e Entry) {
	if e.Failed {
		a.Failed = appendWithLimit(a.Failed, e, a.Limit)
	} else {
		a.Succeeded = appendWithLimit(a.Succeeded, e, a.Limit)
	}
}

func (a *Activity) Len() int {
	return len(a.Succeeded) + len(a.Failed)
}

func appendWithLimit(entries []Entry, e Entry, limit int) []Entry {
	entries = append(entries, e)
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}

func (a *Activity) View() string {
	var boxes []string
	if len(a.Succeeded) > 0 {
		boxes = append(boxes, a.renderBox("Succeeded", a.Succeeded, successBoxStyle, "✓"))
	}
	if len(a.Failed) > 0 {
		boxes = append(boxes, a.renderBox("Failed", a.Failed, failureBoxStyle, "✗"))
	}

	content := placeholderStyle.Render("Nothing happened yet")
	if len(boxes) > 0 {
		content = strings.Join(boxes, "\n")
	}

	if a.Title == "" {
		return content
	}
	return activityHeaderStyle.Render(a.Title) + "\n" + content
}

func (a *Activity) renderBox(title string, entries []Entry, style lipgloss.Style, icon string) string {
	// Width of a lipgloss style excludes the border.
	boxWidth := max(a.Width-2, 0)
	textWidth := max(boxWidth-4, 0)

	var lines []string
	for _, e := range entries {
		wrapped := lipgloss.NewStyle().Width(textWidth).Render(e.Text)
		for i, line := range strings.Split(wrapped, "\n") {
			if i == 0 {
				lines = append(lines, fmt.Sprintf("%s %s", icon, line))
			} else {
				lines = append(lines, "  "+line)
			}
		}
	}

	subTitle := subTitleStyle.Foreground(style.GetForeground()).Render(title)
	return style.Width(boxWidth).Render(subTitle + "\n" + strings.Join(lines, "\n"))
}
