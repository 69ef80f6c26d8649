package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ldi/taskboard/pkg/models"
)

type formField int

const (
	fieldTitle formField = iota
	fieldDue
	fieldTags
	fieldComments
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fieldTitle:    "Title",
	fieldDue:      "Due",
	fieldTags:     "Tags",
	fieldComments: "Comments",
}

var (
	formStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)

	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// labelWidth fits the longest label and its colon.
const labelWidth = 10

// taskForm holds the add and edit dialog. id is zero while adding.
type taskForm struct {
	id       int64
	priority models.Priority

	focus  formField
	inputs [fieldCount]textinput.Model
	tags   []string
}

func newInput(value string) textinput.Model {
	input := textinput.New()
	input.Prompt = ""
	input.SetValue(value)
	return input
}

func newTaskForm(id int64, p models.Priority) *taskForm {
	f := &taskForm{id: id, priority: p, tags: []string{}}
	for i := range f.inputs {
		f.inputs[i] = newInput("")
	}
	f.inputs[fieldTitle].CharLimit = models.MaxTitleLength
	f.inputs[fieldDue].Placeholder = "YYYY-MM-DD"
	f.inputs[fieldTags].Placeholder = "type a tag, enter to add"
	f.inputs[fieldTitle].Focus()
	return f
}

func newCreateForm(p models.Priority) *taskForm {
	return newTaskForm(0, p)
}

func newEditForm(t *models.Task) *taskForm {
	f := newTaskForm(t.ID, t.Priority)
	f.inputs[fieldTitle].SetValue(t.Title)
	if t.DueDate != nil {
		// The date input shows the calendar day only.
		due, _, _ := strings.Cut(*t.DueDate, "T")
		f.inputs[fieldDue].SetValue(due)
	}
	if t.Comments != nil {
		f.inputs[fieldComments].SetValue(*t.Comments)
	}
	f.tags = append(f.tags, t.Tags...)
	return f
}

func (f *taskForm) editing() bool {
	return f.id != 0
}

func (f *taskForm) value(field formField) string {
	return strings.TrimSpace(f.inputs[field].Value())
}

// addPendingTag moves the text typed in the tag field into the tag list.
// Blank and repeated tags are dropped. It reports whether there was text.
func (f *taskForm) addPendingTag() bool {
	typed := f.inputs[fieldTags].Value()
	if typed == "" {
		return false
	}
	f.tags, _ = models.AddTag(f.tags, typed)
	f.inputs[fieldTags].Reset()
	return true
}

// update passes a key to the focused input. Backspace in an empty tag input
// removes the last tag.
func (f *taskForm) update(msg tea.KeyMsg) tea.Cmd {
	if f.focus == fieldTags && msg.Type == tea.KeyBackspace && f.inputs[fieldTags].Value() == "" {
		if len(f.tags) > 0 {
			f.tags = f.tags[:len(f.tags)-1]
		}
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *taskForm) next(delta int) tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + formField(delta) + fieldCount) % fieldCount
	return f.inputs[f.focus].Focus()
}

// input builds the creation request. Invalid values are reported here so the
// form can stay open.
func (f *taskForm) input() (models.TaskInput, error) {
	in := models.TaskInput{
		Title:    f.value(fieldTitle),
		Priority: f.priority,
		Tags:     f.tags,
	}
	if due := f.value(fieldDue); due != "" {
		in.DueDate = &due
	}
	if comments := f.value(fieldComments); comments != "" {
		in.Comments = &comments
	}
	if err := in.Validate(); err != nil {
		return models.TaskInput{}, err
	}
	return in, nil
}

// patch builds the edit request. Empty due date and comments clear them.
func (f *taskForm) patch() (models.TaskPatch, error) {
	patch := models.TaskPatch{
		Title: models.Some(f.value(fieldTitle)),
		Tags:  models.Some(f.tags),
	}
	if due := f.value(fieldDue); due != "" {
		patch.DueDate = models.Some(due)
	} else {
		patch.DueDate = models.Null[string]()
	}
	if comments := f.value(fieldComments); comments != "" {
		patch.Comments = models.Some(comments)
	} else {
		patch.Comments = models.Null[string]()
	}
	if err := patch.Validate(); err != nil {
		return models.TaskPatch{}, err
	}
	return patch, nil
}

func (f *taskForm) view(width int) string {
	heading := fmt.Sprintf("New task in %s", f.priority.Info().Title)
	if f.editing() {
		heading = fmt.Sprintf("Edit task #%d", f.id)
	}

	// Border and padding take four columns.
	inner := max(width-4, 20)
	lines := []string{titleStyle.Render(heading)}
	for field := fieldTitle; field < fieldCount; field++ {
		label := labelStyle
		if field == f.focus {
			label = activeLabelStyle
		}

		var chips string
		if field == fieldTags {
			for _, tag := range f.tags {
				chips += tagStyle.Render("#"+tag) + " "
			}
		}

		input := f.inputs[field]
		input.Width = max(inner-labelWidth-1-lipgloss.Width(chips), 4)
		lines = append(lines, label.Render(fmt.Sprintf("%-*s", labelWidth, fieldLabels[field]+":"))+" "+chips+input.View())
	}

	// Width includes padding but not the border.
	return formStyle.Width(max(width-2, 10)).Render(strings.Join(lines, "\n"))
}
