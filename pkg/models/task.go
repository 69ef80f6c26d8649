package models

import "time"

type Priority string

const (
	PriorityUrgent  Priority = "urgent"
	PriorityLater   Priority = "later"
	PrioritySomeday Priority = "someday"
)

// PriorityInfo is the display metadata attached to a priority column.
type PriorityInfo struct {
	Title string
	// Color is an ANSI 256 color code used for the column accent.
	Color string
}

var priorityInfo = map[Priority]PriorityInfo{
	PriorityUrgent:  {Title: "Urgent", Color: "203"},
	PriorityLater:   {Title: "Later", Color: "214"},
	PrioritySomeday: {Title: "Someday", Color: "111"},
}

// Priorities returns the valid priorities in column order.
func Priorities() []Priority {
	return []Priority{PriorityUrgent, PriorityLater, PrioritySomeday}
}

func (p Priority) IsValid() bool {
	_, ok := priorityInfo[p]
	return ok
}

// Info returns the display metadata for p. Unknown priorities get a zero value.
func (p Priority) Info() PriorityInfo {
	return priorityInfo[p]
}

type Task struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Priority  Priority  `json:"priority"`
	Tags      []string  `json:"tags"`
	DueDate   *string   `json:"dueDate"`
	Pinned    bool      `json:"pinned"`
	Comments  *string   `json:"comments"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskInput is the body of a creation request.
type TaskInput struct {
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
	DueDate  *string  `json:"dueDate,omitempty"`
	Comments *string  `json:"comments,omitempty"`
	Pinned   bool     `json:"pinned,omitempty"`
}

// TaskPatch is a partial update. Fields that are not Set are left untouched.
type TaskPatch struct {
	Title    Field[string]   `json:"title,omitzero"`
	Priority Field[Priority] `json:"priority,omitzero"`
	Tags     Field[[]string] `json:"tags,omitzero"`
	DueDate  Field[string]   `json:"dueDate,omitzero"`
	Comments Field[string]   `json:"comments,omitzero"`
	Pinned   Field[bool]     `json:"pinned,omitzero"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return !p.Title.Set && !p.Priority.Set && !p.Tags.Set &&
		!p.DueDate.Set && !p.Comments.Set && !p.Pinned.Set
}

// Validate normalizes the patch in place and rejects values the store cannot hold.
func (p *TaskPatch) Validate() error {
	if p.Title.Set {
		if p.Title.Null {
			return ErrEmptyTitle
		}
		title, err := ValidateTitle(p.Title.Value)
		if err != nil {
			return err
		}
		p.Title.Value = title
	}
	if p.Priority.Set {
		if p.Priority.Null {
			return invalidPriority("null")
		}
		if err := ValidatePriority(p.Priority.Value); err != nil {
			return err
		}
	}
	if p.Tags.Set {
		p.Tags.Value = NormalizeTags(p.Tags.Value)
		p.Tags.Null = false
	}
	if p.DueDate.Set && !p.DueDate.Null {
		if err := ValidateDueDate(p.DueDate.Value); err != nil {
			return err
		}
	}
	if p.Pinned.Set && p.Pinned.Null {
		return invalidField("pinned", "null")
	}
	return nil
}

// Validate normalizes the input in place and checks the required fields.
func (in *TaskInput) Validate() error {
	title, err := ValidateTitle(in.Title)
	if err != nil {
		return err
	}
	in.Title = title
	if in.Priority == "" {
		return invalidPriority("")
	}
	if err := ValidatePriority(in.Priority); err != nil {
		return err
	}
	in.Tags = NormalizeTags(in.Tags)
	if in.DueDate != nil {
		if *in.DueDate == "" {
			in.DueDate = nil
		} else if err := ValidateDueDate(*in.DueDate); err != nil {
			return err
		}
	}
	if in.Comments != nil && *in.Comments == "" {
		in.Comments = nil
	}
	return nil
}

func StringPtr(s string) *string {
	return &s
}
