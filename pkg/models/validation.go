package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation is returned when a request carries a missing or malformed field.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrEmptyTitle is returned when a task title is empty after trimming.
	ErrEmptyTitle = fmt.Errorf("%w: title is required", ErrValidation)
)

const (
	// MaxTitleLength is the maximum allowed length for a task title.
	MaxTitleLength = 500

	dateLayout = "2006-01-02"
)

func invalidPriority(p string) error {
	return fmt.Errorf("%w: invalid priority value %q", ErrValidation, p)
}

func invalidField(name, value string) error {
	return fmt.Errorf("%w: invalid %s value %s", ErrValidation, name, value)
}

// NotFound wraps ErrNotFound with the offending id.
func NotFound(id int64) error {
	return fmt.Errorf("%w: %d", ErrNotFound, id)
}

// ValidateTitle trims the title and checks it is usable.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if len(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	return title, nil
}

func ValidatePriority(p Priority) error {
	if !p.IsValid() {
		return invalidPriority(string(p))
	}
	return nil
}

func ValidateDueDate(s string) error {
	if _, err := ParseDueDate(s); err != nil {
		return fmt.Errorf("%w: invalid dueDate %q", ErrValidation, s)
	}
	return nil
}

// ParseDueDate accepts a calendar date (2006-01-02) or an RFC 3339 date-time.
// Only the date portion is meaningful: the result is midnight in loc of the
// calendar day written in s.
func ParseDueDate(s string) (time.Time, error) {
	return ParseDueDateIn(s, time.Local)
}

func ParseDueDateIn(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// NormalizeTags trims each tag and drops empty and repeated ones, keeping the
// first occurrence. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// AddTag appends tag to tags unless it is blank or already present.
func AddTag(tags []string, tag string) ([]string, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return tags, false
	}
	for _, t := range tags {
		if t == tag {
			return tags, false
		}
	}
	return append(tags, tag), true
}
