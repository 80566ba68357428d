package task

import (
	"strings"
	"time"
)

// Layouts without a zone are interpreted in the caller's location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDeadline parses a wire deadline. ok is false when raw is empty or
// matches none of the accepted layouts.
func ParseDeadline(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DeadlineIn is a shorthand for ParseDeadline on t's deadline.
func (t *Task) DeadlineIn(loc *time.Location) (time.Time, bool) {
	return ParseDeadline(t.Deadline, loc)
}
