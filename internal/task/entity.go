package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusOverdue  Status = "overdue"
	StatusCanceled Status = "canceled"
	StatusUnknown  Status = "unknown"
)

// ParseStatus normalises a status string received from the API. The legacy
// value "done" is treated as complete.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending
	case "complete", "completed", "done":
		return StatusComplete
	case "overdue":
		return StatusOverdue
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		return StatusUnknown
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	*s = ParseStatus(raw)
	return nil
}

// Final reports whether no transition can leave s.
func (s Status) Final() bool {
	return s == StatusComplete || s == StatusCanceled
}

var transitions = map[Status][]Status{
	StatusPending: {StatusOverdue, StatusComplete, StatusCanceled},
	StatusOverdue: {StatusComplete, StatusPending},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
// overdue -> pending is only reachable through an explicit restore.
func CanTransition(from, to Status) bool {
	if from.Final() {
		return false
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is one activity as returned by the InfiniTask API. Deadline is kept in
// its wire form and parsed on demand with ParseDeadline.
type Task struct {
	ID               string   `json:"id" yaml:"id"`
	Title            string   `json:"title" yaml:"title"`
	Description      []string `json:"description,omitempty" yaml:"description,omitempty"`
	Status           Status   `json:"status" yaml:"status"`
	Archived         bool     `json:"archived" yaml:"archived"`
	Deadline         string   `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	DateStarted      string   `json:"date_started,omitempty" yaml:"date_started,omitempty"`
	Visibility       string   `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Tags             []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Collaborators    []string `json:"collaborators,omitempty" yaml:"collaborators,omitempty"`
	CollaboratorName string   `json:"collaborator_name,omitempty" yaml:"collaborator_name,omitempty"`
	DependencyID     string   `json:"dependency_id,omitempty" yaml:"dependency_id,omitempty"`
}

type wireTask struct {
	ID               json.RawMessage `json:"id"`
	Title            string          `json:"title"`
	Description      json.RawMessage `json:"description"`
	Status           Status          `json:"status"`
	Archive          *flexBool       `json:"archive"`
	Archived         *flexBool       `json:"archived"`
	Deadline         *string         `json:"deadline"`
	DueDate          *string         `json:"due_date"`
	DateStarted      string          `json:"date_started"`
	Visibility       string          `json:"visibility"`
	Tags             json.RawMessage `json:"tags"`
	Collaborators    json.RawMessage `json:"collaborators"`
	CollaboratorName string          `json:"collaborator_name"`
	DependencyID     json.RawMessage `json:"dependency_id"`
	DependencyIDAlt  json.RawMessage `json:"dependencyId"`
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, err := decodeID(w.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	desc, err := decodeStrings(w.Description)
	if err != nil {
		return fmt.Errorf("description: %w", err)
	}
	tags, err := decodeStrings(w.Tags)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	collaborators, err := decodeStrings(w.Collaborators)
	if err != nil {
		return fmt.Errorf("collaborators: %w", err)
	}
	depRaw := w.DependencyID
	if len(depRaw) == 0 {
		depRaw = w.DependencyIDAlt
	}
	dep, err := decodeID(depRaw)
	if err != nil {
		return fmt.Errorf("dependency_id: %w", err)
	}

	*t = Task{
		ID:               id,
		Title:            w.Title,
		Description:      desc,
		Status:           w.Status,
		DateStarted:      w.DateStarted,
		Visibility:       w.Visibility,
		Tags:             tags,
		Collaborators:    collaborators,
		CollaboratorName: w.CollaboratorName,
		DependencyID:     dep,
	}
	if t.Status == "" {
		t.Status = StatusUnknown
	}
	switch {
	case w.Archived != nil:
		t.Archived = bool(*w.Archived)
	case w.Archive != nil:
		t.Archived = bool(*w.Archive)
	}
	switch {
	case w.Deadline != nil && *w.Deadline != "":
		t.Deadline = *w.Deadline
	case w.DueDate != nil:
		t.Deadline = *w.DueDate
	}
	return nil
}

// decodeID accepts a JSON string or number. null and absent decode to "".
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// decodeStrings accepts a single string, a list of strings or numbers, or a
// string holding a JSON-encoded list, as older clients stored descriptions.
func decodeStrings(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		if nested := strings.TrimSpace(s); strings.HasPrefix(nested, "[") {
			if out, err := decodeList(json.RawMessage(nested)); err == nil {
				return out, nil
			}
		}
		return []string{s}, nil
	case '[':
		return decodeList(raw)
	default:
		return nil, fmt.Errorf("unexpected value %s", raw)
	}
}

func decodeList(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := decodeID(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// flexBool decodes true/false, 0/1 and their string forms.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = flexBool(v)
	return nil
}
