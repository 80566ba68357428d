package task

import (
	"slices"
	"sort"
)

// Filter selects tasks by status and archive flag. Zero values match all.
type Filter struct {
	Status   Status
	Archived *bool
}

func (f Filter) Match(t Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Archived != nil && t.Archived != *f.Archived {
		return false
	}
	return true
}

func (f Filter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Paginate returns the 1-based page of tasks and the number of pages.
// perPage <= 0 returns everything as a single page.
func Paginate(tasks []Task, page, perPage int) ([]Task, int) {
	if perPage <= 0 {
		return tasks, 1
	}
	pages := (len(tasks) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(tasks) {
		return nil, pages
	}
	end := min(start+perPage, len(tasks))
	return tasks[start:end], pages
}

type Summary struct {
	Total             int          `json:"total"`
	Pending           int          `json:"pending"`
	Complete          int          `json:"complete"`
	Overdue           int          `json:"overdue"`
	Canceled          int          `json:"canceled"`
	Archived          int          `json:"archived"`
	CompletionPercent float64      `json:"completion_percent"`
	ByDateStarted     []DateBucket `json:"by_date_started,omitempty"`
}

type DateBucket struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Summarize counts non-archived tasks per status. Total only covers the
// pending, complete and overdue tasks the completion rate is computed over.
func Summarize(tasks []Task) Summary {
	var s Summary
	dates := make(map[string]int)
	for _, t := range tasks {
		if t.Archived {
			s.Archived++
			continue
		}
		switch t.Status {
		case StatusPending:
			s.Pending++
		case StatusComplete:
			s.Complete++
		case StatusOverdue:
			s.Overdue++
		case StatusCanceled:
			s.Canceled++
		}
		if t.DateStarted != "" {
			dates[dateKey(t.DateStarted)]++
		}
	}
	s.Total = s.Pending + s.Complete + s.Overdue
	if s.Total > 0 {
		s.CompletionPercent = float64(s.Complete) / float64(s.Total) * 100
	}
	for d, n := range dates {
		s.ByDateStarted = append(s.ByDateStarted, DateBucket{Date: d, Count: n})
	}
	sort.Slice(s.ByDateStarted, func(i, j int) bool {
		return s.ByDateStarted[i].Date < s.ByDateStarted[j].Date
	})
	return s
}

// dateKey keeps the calendar date of a timestamp-like value.
func dateKey(raw string) string {
	if len(raw) >= 10 {
		return raw[:10]
	}
	return raw
}

// Clone deep-copies a task list so callers cannot alias the owner's slices.
func Clone(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		t.Description = slices.Clone(t.Description)
		t.Tags = slices.Clone(t.Tags)
		t.Collaborators = slices.Clone(t.Collaborators)
		out[i] = t
	}
	return out
}
