package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/infinitech/infinitask/internal/api"
	"github.com/infinitech/infinitask/internal/task"
)

func emptyActivityFlags() *activityFlags {
	return &activityFlags{
		title:         new(string),
		description:   new([]string),
		start:         new(string),
		due:           new(string),
		tags:          new(string),
		dependency:    new(string),
		collaborators: new([]string),
	}
}

func TestActivityFlags_EditKeepsUnsetFields(t *testing.T) {
	current := task.Task{
		ID:            "7",
		Title:         "Write report",
		Description:   []string{"outline", "draft"},
		Status:        task.StatusPending,
		Deadline:      "2024-03-10T17:00",
		DateStarted:   "2024-03-01T09:00",
		Tags:          []string{"work", "q1"},
		Collaborators: []string{"ana"},
		DependencyID:  "3",
	}

	f := emptyActivityFlags()
	*f.due = "2024-03-12T17:00"
	*f.description = []string{"outline", "draft", "review"}

	got := f.apply(inputFromTask(current))
	assert.Equal(t, api.ActivityInput{
		Title:         "Write report",
		Description:   []string{"outline", "draft", "review"},
		DateStarted:   "2024-03-01T09:00",
		DueDate:       "2024-03-12T17:00",
		Tags:          "work, q1",
		Status:        "pending",
		DependencyID:  "3",
		Collaborators: []string{"ana"},
	}, got)
	assert.Equal(t, []string{"outline", "draft"}, current.Description, "edit must not alias the fetched task")
}

func TestActivityFlags_Input(t *testing.T) {
	f := emptyActivityFlags()
	*f.title = "Plan trip"
	*f.description = []string{"book hotel"}
	*f.start = "2024-05-01T08:00"
	*f.due = "2024-05-03T08:00"
	*f.tags = "travel"

	got := f.input()
	assert.Equal(t, "Plan trip", got.Title)
	assert.Equal(t, []string{"book hotel"}, got.Description)
	assert.Equal(t, "travel", got.Tags)
	assert.Empty(t, got.Status)
	assert.Empty(t, got.Collaborators)
}
