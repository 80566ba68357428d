package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/infinitech/infinitask/internal/api"
	"github.com/infinitech/infinitask/internal/config"
	"github.com/infinitech/infinitask/internal/task"
)

// activityFlags are shared by add and edit. Empty values leave the field
// unchanged on edit.
type activityFlags struct {
	title         *string
	description   *[]string
	start         *string
	due           *string
	tags          *string
	dependency    *string
	collaborators *[]string
}

func registerActivityFlags(cmd *kingpin.CmdClause) *activityFlags {
	return &activityFlags{
		title:         cmd.Flag("title", "Title").String(),
		description:   cmd.Flag("description", "Subtask line; repeat for several").Short('d').Strings(),
		start:         cmd.Flag("start", "Start date, e.g. 2024-03-01T09:00").String(),
		due:           cmd.Flag("due", "Due date, e.g. 2024-03-10T17:00").String(),
		tags:          cmd.Flag("tags", "Comma-separated tags").String(),
		dependency:    cmd.Flag("depends-on", "ID of the activity this one depends on").String(),
		collaborators: cmd.Flag("collaborator", "Collaborator; repeat for several").Strings(),
	}
}

func (f *activityFlags) input() api.ActivityInput {
	return f.apply(api.ActivityInput{})
}

// apply overlays the flags that were given onto in.
func (f *activityFlags) apply(in api.ActivityInput) api.ActivityInput {
	if *f.title != "" {
		in.Title = *f.title
	}
	if len(*f.description) > 0 {
		in.Description = slices.Clone(*f.description)
	}
	if *f.start != "" {
		in.DateStarted = *f.start
	}
	if *f.due != "" {
		in.DueDate = *f.due
	}
	if *f.tags != "" {
		in.Tags = *f.tags
	}
	if *f.dependency != "" {
		in.DependencyID = *f.dependency
	}
	if len(*f.collaborators) > 0 {
		in.Collaborators = slices.Clone(*f.collaborators)
	}
	return in
}

// inputFromTask is the edit form prefilled from the current activity.
func inputFromTask(t task.Task) api.ActivityInput {
	return api.ActivityInput{
		Title:         t.Title,
		Description:   slices.Clone(t.Description),
		DateStarted:   t.DateStarted,
		DueDate:       t.Deadline,
		Tags:          strings.Join(t.Tags, ", "),
		Status:        string(t.Status),
		Archive:       t.Archived,
		DependencyID:  t.DependencyID,
		Collaborators: slices.Clone(t.Collaborators),
	}
}

func runAdd(ctx context.Context, env *config.Env, f *activityFlags) error {
	if err := env.RequireOwnerKey(); err != nil {
		return err
	}
	client, err := newAPIClient(env)
	if err != nil {
		return err
	}
	in := f.input()
	if err := client.CreateActivity(ctx, env.OwnerKey, in); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	fmt.Fprintf(os.Stdout, "%s %s\n", color.GreenString("created:"), in.Title)
	return nil
}

func runEdit(ctx context.Context, env *config.Env, id string, f *activityFlags) error {
	if err := env.RequireOwnerKey(); err != nil {
		return err
	}
	client, err := newAPIClient(env)
	if err != nil {
		return err
	}
	tasks, err := client.FetchTasks(ctx, env.OwnerKey)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}
	i := slices.IndexFunc(tasks, func(t task.Task) bool { return t.ID == id })
	if i < 0 {
		return fmt.Errorf("activity %s not found", id)
	}
	in := f.apply(inputFromTask(tasks[i]))
	if err := client.UpdateActivity(ctx, env.OwnerKey, id, in); err != nil {
		return fmt.Errorf("update activity %s: %w", id, err)
	}
	fmt.Fprintf(os.Stdout, "%s task %s\n", color.GreenString("updated:"), id)
	return nil
}
