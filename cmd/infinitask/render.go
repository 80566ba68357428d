package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/infinitech/infinitask/internal/api"
	"github.com/infinitech/infinitask/internal/monitor"
	"github.com/infinitech/infinitask/internal/task"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusColors = map[task.Status]lipgloss.Color{
		task.StatusPending:  lipgloss.Color("33"),
		task.StatusComplete: lipgloss.Color("42"),
		task.StatusOverdue:  lipgloss.Color("196"),
		task.StatusCanceled: lipgloss.Color("244"),
	}
)

const statusColumn = 2

// renderCheck draws one row per task with the action the evaluation took.
func renderCheck(tasks []task.Task, res monitor.TickResult, failed map[string]string, loc *time.Location, now time.Time) string {
	actions := map[string]string{}
	for _, id := range res.Overdue {
		actions[id] = "marked overdue"
		if msg, ok := failed[id]; ok {
			actions[id] = "marked overdue, report failed: " + msg
		}
	}
	for _, id := range res.Alarmed {
		actions[id] = "alarm: due in 1 minute"
	}
	for _, id := range res.Failed {
		actions[id] = "evaluation failed"
	}

	statuses := make([]task.Status, 0, len(tasks))
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "TITLE", "STATUS", "DEADLINE", "ACTION")
	for _, tk := range tasks {
		statuses = append(statuses, tk.Status)
		t.Row(tk.ID, tk.Title, string(tk.Status), formatDeadline(tk, loc), actions[tk.ID])
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == statusColumn && row >= 0 && row < len(statuses) {
			if c, ok := statusColors[statuses[row]]; ok {
				return cellStyle.Foreground(c)
			}
		}
		return cellStyle
	})

	var b strings.Builder
	b.WriteString(t.Render())
	fmt.Fprintf(&b, "\n%d task(s) at %s: %d overdue, %d alarm(s)",
		len(tasks), now.Format("2006-01-02 15:04:05"), len(res.Overdue), len(res.Alarmed))
	return b.String()
}

func formatDeadline(t task.Task, loc *time.Location) string {
	d, ok := t.DeadlineIn(loc)
	if !ok {
		if t.Deadline == "" {
			return "-"
		}
		return t.Deadline + " (unparsed)"
	}
	return d.In(loc).Format("2006-01-02 15:04")
}

func renderNotifications(ns []api.Notification) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "STATUS", "CREATED", "MESSAGE")
	unread := 0
	for _, n := range ns {
		state := "read"
		if n.Unread() {
			state = "unread"
			unread++
		}
		t.Row(n.ID, state, n.CreatedAt, n.Message)
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	return fmt.Sprintf("%s\n%d notification(s), %d unread", t.Render(), len(ns), unread)
}
