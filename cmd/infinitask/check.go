package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/infinitech/infinitask/internal/config"
	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/monitor"
	"github.com/infinitech/infinitask/internal/task"
)

// runCheck fetches the list once and runs a single evaluation at the current
// time, then prints what it found and did.
func runCheck(ctx context.Context, env *config.Env, dryRun bool) error {
	if err := env.RequireOwnerKey(); err != nil {
		return err
	}
	loc, err := env.Location()
	if err != nil {
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

	var updater monitor.StatusUpdater = client
	if dryRun {
		updater = dryRunUpdater{}
	}
	list := newCheckList(tasks)
	bus := eventbus.New()
	subID, events := bus.Subscribe(2*len(tasks) + 1)
	defer bus.Unsubscribe(subID)

	m := monitor.New(list, updater, nil,
		monitor.WithLocation(loc),
		monitor.WithPublisher(bus),
		monitor.WithUpdateTimeout(env.APIEnv.Timeout),
	)
	now := time.Now().In(loc)
	res := m.Tick(ctx, now)
	m.Close()

	failed := map[string]string{}
	for drained := false; !drained; {
		select {
		case e := <-events:
			if e.Type == eventbus.EventOverdueUpdateFailed {
				failed[e.ResourceID] = e.Metadata["error"]
			}
		default:
			drained = true
		}
	}

	fmt.Fprintln(os.Stdout, renderCheck(list.Tasks(), res, failed, loc, now))
	if dryRun && len(res.Overdue) > 0 {
		fmt.Fprintln(os.Stdout, "dry run: overdue tasks were not reported")
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d overdue update(s) failed", len(failed))
	}
	return nil
}

// checkList is the in-memory list of a one-shot evaluation.
type checkList struct {
	mu    sync.Mutex
	tasks []task.Task
}

func newCheckList(tasks []task.Task) *checkList {
	return &checkList{tasks: task.Clone(tasks)}
}

func (l *checkList) Tasks() []task.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	return task.Clone(l.tasks)
}

func (l *checkList) SetStatus(id string, status task.Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.tasks, func(t task.Task) bool { return t.ID == id })
	if i < 0 || !task.CanTransition(l.tasks[i].Status, status) {
		return false
	}
	l.tasks[i].Status = status
	return true
}

type dryRunUpdater struct{}

func (dryRunUpdater) MarkOverdue(context.Context, string) error { return nil }
