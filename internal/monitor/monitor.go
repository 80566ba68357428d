// Package monitor reconciles a task list against wall-clock time: pending
// tasks past their deadline become overdue, and tasks due in the coming
// minute raise an alarm.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/task"
	"github.com/infinitech/infinitask/pkg/panicerr"
)

// TaskList is the owner of the in-memory list. Tasks returns a copy;
// SetStatus reports whether the mutation was applied.
type TaskList interface {
	Tasks() []task.Task
	SetStatus(id string, status task.Status) bool
}

type StatusUpdater interface {
	MarkOverdue(ctx context.Context, id string) error
}

type Alarm interface {
	Ring(ctx context.Context, t task.Task) error
}

type Publisher interface {
	PublishNew(eventType eventbus.EventType, resourceID, title string, metadata map[string]string)
}

const defaultUpdateTimeout = 10 * time.Second

type Monitor struct {
	list          TaskList
	updater       StatusUpdater
	alarm         Alarm
	publisher     Publisher
	loc           *time.Location
	updateTimeout time.Duration

	wg *conc.WaitGroup

	mu          sync.Mutex
	lastAlarmed map[string]time.Time // task id -> deadline minute already rung
	closed      bool
}

type Option func(*Monitor)

// WithLocation sets the zone used for deadlines that carry none.
func WithLocation(loc *time.Location) Option {
	return func(m *Monitor) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(m *Monitor) {
		m.publisher = p
	}
}

// WithUpdateTimeout bounds each background MarkOverdue call.
func WithUpdateTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.updateTimeout = d
		}
	}
}

func New(list TaskList, updater StatusUpdater, alarm Alarm, opts ...Option) *Monitor {
	m := &Monitor{
		list:          list,
		updater:       updater,
		alarm:         alarm,
		loc:           time.Local,
		updateTimeout: defaultUpdateTimeout,
		wg:            conc.NewWaitGroup(),
		lastAlarmed:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TickResult lists what one evaluation did, by task id.
type TickResult struct {
	Overdue []string
	Alarmed []string
	// Failed holds tasks whose evaluation panicked.
	Failed []string
}

// Tick evaluates every task once against now. It never blocks on the
// network and never panics.
func (m *Monitor) Tick(ctx context.Context, now time.Time) TickResult {
	var res TickResult
	tasks := m.list.Tasks()
	armed := make(map[string]struct{}, len(tasks))

	for _, t := range tasks {
		err := panicerr.Try(func() error {
			m.evaluate(ctx, t, now, &res, armed)
			return nil
		})
		if err != nil {
			slog.ErrorContext(ctx, "task evaluation failed", "task_id", t.ID, "error", err)
			res.Failed = append(res.Failed, t.ID)
		}
	}
	m.prune(armed)
	return res
}

func (m *Monitor) evaluate(ctx context.Context, t task.Task, now time.Time, res *TickResult, armed map[string]struct{}) {
	if t.Status != task.StatusPending {
		return
	}
	deadline, ok := task.ParseDeadline(t.Deadline, m.loc)
	if !ok {
		return
	}

	if deadline.Before(now) {
		if m.markOverdue(ctx, t) {
			res.Overdue = append(res.Overdue, t.ID)
		}
		return
	}

	armed[t.ID] = struct{}{}
	if !AlarmDue(deadline, now) {
		return
	}
	minute := deadline.Truncate(time.Minute)
	if !m.claimAlarm(t.ID, minute) {
		return
	}
	res.Alarmed = append(res.Alarmed, t.ID)
	if m.alarm == nil {
		return
	}
	if err := m.alarm.Ring(ctx, t); err != nil {
		slog.WarnContext(ctx, "alarm failed", "task_id", t.ID, "error", err)
	}
}

// AlarmDue reports whether deadline falls in the minute right after now's,
// compared at whole-minute granularity.
func AlarmDue(deadline, now time.Time) bool {
	return deadline.Truncate(time.Minute).Equal(now.Truncate(time.Minute).Add(time.Minute))
}

// markOverdue applies the local transition first and then reports it to the
// API in the background. The local copy stays overdue whatever the outcome.
func (m *Monitor) markOverdue(ctx context.Context, t task.Task) bool {
	if !m.list.SetStatus(t.ID, task.StatusOverdue) {
		return false
	}
	slog.InfoContext(ctx, "task overdue", "task_id", t.ID, "title", t.Title, "deadline", t.Deadline)
	m.publish(eventbus.EventTaskOverdue, t, nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		slog.WarnContext(ctx, "monitor closed, overdue update not sent", "task_id", t.ID)
		return true
	}
	panicerr.Go(context.WithoutCancel(ctx), m.wg, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, m.updateTimeout)
		defer cancel()
		return m.updater.MarkOverdue(ctx, t.ID)
	}, func(err error) {
		slog.WarnContext(ctx, "failed to report overdue task", "task_id", t.ID, "error", err)
		m.publish(eventbus.EventOverdueUpdateFailed, t, map[string]string{"error": err.Error()})
	})
	return true
}

func (m *Monitor) claimAlarm(id string, minute time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastAlarmed[id]; ok && last.Equal(minute) {
		return false
	}
	m.lastAlarmed[id] = minute
	return true
}

// prune drops alarm keys of tasks that are gone or no longer pending.
func (m *Monitor) prune(armed map[string]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.lastAlarmed {
		if _, ok := armed[id]; !ok {
			delete(m.lastAlarmed, id)
		}
	}
}

func (m *Monitor) publish(eventType eventbus.EventType, t task.Task, extra map[string]string) {
	if m.publisher == nil {
		return
	}
	meta := map[string]string{"deadline": t.Deadline}
	for k, v := range extra {
		meta[k] = v
	}
	m.publisher.PublishNew(eventType, t.ID, t.Title, meta)
}

// Run ticks every interval until ctx is done, then waits for in-flight
// updates. now is the clock; nil means time.Now.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer m.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx, now())
		}
	}
}

// Close stops accepting overdue updates and waits for those in flight.
// Safe to call more than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}
