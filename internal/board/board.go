// Package board hosts one owner's task list: it keeps the list fresh from the
// API and drives the lifecycle monitor over it.
package board

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/monitor"
	"github.com/infinitech/infinitask/internal/task"
	"github.com/infinitech/infinitask/pkg/cerr"
)

type Fetcher interface {
	FetchTasks(ctx context.Context, ownerKey string) ([]task.Task, error)
}

type Config struct {
	OwnerKey        string
	TickInterval    time.Duration
	RefreshInterval time.Duration
	UpdateTimeout   time.Duration
	Location        *time.Location
}

type Board struct {
	cfg       Config
	fetcher   Fetcher
	alarm     monitor.Alarm
	monitor   *monitor.Monitor
	snapshots task.SnapshotRepository
	publisher monitor.Publisher
	now       func() time.Time

	refreshReq chan struct{}

	mu          sync.RWMutex
	tasks       []task.Task
	ready       bool // a list is available to monitor
	lastRefresh time.Time
	lastErr     error
}

type Option func(*Board)

func WithSnapshots(repo task.SnapshotRepository) Option {
	return func(b *Board) {
		b.snapshots = repo
	}
}

func WithPublisher(p monitor.Publisher) Option {
	return func(b *Board) {
		b.publisher = p
	}
}

// WithClock replaces time.Now for ticks and health checks.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		b.now = now
	}
}

func New(cfg Config, fetcher Fetcher, updater monitor.StatusUpdater, alarm monitor.Alarm, opts ...Option) *Board {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	b := &Board{
		cfg:        cfg,
		fetcher:    fetcher,
		alarm:      alarm,
		now:        time.Now,
		refreshReq: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	monitorOpts := []monitor.Option{
		monitor.WithLocation(cfg.Location),
		monitor.WithUpdateTimeout(cfg.UpdateTimeout),
	}
	if b.publisher != nil {
		monitorOpts = append(monitorOpts, monitor.WithPublisher(b.publisher))
	}
	b.monitor = monitor.New(b, updater, alarm, monitorOpts...)
	return b
}

// Tasks returns a copy of the current list.
func (b *Board) Tasks() []task.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return task.Clone(b.tasks)
}

// SetStatus applies a local transition when the lifecycle allows it.
func (b *Board) SetStatus(id string, status task.Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tasks {
		if b.tasks[i].ID != id {
			continue
		}
		if !task.CanTransition(b.tasks[i].Status, status) {
			return false
		}
		b.tasks[i].Status = status
		return true
	}
	return false
}

// List returns one page of the tasks matching f, the page count and the
// number of matches.
func (b *Board) List(f task.Filter, page, perPage int) ([]task.Task, int, int) {
	matched := f.Apply(b.Tasks())
	items, pages := task.Paginate(matched, page, perPage)
	return items, pages, len(matched)
}

func (b *Board) Summary() task.Summary {
	return task.Summarize(b.Tasks())
}

// Healthy reports whether the last successful refresh is recent enough.
func (b *Board) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastRefresh.IsZero() {
		return false
	}
	return b.now().Sub(b.lastRefresh) <= 3*b.cfg.RefreshInterval
}

type Status struct {
	OwnerKey    string    `json:"-"`
	Tasks       int       `json:"tasks"`
	LastRefresh time.Time `json:"last_refresh"`
	LastError   string    `json:"last_error,omitempty"`
	Healthy     bool      `json:"healthy"`
}

func (b *Board) Status() Status {
	healthy := b.Healthy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Status{
		OwnerKey:    b.cfg.OwnerKey,
		Tasks:       len(b.tasks),
		LastRefresh: b.lastRefresh,
		Healthy:     healthy,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}

// Load seeds the list from the last saved snapshot. A missing snapshot is
// not an error.
func (b *Board) Load(ctx context.Context) error {
	if b.snapshots == nil {
		return nil
	}
	snap, err := b.snapshots.Get(ctx, b.cfg.OwnerKey)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil
		}
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	b.tasks = task.Clone(snap.Tasks)
	b.ready = true
	slog.InfoContext(ctx, "loaded task snapshot", "tasks", len(snap.Tasks), "fetched_at", snap.FetchedAt)
	return nil
}

// Refresh fetches the list and applies it. On failure the current list,
// including local overdue transitions, is kept.
func (b *Board) Refresh(ctx context.Context) error {
	tasks, err := b.fetcher.FetchTasks(ctx, b.cfg.OwnerKey)
	b.apply(ctx, tasks, err)
	return err
}

// RequestRefresh asks a running board to fetch soon. It never blocks.
func (b *Board) RequestRefresh() {
	select {
	case b.refreshReq <- struct{}{}:
	default:
	}
}

// Tick runs one monitor evaluation at now.
func (b *Board) Tick(ctx context.Context, now time.Time) monitor.TickResult {
	return b.monitor.Tick(ctx, now)
}

func (b *Board) apply(ctx context.Context, tasks []task.Task, err error) {
	if err != nil {
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		slog.WarnContext(ctx, "failed to refresh tasks", "error", err)
		return
	}

	b.mu.Lock()
	if diff := statusDiff(b.tasks, tasks); diff != "" && b.ready {
		slog.DebugContext(ctx, "local task statuses differ from server", "diff", diff)
	}
	b.tasks = task.Clone(tasks)
	b.ready = true
	b.lastRefresh = b.now()
	b.lastErr = nil
	fetchedAt := b.lastRefresh
	b.mu.Unlock()

	if b.snapshots != nil {
		snap := &task.Snapshot{OwnerKey: b.cfg.OwnerKey, FetchedAt: fetchedAt, Tasks: tasks}
		if err := b.snapshots.Save(ctx, snap); err != nil {
			slog.WarnContext(ctx, "failed to save task snapshot", "error", err)
		}
	}
	if b.publisher != nil {
		b.publisher.PublishNew(eventbus.EventTasksRefreshed, "", "", map[string]string{"tasks": strconv.Itoa(len(tasks))})
	}
}

type fetchResult struct {
	tasks []task.Task
	err   error
}

// Run refreshes once, then ticks and refreshes on their intervals until ctx
// is done. Ticks and refresh results are applied on this goroutine only, so
// they never overlap; fetches themselves run in the background. On return the
// monitor has been drained and the alarm released.
func (b *Board) Run(ctx context.Context) error {
	defer b.close(ctx)

	tick := time.NewTicker(b.cfg.TickInterval)
	defer tick.Stop()
	refresh := time.NewTicker(b.cfg.RefreshInterval)
	defer refresh.Stop()

	results := make(chan fetchResult, 1)
	inflight := false
	startFetch := func() {
		if inflight {
			return
		}
		inflight = true
		go func() {
			tasks, err := b.fetcher.FetchTasks(ctx, b.cfg.OwnerKey)
			results <- fetchResult{tasks: tasks, err: err}
		}()
	}
	startFetch()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if b.isReady() {
				b.monitor.Tick(ctx, b.now())
			}
		case <-refresh.C:
			startFetch()
		case <-b.refreshReq:
			startFetch()
		case r := <-results:
			inflight = false
			if ctx.Err() != nil {
				return nil
			}
			b.apply(ctx, r.tasks, r.err)
		}
	}
}

func (b *Board) isReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

func (b *Board) close(ctx context.Context) {
	b.monitor.Close()
	if c, ok := b.alarm.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.WarnContext(ctx, "failed to release alarm", "error", err)
		}
	}
}
