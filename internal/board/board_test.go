package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/task"
	"github.com/infinitech/infinitask/internal/task/repositoryimpl"
	"github.com/infinitech/infinitask/pkg/storage"
)

type fakeFetcher struct {
	mu     sync.Mutex
	tasks  []task.Task
	err    error
	calls  int
	block  chan struct{}
	owners []string
}

func (f *fakeFetcher) FetchTasks(ctx context.Context, ownerKey string) ([]task.Task, error) {
	f.mu.Lock()
	f.calls++
	f.owners = append(f.owners, ownerKey)
	block := f.block
	tasks, err := task.Clone(f.tasks), f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tasks, err
}

func (f *fakeFetcher) set(tasks []task.Task, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks, f.err = tasks, err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUpdater struct {
	mu    sync.Mutex
	calls []string
}

func (u *fakeUpdater) MarkOverdue(_ context.Context, id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, id)
	return errors.New("api down")
}

func (u *fakeUpdater) Calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.calls...)
}

type fakeAlarm struct {
	mu     sync.Mutex
	rings  int
	closed bool
}

func (a *fakeAlarm) Ring(context.Context, task.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rings++
	return nil
}

func (a *fakeAlarm) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAlarm) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

var fixedNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		OwnerKey:        "owner-1",
		TickInterval:    5 * time.Millisecond,
		RefreshInterval: time.Hour,
		Location:        time.UTC,
	}
}

func newSnapshots(t *testing.T) *repositoryimpl.YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorageOnFs(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(s)
}

func TestBoard_RefreshReplacesListAndSavesSnapshot(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{tasks: []task.Task{
		{ID: "1", Status: task.StatusPending},
		{ID: "2", Status: task.StatusComplete},
	}}
	snapshots := newSnapshots(t)
	bus := eventbus.New()
	_, events := bus.Subscribe(4)
	b := New(testConfig(), fetcher, &fakeUpdater{}, nil,
		WithSnapshots(snapshots), WithPublisher(bus), WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, b.Refresh(ctx))

	assert.Len(t, b.Tasks(), 2)
	assert.Equal(t, []string{"owner-1"}, fetcher.owners)
	snap, err := snapshots.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, snap.Tasks, 2)
	ev := <-events
	assert.Equal(t, eventbus.EventTasksRefreshed, ev.Type)
	assert.Equal(t, "2", ev.Metadata["tasks"])
	assert.True(t, b.Healthy())
}

func TestBoard_RefreshFailureKeepsOptimisticState(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{tasks: []task.Task{
		{ID: "1", Status: task.StatusPending, Deadline: "2024-01-01T09:00:00"},
	}}
	updater := &fakeUpdater{}
	b := New(testConfig(), fetcher, updater, nil, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, b.Refresh(ctx))

	res := b.Tick(ctx, fixedNow)
	assert.Equal(t, []string{"1"}, res.Overdue)

	fetcher.set(nil, errors.New("timeout"))
	assert.Error(t, b.Refresh(ctx))

	tasks := b.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StatusOverdue, tasks[0].Status)
	assert.Equal(t, "timeout", b.Status().LastError)
	b.monitor.Close()
	assert.Equal(t, []string{"1"}, updater.Calls())
}

func TestBoard_RefreshRevertsToServerAndRetries(t *testing.T) {
	ctx := context.Background()
	pending := []task.Task{{ID: "1", Status: task.StatusPending, Deadline: "2024-01-01T09:00:00"}}
	fetcher := &fakeFetcher{tasks: pending}
	updater := &fakeUpdater{}
	b := New(testConfig(), fetcher, updater, nil)

	require.NoError(t, b.Refresh(ctx))
	b.Tick(ctx, fixedNow)
	// The update failed on the server, which still reports pending.
	require.NoError(t, b.Refresh(ctx))
	assert.Equal(t, task.StatusPending, b.Tasks()[0].Status)

	b.Tick(ctx, fixedNow)
	b.monitor.Close()
	assert.Equal(t, []string{"1", "1"}, updater.Calls())
}

func TestBoard_FailedColdRefreshLeavesBoardIdle(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	b := New(testConfig(), fetcher, &fakeUpdater{}, nil)

	assert.Error(t, b.Refresh(ctx))
	assert.False(t, b.isReady(), "no list to monitor yet")
	assert.Equal(t, "connection refused", b.Status().LastError)

	fetcher.set([]task.Task{{ID: "1", Status: task.StatusPending}}, nil)
	require.NoError(t, b.Refresh(ctx))
	assert.True(t, b.isReady())
	assert.Empty(t, b.Status().LastError)
}

func TestBoard_SetStatus(t *testing.T) {
	fetcher := &fakeFetcher{tasks: []task.Task{
		{ID: "1", Status: task.StatusPending},
		{ID: "2", Status: task.StatusComplete},
	}}
	b := New(testConfig(), fetcher, &fakeUpdater{}, nil)
	require.NoError(t, b.Refresh(context.Background()))

	assert.True(t, b.SetStatus("1", task.StatusOverdue))
	assert.False(t, b.SetStatus("1", task.StatusOverdue))
	assert.False(t, b.SetStatus("2", task.StatusOverdue))
	assert.False(t, b.SetStatus("missing", task.StatusOverdue))
}

func TestBoard_ListAndSummary(t *testing.T) {
	fetcher := &fakeFetcher{tasks: []task.Task{
		{ID: "1", Status: task.StatusPending},
		{ID: "2", Status: task.StatusComplete},
		{ID: "3", Status: task.StatusComplete, Archived: true},
	}}
	b := New(testConfig(), fetcher, &fakeUpdater{}, nil)
	require.NoError(t, b.Refresh(context.Background()))

	items, pages, total := b.List(task.Filter{Status: task.StatusComplete}, 1, 1)
	assert.Len(t, items, 1)
	assert.Equal(t, 2, pages)
	assert.Equal(t, 2, total)

	s := b.Summary()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Archived)
}

func TestBoard_Load(t *testing.T) {
	ctx := context.Background()
	snapshots := newSnapshots(t)
	require.NoError(t, snapshots.Save(ctx, &task.Snapshot{
		OwnerKey: "owner-1",
		Tasks:    []task.Task{{ID: "9", Status: task.StatusPending}},
	}))

	b := New(testConfig(), &fakeFetcher{}, &fakeUpdater{}, nil, WithSnapshots(snapshots))
	require.NoError(t, b.Load(ctx))
	assert.Equal(t, "9", b.Tasks()[0].ID)
	assert.False(t, b.Healthy(), "a snapshot is not a successful refresh")

	other := New(Config{OwnerKey: "owner-2"}, &fakeFetcher{}, &fakeUpdater{}, nil, WithSnapshots(snapshots))
	require.NoError(t, other.Load(ctx))
	assert.Empty(t, other.Tasks())
}

func TestBoard_Healthy(t *testing.T) {
	now := fixedNow
	cfg := testConfig()
	cfg.RefreshInterval = time.Minute
	b := New(cfg, &fakeFetcher{}, &fakeUpdater{}, nil, WithClock(func() time.Time { return now }))

	assert.False(t, b.Healthy())
	require.NoError(t, b.Refresh(context.Background()))
	assert.True(t, b.Healthy())

	now = now.Add(3 * time.Minute)
	assert.True(t, b.Healthy())
	now = now.Add(time.Second)
	assert.False(t, b.Healthy())
}

func TestBoard_Run(t *testing.T) {
	fetcher := &fakeFetcher{tasks: []task.Task{
		{ID: "1", Status: task.StatusPending, Deadline: "2024-01-01T09:00:00"},
		{ID: "2", Status: task.StatusPending, Deadline: "2024-01-01T10:01:00"},
	}}
	updater := &fakeUpdater{}
	alarm := &fakeAlarm{}
	b := New(testConfig(), fetcher, updater, alarm, WithClock(func() time.Time { return fixedNow }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	assert.Eventually(t, func() bool {
		tasks := b.Tasks()
		return len(tasks) == 2 && tasks[0].Status == task.StatusOverdue
	}, 2*time.Second, 5*time.Millisecond)

	b.RequestRefresh()
	b.RequestRefresh()
	assert.Eventually(t, func() bool { return fetcher.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, alarm.Closed())
	assert.NotEmpty(t, updater.Calls())

	alarm.mu.Lock()
	defer alarm.mu.Unlock()
	assert.Equal(t, 1, alarm.rings)
}

func TestBoard_RunTicksWhileFetching(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{tasks: []task.Task{
		{ID: "1", Status: task.StatusPending, Deadline: "2024-01-01T09:00:00"},
	}}
	snapshots := newSnapshots(t)
	require.NoError(t, snapshots.Save(ctx, &task.Snapshot{OwnerKey: "owner-1", Tasks: fetcher.tasks}))

	fetcher.block = make(chan struct{})
	b := New(testConfig(), fetcher, &fakeUpdater{}, nil,
		WithSnapshots(snapshots), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, b.Load(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = b.Run(runCtx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return b.Tasks()[0].Status == task.StatusOverdue
	}, 2*time.Second, 5*time.Millisecond, "ticks must run on the snapshot while the fetch is pending")

	cancel()
	<-done
}

func TestStatusDiff(t *testing.T) {
	local := []task.Task{{ID: "1", Status: task.StatusOverdue}, {ID: "2", Status: task.StatusPending}}
	remote := []task.Task{{ID: "2", Status: task.StatusPending}, {ID: "1", Status: task.StatusPending}}

	diff := statusDiff(local, remote)
	assert.Contains(t, diff, "--- local")
	assert.Contains(t, diff, "+++ server")
	assert.Contains(t, diff, "-1 overdue")
	assert.Contains(t, diff, "+1 pending")

	assert.Empty(t, statusDiff(remote, remote))
}
