package alarm

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/task"
)

type sinkFunc func(context.Context, task.Task) error

func (f sinkFunc) Ring(ctx context.Context, t task.Task) error { return f(ctx, t) }

type closingSink struct {
	sinkFunc
	closed bool
}

func (c *closingSink) Close() error {
	c.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	var rung []string
	ok := sinkFunc(func(_ context.Context, t task.Task) error {
		rung = append(rung, "ok:"+t.ID)
		return nil
	})
	boom := errors.New("no device")
	failing := sinkFunc(func(_ context.Context, t task.Task) error {
		rung = append(rung, "failing:"+t.ID)
		return boom
	})
	closer := &closingSink{sinkFunc: ok}

	m := NewMulti(failing, nil, closer)
	assert.Equal(t, 2, m.Len())

	err := m.Ring(context.Background(), task.Task{ID: "1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"failing:1", "ok:1"}, rung)

	require.NoError(t, m.Close())
	assert.True(t, closer.closed)
}

func TestBell(t *testing.T) {
	buf := &bytes.Buffer{}
	b := NewBell(buf, false)

	require.NoError(t, b.Ring(context.Background(), task.Task{ID: "1", Title: "Report", Deadline: "2024-01-01T10:00:00"}))
	require.NoError(t, b.Ring(context.Background(), task.Task{ID: "2"}))

	assert.Equal(t, "\adue in 1 minute: Report (2024-01-01T10:00:00)\n\adue in 1 minute: task 2 ()\n", buf.String())
}

func TestEvent(t *testing.T) {
	bus := eventbus.New()
	_, ch := bus.Subscribe(1)

	require.NoError(t, NewEvent(bus).Ring(context.Background(), task.Task{ID: "1", Title: "Report", Deadline: "2024-01-01T10:00:00"}))

	ev := <-ch
	assert.Equal(t, eventbus.EventTaskAlarm, ev.Type)
	assert.Equal(t, "1", ev.ResourceID)
	assert.Equal(t, "2024-01-01T10:00:00", ev.Metadata["deadline"])
}

func TestSound_Command(t *testing.T) {
	tests := []struct {
		player string
		want   []string
	}{
		{"paplay {file}", []string{"paplay", "/tmp/alarm 1.wav"}},
		{"mpv --no-video", []string{"mpv", "--no-video", "/tmp/alarm 1.wav"}},
		{`ffplay -nodisp -autoexit "{file}"`, []string{"ffplay", "-nodisp", "-autoexit", "/tmp/alarm 1.wav"}},
		{"aplay --file={file}", []string{"aplay", "--file=/tmp/alarm 1.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.player, func(t *testing.T) {
			s, err := NewSound("/tmp/alarm 1.wav", tt.player, time.Second)
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, tt.want, s.Command())
		})
	}
}

func TestNewSound_Invalid(t *testing.T) {
	_, err := NewSound("", "paplay {file}", time.Second)
	assert.Error(t, err)

	_, err = NewSound("alarm.wav", "", time.Second)
	assert.Error(t, err)

	_, err = NewSound("alarm.wav", `paplay "unterminated`, time.Second)
	assert.Error(t, err)
}

func TestSound_Ring(t *testing.T) {
	s, err := NewSound("alarm.wav", "true {file}", time.Second)
	require.NoError(t, err)

	require.NoError(t, s.Ring(context.Background(), task.Task{ID: "1"}))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ring(context.Background(), task.Task{ID: "1"}), ErrClosed)
}

func TestSound_MissingPlayer(t *testing.T) {
	s, err := NewSound("alarm.wav", "no-such-player-infinitask {file}", time.Second)
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Ring(context.Background(), task.Task{ID: "1"}))
}

func TestSound_CloseStopsPlayback(t *testing.T) {
	s, err := NewSound("5", "sleep", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Ring(context.Background(), task.Task{ID: "1"}))

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not stop the player")
	}
}
