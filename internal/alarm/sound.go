package alarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"mvdan.cc/sh/v3/shell"

	"github.com/infinitech/infinitask/internal/task"
)

const filePlaceholder = "{file}"

var ErrClosed = errors.New("alarm closed")

// Sound plays a sound file through an external player. Playback runs in the
// background so a ring never holds up the caller; Close stops and waits for
// players still running.
type Sound struct {
	file    string
	argv    []string
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     *conc.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSound parses player with shell quoting rules. Every {file} is replaced
// with the sound file; without a placeholder the file is appended.
func NewSound(file, player string, timeout time.Duration) (*Sound, error) {
	if file == "" {
		return nil, errors.New("sound file is required")
	}
	argv, err := shell.Fields(player, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid player command %q: %w", player, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty player command")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sound{
		file:    file,
		argv:    argv,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		wg:      conc.NewWaitGroup(),
	}, nil
}

// Command returns the player invocation with the file substituted.
func (s *Sound) Command() []string {
	out := make([]string, 0, len(s.argv)+1)
	substituted := false
	for _, a := range s.argv {
		if strings.Contains(a, filePlaceholder) {
			a = strings.ReplaceAll(a, filePlaceholder, s.file)
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, s.file)
	}
	return out
}

// Ring starts the player. Only start failures are returned; a non-zero exit
// is logged when the player finishes.
func (s *Sound) Ring(_ context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	argv := s.Command()
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("alarm player: %w", err)
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start alarm player: %w", err)
	}
	s.wg.Go(func() {
		defer cancel()
		if err := cmd.Wait(); err != nil && s.ctx.Err() == nil {
			slog.Warn("alarm player failed", "task_id", t.ID, "error", err)
		}
	})
	return nil
}

func (s *Sound) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	return nil
}
