// Package sentinel supervises a child process: it restarts the child after a
// crash with exponential backoff and after the binary on disk is replaced.
package sentinel

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// GracePeriod is the time to wait after SIGTERM before sending SIGKILL.
	GracePeriod = 10 * time.Second

	// SuccessRunTime is how long the child must run before backoff resets.
	SuccessRunTime = 30 * time.Second

	// DebounceInterval is the delay after an fsnotify event before checking the checksum.
	DebounceInterval = 100 * time.Millisecond
)

type Config struct {
	// BinaryPath defaults to the running executable.
	BinaryPath string
	Args       []string
	Backoff    Backoff
}

// Sentinel manages the lifecycle of one child process.
type Sentinel struct {
	binaryPath string
	args       []string
	lastHash   [sha256.Size]byte
	backoff    *Backoff
}

func New(cfg Config) (*Sentinel, error) {
	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable path: %w", err)
		}
		binaryPath = exe
	}
	// Watch the real file location, not a symlink.
	binaryPath, err := filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symlinks for binary: %w", err)
	}
	hash, err := HashFile(binaryPath)
	if err != nil {
		return nil, err
	}
	backoff := cfg.Backoff
	backoff.Reset()
	return &Sentinel{
		binaryPath: binaryPath,
		args:       cfg.Args,
		lastHash:   hash,
		backoff:    &backoff,
	}, nil
}

// Run supervises the child until ctx is done, then stops it and returns.
func (s *Sentinel) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "starting sentinel", "binary", s.binaryPath, "hash", fmt.Sprintf("%x", s.lastHash[:8]))

	updateCh := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	go func() { watchErr <- s.watchBinary(ctx, updateCh) }()

	for {
		if ctx.Err() != nil {
			return nil
		}

		child, err := s.startChild()
		if err != nil {
			slog.ErrorContext(ctx, "failed to start child", "error", err)
			if !s.sleep(ctx, s.backoff.Next()) {
				return nil
			}
			continue
		}
		startTime := time.Now()

		childDone := make(chan error, 1)
		go func() {
			childDone <- child.Wait()
		}()

		if !s.supervise(ctx, child, startTime, childDone, updateCh, &watchErr) {
			slog.InfoContext(ctx, "sentinel exiting")
			return nil
		}
	}
}

// supervise waits for one child to finish. It reports false when the
// sentinel should stop.
func (s *Sentinel) supervise(ctx context.Context, child *exec.Cmd, startTime time.Time, childDone <-chan error, updateCh <-chan struct{}, watchErr *chan error) bool {
	for {
		select {
		case err := <-childDone:
			elapsed := time.Since(startTime)
			if elapsed >= SuccessRunTime {
				s.backoff.Reset()
			}
			if err != nil {
				slog.WarnContext(ctx, "child exited with error", "elapsed", elapsed, "error", err)
			} else {
				// run never exits on its own, so a clean exit still warrants a restart.
				slog.InfoContext(ctx, "child exited cleanly", "elapsed", elapsed)
			}
			return s.sleep(ctx, s.backoff.Next())

		case <-updateCh:
			slog.InfoContext(ctx, "binary update detected, restarting child")
			s.stopChild(ctx, child)
			<-childDone
			if h, err := HashFile(s.binaryPath); err == nil {
				s.lastHash = h
			}
			s.backoff.Reset()
			return true

		case err := <-*watchErr:
			slog.WarnContext(ctx, "binary watcher stopped, updates will not be detected", "error", err)
			*watchErr = nil

		case <-ctx.Done():
			slog.InfoContext(ctx, "forwarding shutdown to child")
			s.stopChild(ctx, child)
			<-childDone
			return false
		}
	}
}

func (s *Sentinel) startChild() (*exec.Cmd, error) {
	cmd := exec.Command(s.binaryPath, s.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", s.binaryPath, err)
	}
	slog.Info("started child process", "pid", cmd.Process.Pid)
	return cmd, nil
}

// stopChild sends SIGTERM and a SIGKILL after GracePeriod if the child is
// still alive. The caller drains the Wait result.
func (s *Sentinel) stopChild(ctx context.Context, cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.WarnContext(ctx, "failed to send SIGTERM", "pid", pid, "error", err)
		return
	}
	time.AfterFunc(GracePeriod, func() {
		if err := cmd.Process.Signal(syscall.Signal(0)); err == nil {
			slog.Warn("grace period expired, killing child", "pid", pid)
			_ = cmd.Process.Kill()
		}
	})
}

// watchBinary watches the binary's directory, since atomic deploys replace
// the file by rename. A notification is sent only when the checksum changes.
func (s *Sentinel) watchBinary(ctx context.Context, updateCh chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watchDir := filepath.Dir(s.binaryPath)
	binaryName := filepath.Base(s.binaryPath)
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("watch %s: %w", watchDir, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	lastHash := s.lastHash

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != binaryName || !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DebounceInterval, func() {
				newHash, err := HashFile(s.binaryPath)
				if err != nil || newHash == lastHash {
					return
				}
				lastHash = newHash
				select {
				case updateCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "fsnotify error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Sentinel) sleep(ctx context.Context, d time.Duration) bool {
	slog.InfoContext(ctx, "waiting before restart", "backoff", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// HashFile computes the SHA256 hash of the file at the given path.
func HashFile(path string) ([sha256.Size]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("hash %s: %w", path, err)
	}
	var result [sha256.Size]byte
	copy(result[:], h.Sum(nil))
	return result, nil
}
