package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// Engine plays one stream at a time.
type Engine interface {
	// Play starts streamURL, replacing whatever is playing.
	Play(ctx context.Context, streamURL string, track models.Track) error
	// Stop halts playback. Stopping an idle engine is not an error.
	Stop() error
	// Wait blocks until the current stream ends or ctx is done.
	Wait(ctx context.Context) error
}

// ErrStopped is returned by [ExecEngine.Wait] when playback was stopped rather than finished.
var ErrStopped = errors.New("playback stopped")

// ExecEngine plays streams with an external command such as mpv. The signed URL is the last argument.
type ExecEngine struct {
	command string
	args    []string
	logger  *log.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	err     error
	stopped bool
}

// NewExecEngine creates an engine running command with args.
func NewExecEngine(command string, args []string, logger *log.Logger) *ExecEngine {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &ExecEngine{command: command, args: args, logger: shared.WithLogger(logger, "component", "player")}
}

// Play implements [Engine]. The process outlives ctx; use [ExecEngine.Stop] to end it.
func (e *ExecEngine) Play(ctx context.Context, streamURL string, track models.Track) error {
	if err := e.Stop(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append(append([]string{}, e.args...), streamURL)
	cmd := exec.Command(e.command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.command, err)
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.cmd, e.done, e.err, e.stopped = cmd, done, nil, false
	e.mu.Unlock()

	e.logger.Info("playing", "track", track.Title, "artist", track.Artist, "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		e.mu.Lock()
		if e.cmd == cmd {
			e.err = err
		}
		e.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop implements [Engine].
func (e *ExecEngine) Stop() error {
	e.mu.Lock()
	cmd, done := e.cmd, e.done
	if cmd != nil {
		e.stopped = true
	}
	e.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop player: %w", err)
	}
	<-done
	e.logger.Debug("stopped player", "pid", cmd.Process.Pid)
	return nil
}

// Wait implements [Engine]. It returns [ErrStopped] when the stream was stopped and the player's exit error
// when it failed.
func (e *ExecEngine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != done {
		return ErrStopped
	}
	if e.stopped {
		return ErrStopped
	}
	if e.err != nil {
		return fmt.Errorf("%s exited: %w", e.command, e.err)
	}
	return nil
}
