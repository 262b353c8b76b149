package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/fhs/gompd/v2/mpd"
)

// DefaultPollInterval is how often [MPDEngine.Wait] asks the daemon for its state.
const DefaultPollInterval = 500 * time.Millisecond

// MPDEngine plays streams on a Music Player Daemon. Each Play replaces the daemon's queue with the signed URL,
// so MPD needs its curl input plugin enabled.
type MPDEngine struct {
	addr     string
	password string
	poll     time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	client  *mpd.Client
	gen     uint64
	stopped bool
}

// NewMPDEngine creates an engine for the daemon at addr (host:port). The connection is opened on first use.
func NewMPDEngine(addr, password string, logger *log.Logger) *MPDEngine {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &MPDEngine{
		addr:     addr,
		password: password,
		poll:     DefaultPollInterval,
		logger:   shared.WithLogger(logger, "component", "mpd"),
	}
}

// connectLocked dials the daemon, or pings the open connection and redials when it dropped.
func (e *MPDEngine) connectLocked() error {
	if e.client != nil {
		if err := e.client.Ping(); err == nil {
			return nil
		}
		e.logger.Warn("connection lost, reconnecting", "addr", e.addr)
		e.client.Close()
		e.client = nil
	}

	var (
		client *mpd.Client
		err    error
	)
	if e.password != "" {
		client, err = mpd.DialAuthenticated("tcp", e.addr, e.password)
	} else {
		client, err = mpd.Dial("tcp", e.addr)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to connect to mpd at %s: %v", shared.ErrNetwork, e.addr, err)
	}

	e.client = client
	e.logger.Debug("connected", "addr", e.addr)
	return nil
}

// Play implements [Engine].
func (e *MPDEngine) Play(ctx context.Context, streamURL string, track models.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.connectLocked(); err != nil {
		return err
	}
	if err := e.client.Clear(); err != nil {
		return fmt.Errorf("mpd clear: %w", err)
	}
	if err := e.client.Add(streamURL); err != nil {
		return fmt.Errorf("mpd add: %w", err)
	}
	if err := e.client.Play(0); err != nil {
		return fmt.Errorf("mpd play: %w", err)
	}

	e.gen++
	e.stopped = false
	e.logger.Info("playing", "track", track.Title, "artist", track.Artist)
	return nil
}

// Stop implements [Engine].
func (e *MPDEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	e.stopped = true
	if err := e.client.Stop(); err != nil {
		return fmt.Errorf("mpd stop: %w", err)
	}
	return nil
}

// Wait implements [Engine] by polling the daemon until it leaves the play and pause states. A Stop or a newer
// Play in the meantime yields [ErrStopped].
func (e *MPDEngine) Wait(ctx context.Context) error {
	e.mu.Lock()
	gen := e.gen
	idle := e.client == nil
	e.mu.Unlock()
	if idle {
		return nil
	}

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		done, err := e.finished(gen)
		if done {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *MPDEngine) finished(gen uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen || e.stopped {
		return true, ErrStopped
	}
	if err := e.connectLocked(); err != nil {
		return true, err
	}

	status, err := e.client.Status()
	if err != nil {
		return true, fmt.Errorf("mpd status: %w", err)
	}
	switch status["state"] {
	case "play", "pause":
		return false, nil
	}
	if msg := status["error"]; msg != "" {
		return true, fmt.Errorf("mpd: %s", msg)
	}
	return true, nil
}

// Close drops the daemon connection.
func (e *MPDEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
