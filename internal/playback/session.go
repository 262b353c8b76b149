package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/auth"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/registry"
	"github.com/desertthunder/subx/internal/services"
	"github.com/desertthunder/subx/internal/shared"
)

// EventKind enumerates session notifications.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventPlaybackError
	EventServerChanged
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventPlaybackError:
		return "playback_error"
	case EventServerChanged:
		return "server_changed"
	default:
		return "unknown"
	}
}

// Event is published by a [Session]. Err is set for [EventPlaybackError]; ServerID for [EventServerChanged].
type Event struct {
	Kind     EventKind
	Track    models.Track
	Err      error
	ServerID string
}

// NoActiveServer reports whether the event is a playback error caused by having no active server.
func (e Event) NoActiveServer() bool {
	return e.Kind == EventPlaybackError && errors.Is(e.Err, shared.ErrNoActiveServer)
}

const eventBuffer = 16

// Session connects a [Queue] to an [Engine]. Stream URLs are signed for the server that is active when a track
// starts, never when it is queued.
type Session struct {
	queue   *Queue
	clients services.ClientSource
	engine  Engine
	logger  *log.Logger

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int

	stopFollow func()
	followDone chan struct{}
}

// NewSession creates a session over queue.
func NewSession(queue *Queue, clients services.ClientSource, engine Engine, logger *log.Logger) *Session {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Session{
		queue:   queue,
		clients: clients,
		engine:  engine,
		logger:  shared.WithLogger(logger, "component", "session"),
		subs:    make(map[int]chan Event),
	}
}

// Queue returns the session queue.
func (s *Session) Queue() *Queue { return s.queue }

// ResolvePlayableURL signs track's stream path for the server active right now.
func (s *Session) ResolvePlayableURL(ctx context.Context, track models.Track) (*auth.SignedRequest, error) {
	client, err := s.clients.Get(ctx)
	if err != nil {
		return nil, err
	}
	return client.StreamURL(track)
}

// SetQueue replaces the queue and starts playing at start.
func (s *Session) SetQueue(ctx context.Context, tracks []models.Track, start int) error {
	if err := s.queue.SetQueue(tracks, start); err != nil {
		return err
	}
	return s.Play(ctx)
}

// Play starts the current track. Failures are published as [EventPlaybackError] and returned; the queue is kept.
func (s *Session) Play(ctx context.Context) error {
	track, ok := s.queue.Current()
	if !ok {
		return fmt.Errorf("%w: queue is empty", shared.ErrIndex)
	}

	signed, err := s.ResolvePlayableURL(ctx, track)
	if err != nil {
		return s.fail(track, err)
	}
	if err := s.engine.Play(ctx, signed.URL, track); err != nil {
		return s.fail(track, err)
	}

	s.logger.Info("started track", "id", track.ID, "title", track.Title)
	s.publish(Event{Kind: EventStarted, Track: track})
	return nil
}

func (s *Session) fail(track models.Track, err error) error {
	s.logger.Warn("playback failed", "id", track.ID, "error", err)
	s.publish(Event{Kind: EventPlaybackError, Track: track, Err: err})
	return err
}

// Next advances and plays. At the end of the queue under [RepeatOff] playback stops.
func (s *Session) Next(ctx context.Context) error {
	if _, ok := s.queue.Next(); !ok {
		return s.Stop()
	}
	return s.Play(ctx)
}

// Previous moves back and plays. At the start under [RepeatOff] the current track restarts.
func (s *Session) Previous(ctx context.Context) error {
	s.queue.Previous()
	return s.Play(ctx)
}

// Stop halts the engine without touching the queue.
func (s *Session) Stop() error {
	if err := s.engine.Stop(); err != nil {
		return err
	}
	track, _ := s.queue.Current()
	s.publish(Event{Kind: EventStopped, Track: track})
	return nil
}

// Run plays from the current track until the queue ends, ctx is done or the engine is stopped.
// A track that fails to start is skipped; a missing server, or every track failing in a row, ends the run.
func (s *Session) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := s.Play(ctx); err != nil {
			if errors.Is(err, shared.ErrNoActiveServer) || errors.Is(err, shared.ErrIndex) || ctx.Err() != nil {
				return err
			}
			failures++
			if failures >= s.queue.Len() {
				return err
			}
		} else {
			failures = 0
			if err := s.engine.Wait(ctx); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				if ctx.Err() != nil {
					s.engine.Stop()
					return ctx.Err()
				}
				s.logger.Warn("track ended with error", "error", err)
			}
		}

		if _, ok := s.queue.Next(); !ok {
			s.publish(Event{Kind: EventStopped})
			return nil
		}
	}
}

// EventSource publishes registry events. [registry.Registry] implements it.
type EventSource interface {
	Subscribe() (<-chan registry.Event, func())
}

// Follow reacts to registry changes until [Session.Close]. A server switch does not stop playback;
// the next track is signed for the new server.
func (s *Session) Follow(source EventSource) {
	events, cancel := source.Subscribe()
	s.stopFollow = cancel
	s.followDone = make(chan struct{})

	go func() {
		defer close(s.followDone)
		for ev := range events {
			if ev.Kind == registry.EventEdited {
				continue
			}
			s.logger.Info("active server changed", "kind", ev.Kind, "active", ev.ActiveID())
			s.publish(Event{Kind: EventServerChanged, ServerID: ev.ActiveID()})
		}
	}()
}

// Close stops following the registry and closes subscriber channels.
func (s *Session) Close() {
	if s.stopFollow != nil {
		s.stopFollow()
		<-s.followDone
		s.stopFollow = nil
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Subscribe returns a channel of session events and a cancel func. When a subscriber falls behind the oldest
// pending event is dropped.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Session) publish(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
