package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/auth"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/registry"
	"github.com/desertthunder/subx/internal/shared"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ProviderState is the resolution state of a [Provider].
type ProviderState int

const (
	StateIdle ProviderState = iota
	StateResolving
	StateReady
	StateFailed
)

func (s ProviderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ActiveSource is the part of the server registry the provider reads. [registry.Registry] implements it.
type ActiveSource interface {
	Active() (*models.ServerProfile, error)
	Revision() uint64
	Subscribe() (<-chan registry.Event, func())
}

// ClientFactory builds a client for a freshly resolved profile.
type ClientFactory func(profile *models.ServerProfile) *SubsonicClient

// NewClientFactory returns a factory sharing one signer, HTTP client and limiter across clients.
func NewClientFactory(signer *auth.Signer, httpClient *http.Client, limiter *rate.Limiter, logger *log.Logger) ClientFactory {
	return func(profile *models.ServerProfile) *SubsonicClient {
		return NewSubsonicClient(profile, signer, httpClient, limiter, logger)
	}
}

// Provider hands out the [SubsonicClient] for the currently active server.
//
// Resolution is lazy and coalesced: concurrent callers of [Provider.Get] share one in-flight resolution.
// Registry events move a ready provider back to idle; clients handed out earlier keep their old profile.
type Provider struct {
	source  ActiveSource
	factory ClientFactory
	logger  *log.Logger
	group   singleflight.Group

	mu       sync.Mutex
	state    ProviderState
	client   *SubsonicClient
	revision uint64
	lastErr  error

	resolutions atomic.Int64
	cancel      func()
	done        chan struct{}
}

// NewProvider creates a provider and starts watching source for invalidating events. Call [Provider.Close] to stop.
func NewProvider(source ActiveSource, factory ClientFactory, logger *log.Logger) *Provider {
	if logger == nil {
		logger = shared.NopLogger()
	}
	p := &Provider{
		source:  source,
		factory: factory,
		logger:  shared.WithLogger(logger, "component", "provider"),
		done:    make(chan struct{}),
	}

	events, cancel := source.Subscribe()
	p.cancel = cancel
	go p.watch(events)
	return p
}

func (p *Provider) watch(events <-chan registry.Event) {
	defer close(p.done)
	for ev := range events {
		p.logger.Debug("registry changed", "kind", ev.Kind, "active", ev.ActiveID())
		p.invalidateStale()
	}
}

// invalidateStale drops a cached client resolved before the registry's current revision.
func (p *Provider) invalidateStale() {
	rev := p.source.Revision()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateReady && p.revision != rev {
		p.logger.Debug("invalidated client", "server", p.client.ServerID())
		p.state = StateIdle
		p.client = nil
	}
}

// Close stops watching the registry.
func (p *Provider) Close() {
	p.cancel()
	<-p.done
}

// Invalidate drops the cached client. The next [Provider.Get] resolves again.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateIdle
	p.client = nil
	p.lastErr = nil
}

// State returns the current resolution state and, when failed, the error.
func (p *Provider) State() (ProviderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.lastErr
}

// Resolutions counts completed resolutions.
func (p *Provider) Resolutions() int64 {
	return p.resolutions.Load()
}

type pinnedClientKey struct{}

// WithClient pins client to ctx. [Provider.Get] and [Provider.AppendAuth] return or sign for the pinned client
// for ctx and every context derived from it, so a multi-request operation stays on the server it started on.
func WithClient(ctx context.Context, client *SubsonicClient) context.Context {
	return context.WithValue(ctx, pinnedClientKey{}, client)
}

// PinnedClient returns the client pinned to ctx by [WithClient], or nil.
func PinnedClient(ctx context.Context) *SubsonicClient {
	client, _ := ctx.Value(pinnedClientKey{}).(*SubsonicClient)
	return client
}

// Get returns the client for the active server, resolving it if needed. A client pinned to ctx with
// [WithClient] wins over the active server.
//
// It fails with [shared.ErrNoActiveServer] when the registry is empty. The returned client is never mutated;
// after a server switch callers must call Get again.
func (p *Provider) Get(ctx context.Context) (*SubsonicClient, error) {
	if client := PinnedClient(ctx); client != nil {
		return client, nil
	}
	rev := p.source.Revision()

	p.mu.Lock()
	if p.state == StateReady && p.revision == rev {
		client := p.client
		p.mu.Unlock()
		return client, nil
	}
	p.mu.Unlock()

	ch := p.group.DoChan(strconv.FormatUint(rev, 10), func() (any, error) {
		return p.resolve(rev)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*SubsonicClient), nil
	}
}

func (p *Provider) resolve(rev uint64) (*SubsonicClient, error) {
	p.mu.Lock()
	if p.state == StateReady && p.revision == rev {
		client := p.client
		p.mu.Unlock()
		return client, nil
	}
	p.state = StateResolving
	p.mu.Unlock()

	profile, err := p.source.Active()
	if err == nil {
		err = profile.Validate()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolutions.Add(1)

	if err != nil {
		p.state = StateFailed
		p.client = nil
		p.lastErr = err
		p.logger.Warn("failed to resolve client", "error", err)
		return nil, err
	}

	client := p.factory(profile)
	p.state = StateReady
	p.client = client
	p.revision = rev
	p.lastErr = nil
	p.logger.Info("resolved client", "server", profile.DisplayName(), "id", profile.ID())
	return client, nil
}

// AppendAuth signs rawURL for the active server. Interceptors that only hold a URL use this.
func (p *Provider) AppendAuth(ctx context.Context, rawURL string) (string, error) {
	client, err := p.Get(ctx)
	if err != nil {
		return "", err
	}
	signed, err := client.SignURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", rawURL, err)
	}
	return signed.URL, nil
}
