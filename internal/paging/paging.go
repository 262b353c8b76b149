// Package paging implements the incremental list loader shared by every "browse N items" view.
//
// An [Engine] owns one list. It runs at most one fetch at a time, drops responses that were superseded
// by a refresh or cancellation, de-duplicates items by key and republishes its [State] to subscribers.
package paging

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// DefaultThreshold is the number of rows from the end that counts as "bottom reached".
const DefaultThreshold = 5

// Phase is the coarse state of an [Engine].
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseLoadingInitial
	PhaseContent
	PhaseLoadingMore
	PhaseRefreshing
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseLoadingInitial:
		return "loading_initial"
	case PhaseContent:
		return "content"
	case PhaseLoadingMore:
		return "loading_more"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Page is one fetch result.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// FetchFunc loads size items starting at offset.
type FetchFunc[T any] func(ctx context.Context, offset, size int) (Page[T], error)

// State is an immutable snapshot of an engine.
type State[T any] struct {
	Items     []T
	Offset    int
	Phase     Phase
	Exhausted bool
	// Err is the last page error wrapped in [shared.ErrPageLoad]; loaded items are kept.
	Err error
}

func (s State[T]) LoadingInitial() bool { return s.Phase == PhaseLoadingInitial }
func (s State[T]) LoadingMore() bool    { return s.Phase == PhaseLoadingMore }
func (s State[T]) Refreshing() bool     { return s.Phase == PhaseRefreshing }

type fetchKind int

const (
	fetchInitial fetchKind = iota
	fetchMore
	fetchRefresh
)

// Engine is a paginated list state machine. It is safe for concurrent use.
type Engine[T models.Identifiable] struct {
	fetch     FetchFunc[T]
	pageSize  int
	threshold int
	logger    *log.Logger

	mu         sync.Mutex
	state      State[T]
	seen       map[string]struct{}
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}

	subsMu  sync.Mutex
	subs    map[int]chan State[T]
	nextSub int
}

// Option configures an [Engine].
type Option func(*options)

type options struct {
	threshold int
	logger    *log.Logger
}

// WithThreshold sets how many rows from the end trigger a load in [Engine.OnScroll].
func WithThreshold(n int) Option {
	return func(o *options) { o.threshold = n }
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an engine that requests pageSize items per fetch.
func New[T models.Identifiable](fetch FetchFunc[T], pageSize int, opts ...Option) *Engine[T] {
	o := options{threshold: DefaultThreshold, logger: shared.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	if o.threshold < 0 {
		o.threshold = 0
	}

	return &Engine[T]{
		fetch:     fetch,
		pageSize:  pageSize,
		threshold: o.threshold,
		logger:    o.logger,
		seen:      make(map[string]struct{}),
		subs:      make(map[int]chan State[T]),
	}
}

// State returns a snapshot of the current state.
func (e *Engine[T]) State() State[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine[T]) snapshot() State[T] {
	s := e.state
	s.Items = slices.Clone(e.state.Items)
	return s
}

// LoadInitial fetches the first page. It is a no-op unless the engine is in its initial or error phase.
func (e *Engine[T]) LoadInitial(ctx context.Context) error {
	return e.run(ctx, fetchInitial)
}

// LoadMore fetches the next page. It is a no-op while another fetch is in flight or the list is exhausted.
func (e *Engine[T]) LoadMore(ctx context.Context) error {
	return e.run(ctx, fetchMore)
}

// Refresh reloads from offset 0, superseding any in-flight fetch. Items are replaced when the fetch succeeds.
func (e *Engine[T]) Refresh(ctx context.Context) error {
	return e.run(ctx, fetchRefresh)
}

// OnScroll reports the last visible row. When it is within the threshold of the end, one background
// load-more starts and OnScroll returns true. Repeated signals while loading or exhausted are no-ops.
func (e *Engine[T]) OnScroll(lastVisible int) bool {
	e.mu.Lock()
	if lastVisible < len(e.state.Items)-1-e.threshold {
		e.mu.Unlock()
		return false
	}
	t, ok := e.begin(context.Background(), fetchMore)
	e.mu.Unlock()
	if !ok {
		return false
	}

	go e.execute(t)
	return true
}

// Wait blocks until the in-flight fetch, if any, has been applied or dropped.
func (e *Engine[T]) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Cancel aborts the in-flight fetch. Its response is dropped and the engine returns to its last stable phase.
func (e *Engine[T]) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return
	}

	e.cancel()
	e.generation++
	e.settle()
	e.logger.Debug("canceled fetch")
	e.publish(e.snapshot())
}

// ticket identifies one started fetch.
type ticket struct {
	ctx    context.Context
	gen    uint64
	kind   fetchKind
	offset int
}

func (e *Engine[T]) run(ctx context.Context, kind fetchKind) error {
	e.mu.Lock()
	t, ok := e.begin(ctx, kind)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.execute(t)
}

// begin decides whether kind may start and moves to its loading phase. Caller holds mu.
func (e *Engine[T]) begin(ctx context.Context, kind fetchKind) (ticket, bool) {
	inFlight := e.cancel != nil

	switch kind {
	case fetchInitial:
		if inFlight || (e.state.Phase != PhaseInitial && e.state.Phase != PhaseError) {
			return ticket{}, false
		}
		e.state.Phase = PhaseLoadingInitial
	case fetchMore:
		if inFlight || e.state.Phase != PhaseContent || e.state.Exhausted {
			return ticket{}, false
		}
		e.state.Phase = PhaseLoadingMore
	case fetchRefresh:
		if inFlight {
			e.cancel()
			e.release()
			e.logger.Debug("refresh superseded in-flight fetch")
		}
		if len(e.state.Items) == 0 {
			e.state.Phase = PhaseLoadingInitial
		} else {
			e.state.Phase = PhaseRefreshing
		}
	}

	e.generation++
	fctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.publish(e.snapshot())

	t := ticket{ctx: fctx, gen: e.generation, kind: kind}
	if kind == fetchMore {
		t.offset = e.state.Offset
	}
	return t, true
}

// release clears the in-flight fetch and wakes waiters. Caller holds mu.
func (e *Engine[T]) release() {
	e.cancel = nil
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
}

// settle releases the in-flight fetch and returns to the last stable phase. Caller holds mu.
func (e *Engine[T]) settle() {
	e.release()
	switch {
	case len(e.state.Items) > 0 || e.state.Exhausted:
		e.state.Phase = PhaseContent
	case e.state.Err != nil:
		e.state.Phase = PhaseError
	default:
		e.state.Phase = PhaseInitial
	}
}

func (e *Engine[T]) execute(t ticket) error {
	page, err := e.fetch(t.ctx, t.offset, e.pageSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	if t.gen != e.generation {
		e.logger.Debug("dropped superseded page", "offset", t.offset)
		return nil
	}

	if ctxErr := t.ctx.Err(); ctxErr != nil {
		e.cancel()
		e.settle()
		e.publish(e.snapshot())
		return ctxErr
	}

	e.cancel()
	e.release()
	if err != nil {
		e.applyError(t.kind, err)
	} else {
		e.applyPage(t.kind, t.offset, page)
	}
	e.publish(e.snapshot())
	return e.state.Err
}

// applyPage merges a successful page. Caller holds mu.
func (e *Engine[T]) applyPage(kind fetchKind, offset int, page Page[T]) {
	if kind != fetchMore {
		e.state.Items = nil
		e.seen = make(map[string]struct{})
	}

	for _, item := range page.Items {
		key := item.Key()
		if _, dup := e.seen[key]; dup {
			continue
		}
		e.seen[key] = struct{}{}
		e.state.Items = append(e.state.Items, item)
	}

	e.state.Offset = offset + len(page.Items)
	e.state.Exhausted = !page.HasMore || len(page.Items) == 0
	e.state.Err = nil
	e.state.Phase = PhaseContent
	e.logger.Debug("applied page", "offset", offset, "items", len(page.Items), "exhausted", e.state.Exhausted)
}

// applyError records a failed fetch without discarding loaded items. Caller holds mu.
func (e *Engine[T]) applyError(kind fetchKind, err error) {
	if errors.Is(err, shared.ErrPageLoad) {
		e.state.Err = err
	} else {
		e.state.Err = fmt.Errorf("%w: %w", shared.ErrPageLoad, err)
	}

	if kind == fetchInitial || len(e.state.Items) == 0 {
		e.state.Phase = PhaseError
	} else {
		e.state.Phase = PhaseContent
	}
	e.logger.Warn("page load failed", "error", err)
}
