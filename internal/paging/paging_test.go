package paging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

func numbered(prefix string, from, to int) []models.Album {
	albums := make([]models.Album, 0, to-from)
	for i := from; i < to; i++ {
		albums = append(albums, models.Album{ID: fmt.Sprintf("%s%d", prefix, i)})
	}
	return albums
}

// countingFetch serves total albums and counts calls.
func countingFetch(total int, calls *atomic.Int64) FetchFunc[models.Album] {
	all := numbered("al", 0, total)
	return func(ctx context.Context, offset, size int) (Page[models.Album], error) {
		calls.Add(1)
		return Slice(all)(ctx, offset, size)
	}
}

// gatedFetch blocks each call until a value is sent on its release channel.
type gatedFetch struct {
	mu      sync.Mutex
	pending []chan Page[models.Album]
	started chan int
}

func newGatedFetch() *gatedFetch {
	return &gatedFetch{started: make(chan int, 8)}
}

func (g *gatedFetch) fetch(ctx context.Context, offset, size int) (Page[models.Album], error) {
	ch := make(chan Page[models.Album], 1)
	g.mu.Lock()
	g.pending = append(g.pending, ch)
	g.mu.Unlock()
	g.started <- offset

	select {
	case page := <-ch:
		return page, nil
	case <-ctx.Done():
		// Simulate a server that ignores cancellation and answers anyway.
		return <-ch, nil
	}
}

func (g *gatedFetch) respond(t *testing.T, i int, page Page[models.Album]) {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if i >= len(g.pending) {
		t.Fatalf("no pending fetch %d", i)
	}
	g.pending[i] <- page
}

func waitStarted(t *testing.T, g *gatedFetch) int {
	t.Helper()
	select {
	case offset := <-g.started:
		return offset
	case <-time.After(time.Second):
		t.Fatal("fetch did not start")
		return 0
	}
}

func assertUnique(t *testing.T, items []models.Album) {
	t.Helper()
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.ID] {
			t.Fatalf("duplicate id %s", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("Exhausts after ceil(T/P) fetches", func(t *testing.T) {
		tests := []struct{ total, size int }{
			{0, 10}, {1, 10}, {10, 10}, {25, 10}, {40, 40}, {41, 40}, {7, 3},
		}

		for _, tt := range tests {
			t.Run(fmt.Sprintf("T=%d P=%d", tt.total, tt.size), func(t *testing.T) {
				var calls atomic.Int64
				e := New(countingFetch(tt.total, &calls), tt.size)

				if err := e.LoadInitial(ctx); err != nil {
					t.Fatalf("LoadInitial() error = %v", err)
				}
				for i := 0; i < 100 && !e.State().Exhausted; i++ {
					if err := e.LoadMore(ctx); err != nil {
						t.Fatalf("LoadMore() error = %v", err)
					}
				}

				s := e.State()
				if !s.Exhausted {
					t.Fatal("expected exhausted")
				}
				want := max((tt.total+tt.size-1)/tt.size, 1)
				if got := calls.Load(); got != int64(want) {
					t.Errorf("expected %d fetches, got %d", want, got)
				}
				if len(s.Items) != tt.total {
					t.Errorf("expected %d items, got %d", tt.total, len(s.Items))
				}
				assertUnique(t, s.Items)

				before := calls.Load()
				e.LoadMore(ctx)
				if e.OnScroll(len(s.Items) - 1) {
					t.Error("OnScroll started a fetch on an exhausted list")
				}
				if calls.Load() != before {
					t.Error("exhausted engine fetched again")
				}
			})
		}
	})

	t.Run("Overlapping pages are de-duplicated", func(t *testing.T) {
		e := New(func(ctx context.Context, offset, size int) (Page[models.Album], error) {
			// Each page repeats the last item of the previous one.
			start := max(offset-1, 0)
			return Page[models.Album]{Items: numbered("al", start, min(offset+size, 20)), HasMore: offset+size < 20}, nil
		}, 5)

		e.LoadInitial(ctx)
		for !e.State().Exhausted {
			e.LoadMore(ctx)
		}
		s := e.State()
		assertUnique(t, s.Items)
		if len(s.Items) != 20 {
			t.Errorf("expected 20 unique items, got %d", len(s.Items))
		}
	})

	t.Run("LoadMore before initial load is a no-op", func(t *testing.T) {
		var calls atomic.Int64
		e := New(countingFetch(10, &calls), 5)
		e.LoadMore(ctx)
		if calls.Load() != 0 || e.State().Phase != PhaseInitial {
			t.Error("expected no fetch before the initial load")
		}
	})

	t.Run("Initial error then retry", func(t *testing.T) {
		fail := true
		boom := errors.New("connection reset")
		e := New(func(ctx context.Context, offset, size int) (Page[models.Album], error) {
			if fail {
				return Page[models.Album]{}, boom
			}
			return Page[models.Album]{Items: numbered("al", 0, 3)}, nil
		}, 5)

		err := e.LoadInitial(ctx)
		if !errors.Is(err, shared.ErrPageLoad) || !errors.Is(err, boom) {
			t.Fatalf("expected ErrPageLoad wrapping the cause, got %v", err)
		}
		if e.State().Phase != PhaseError {
			t.Errorf("expected error phase, got %v", e.State().Phase)
		}

		fail = false
		if err := e.LoadInitial(ctx); err != nil {
			t.Fatalf("retry error = %v", err)
		}
		s := e.State()
		if s.Phase != PhaseContent || s.Err != nil || len(s.Items) != 3 {
			t.Errorf("unexpected state after retry: %+v", s)
		}
	})

	t.Run("Load more error keeps items", func(t *testing.T) {
		boom := fmt.Errorf("%w: timeout", shared.ErrNetwork)
		e := New(func(ctx context.Context, offset, size int) (Page[models.Album], error) {
			if offset > 0 {
				return Page[models.Album]{}, boom
			}
			return Page[models.Album]{Items: numbered("al", 0, 5), HasMore: true}, nil
		}, 5)

		e.LoadInitial(ctx)
		err := e.LoadMore(ctx)
		if !errors.Is(err, shared.ErrNetwork) || !errors.Is(err, shared.ErrPageLoad) {
			t.Fatalf("expected ErrPageLoad wrapping ErrNetwork, got %v", err)
		}

		s := e.State()
		if s.Phase != PhaseContent || len(s.Items) != 5 || s.Exhausted {
			t.Errorf("expected content with prior items, got %+v", s)
		}
		if s.LoadingMore() && s.Exhausted {
			t.Error("loading more and exhausted at once")
		}
	})

	t.Run("OnScroll triggers exactly one load", func(t *testing.T) {
		g := newGatedFetch()
		e := New(g.fetch, 10, WithThreshold(3))

		go e.LoadInitial(ctx)
		waitStarted(t, g)
		g.respond(t, 0, Page[models.Album]{Items: numbered("al", 0, 10), HasMore: true})
		e.Wait()

		if e.OnScroll(5) {
			t.Error("row 5 of 10 is outside the threshold")
		}
		if !e.OnScroll(6) {
			t.Fatal("row 6 of 10 should trigger a load")
		}
		for i := 7; i < 10; i++ {
			if e.OnScroll(i) {
				t.Fatal("repeated signal started a second load")
			}
		}
		if offset := waitStarted(t, g); offset != 10 {
			t.Errorf("expected offset 10, got %d", offset)
		}
		if !e.State().LoadingMore() {
			t.Error("expected loading more")
		}

		g.respond(t, 1, Page[models.Album]{Items: numbered("al", 10, 15)})
		e.Wait()

		s := e.State()
		if len(s.Items) != 15 || !s.Exhausted || s.LoadingMore() {
			t.Errorf("unexpected state %+v", s)
		}
	})

	t.Run("Refresh supersedes load more", func(t *testing.T) {
		g := newGatedFetch()
		e := New(g.fetch, 5)

		go e.LoadInitial(ctx)
		waitStarted(t, g)
		g.respond(t, 0, Page[models.Album]{Items: numbered("old", 0, 5), HasMore: true})
		e.Wait()

		if !e.OnScroll(4) {
			t.Fatal("expected load more")
		}
		waitStarted(t, g)

		refreshed := make(chan error, 1)
		go func() { refreshed <- e.Refresh(ctx) }()
		waitStarted(t, g)
		if e.State().Phase != PhaseRefreshing {
			t.Errorf("expected refreshing, got %v", e.State().Phase)
		}

		// The refresh answers first, then the stale load-more.
		g.respond(t, 2, Page[models.Album]{Items: numbered("new", 0, 3)})
		if err := <-refreshed; err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		g.respond(t, 1, Page[models.Album]{Items: numbered("old", 5, 10), HasMore: true})
		time.Sleep(20 * time.Millisecond)

		s := e.State()
		if len(s.Items) != 3 {
			t.Fatalf("expected only refreshed items, got %d", len(s.Items))
		}
		for _, item := range s.Items {
			if item.ID[:3] != "new" {
				t.Errorf("stale item %s mixed into refreshed list", item.ID)
			}
		}
		if !s.Exhausted || s.Offset != 3 {
			t.Errorf("expected refreshed offset and exhaustion, got %+v", s)
		}
	})

	t.Run("Cancel drops the response and allows later fetches", func(t *testing.T) {
		g := newGatedFetch()
		e := New(g.fetch, 5)

		go e.LoadInitial(ctx)
		waitStarted(t, g)
		g.respond(t, 0, Page[models.Album]{Items: numbered("al", 0, 5), HasMore: true})
		e.Wait()

		e.OnScroll(4)
		waitStarted(t, g)
		e.Cancel()

		if s := e.State(); s.Phase != PhaseContent || len(s.Items) != 5 {
			t.Errorf("expected content after cancel, got %+v", s)
		}
		g.respond(t, 1, Page[models.Album]{Items: numbered("al", 5, 10), HasMore: true})
		time.Sleep(20 * time.Millisecond)
		if len(e.State().Items) != 5 {
			t.Error("canceled page was applied")
		}

		if !e.OnScroll(4) {
			t.Fatal("expected a new load after cancel")
		}
		if offset := waitStarted(t, g); offset != 5 {
			t.Errorf("expected offset 5, got %d", offset)
		}
		g.respond(t, 2, Page[models.Album]{Items: numbered("al", 5, 8)})
		e.Wait()
		if len(e.State().Items) != 8 {
			t.Errorf("expected 8 items, got %d", len(e.State().Items))
		}
	})

	t.Run("Canceled caller context", func(t *testing.T) {
		e := New(func(ctx context.Context, offset, size int) (Page[models.Album], error) {
			<-ctx.Done()
			return Page[models.Album]{}, ctx.Err()
		}, 5)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if err := e.LoadInitial(cctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
		if s := e.State(); s.Phase != PhaseInitial || s.Err != nil {
			t.Errorf("expected initial phase without error, got %+v", s)
		}
	})

	t.Run("Subscribers see ordered states", func(t *testing.T) {
		var calls atomic.Int64
		e := New(countingFetch(3, &calls), 5)
		states, cancel := e.Subscribe()
		defer cancel()

		first := <-states
		if first.Phase != PhaseInitial {
			t.Errorf("expected initial snapshot, got %v", first.Phase)
		}

		e.LoadInitial(ctx)
		last := <-states
		if last.Phase != PhaseContent || len(last.Items) != 3 {
			t.Errorf("expected latest content state, got %+v", last)
		}
	})
}

func TestSources(t *testing.T) {
	ctx := context.Background()

	t.Run("Sized", func(t *testing.T) {
		fetch := Sized(func(ctx context.Context, offset, size int) ([]models.Album, error) {
			return numbered("al", offset, min(offset+size, 12)), nil
		})
		page, _ := fetch(ctx, 0, 10)
		if !page.HasMore || len(page.Items) != 10 {
			t.Errorf("full page should have more, got %+v", page)
		}
		page, _ = fetch(ctx, 10, 10)
		if page.HasMore || len(page.Items) != 2 {
			t.Errorf("unexpected last page %+v", page)
		}
	})

	t.Run("Sized exhausts after exactly ceil(total/size) fetches", func(t *testing.T) {
		tests := []struct {
			name        string
			total, size int
			wantFetches int
		}{
			{"multiple of the page size", 20, 10, 2},
			{"partial last page", 23, 10, 3},
			{"single full page", 10, 10, 1},
			{"empty", 0, 10, 1},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fetches := 0
				e := New(Sized(func(ctx context.Context, offset, size int) ([]models.Album, error) {
					fetches++
					return numbered("al", offset, min(offset+size, tt.total)), nil
				}), tt.size)

				if err := e.LoadInitial(ctx); err != nil {
					t.Fatalf("LoadInitial() error = %v", err)
				}
				for !e.State().Exhausted {
					if err := e.LoadMore(ctx); err != nil {
						t.Fatalf("LoadMore() error = %v", err)
					}
				}

				if fetches != tt.wantFetches {
					t.Errorf("fetches = %d, want %d", fetches, tt.wantFetches)
				}
				if got := len(e.State().Items); got != tt.total {
					t.Errorf("items = %d, want %d", got, tt.total)
				}
			})
		}
	})

	t.Run("All reloads on refresh", func(t *testing.T) {
		loads := 0
		fetch := All(func(ctx context.Context) ([]models.Album, error) {
			loads++
			return numbered("pl", 0, 7), nil
		})

		e := New(fetch, 5)
		e.LoadInitial(ctx)
		e.LoadMore(ctx)
		if s := e.State(); len(s.Items) != 7 || !s.Exhausted {
			t.Errorf("unexpected state %+v", s)
		}
		if loads != 1 {
			t.Errorf("expected 1 load, got %d", loads)
		}

		e.Refresh(ctx)
		if loads != 2 {
			t.Errorf("expected refresh to reload, got %d loads", loads)
		}
	})
}
