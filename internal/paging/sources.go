package paging

import (
	"context"
	"sync"
)

// Slice pages through an in-memory slice.
func Slice[T any](items []T) FetchFunc[T] {
	return func(_ context.Context, offset, size int) (Page[T], error) {
		if offset >= len(items) {
			return Page[T]{}, nil
		}
		end := min(offset+size, len(items))
		return Page[T]{Items: items[offset:end], HasMore: end < len(items)}, nil
	}
}

// Sized adapts a server call that takes offset and size and returns at most size items but no has-more flag.
// It asks for one item past the page, so the last page is known without an extra empty fetch.
func Sized[T any](load func(ctx context.Context, offset, size int) ([]T, error)) FetchFunc[T] {
	return func(ctx context.Context, offset, size int) (Page[T], error) {
		items, err := load(ctx, offset, size+1)
		if err != nil {
			return Page[T]{}, err
		}
		if len(items) > size {
			return Page[T]{Items: items[:size], HasMore: true}, nil
		}
		return Page[T]{Items: items}, nil
	}
}

// All adapts an endpoint without server-side paging. The full result is loaded when offset is 0 and
// sliced for later pages, so a refresh reloads it.
func All[T any](load func(ctx context.Context) ([]T, error)) FetchFunc[T] {
	var (
		mu    sync.Mutex
		cache []T
	)
	return func(ctx context.Context, offset, size int) (Page[T], error) {
		mu.Lock()
		defer mu.Unlock()

		if offset == 0 || cache == nil {
			items, err := load(ctx)
			if err != nil {
				return Page[T]{}, err
			}
			cache = items
		}
		return Slice(cache)(ctx, offset, size)
	}
}
