package querycache

import (
	"context"
	"sync"
)

// ItemError records the failure of one fan-out item.
type ItemError[K comparable] struct {
	Item K
	Err  error
}

// FanOutResult aggregates N independent per-item queries. IsLoading is true
// while any item is still pending, IsError is true if any item failed, and
// Data always holds whatever succeeded so far. One slow or failing item
// never hides the other nine.
type FanOutResult[K comparable, V any] struct {
	Data      map[K]V
	IsLoading bool
	IsError   bool
	Errors    []ItemError[K]
}

// FanOut runs one query per item concurrently through the executor, so each
// item still coalesces with any other subscriber of the same key. It waits
// until every item settles or ctx expires; on expiry the unfinished items
// are reported as still loading and the settled partial data is returned.
func FanOut[K comparable, V any](ctx context.Context, c *Cache, items []K, build func(item K) Query[V]) FanOutResult[K, V] {
	res := FanOutResult[K, V]{Data: make(map[K]V, len(items))}
	if len(items) == 0 {
		return res
	}

	var mu sync.Mutex
	pending := len(items)
	done := make(chan struct{})

	for _, item := range items {
		go func(item K) {
			v, err := Fetch(ctx, c, build(item))

			mu.Lock()
			if err != nil {
				res.Errors = append(res.Errors, ItemError[K]{Item: item, Err: err})
			} else {
				res.Data[item] = v
			}
			pending--
			finished := pending == 0
			mu.Unlock()

			if finished {
				close(done)
			}
		}(item)
	}

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	res.IsLoading = pending > 0
	res.IsError = len(res.Errors) > 0

	// Snapshot under the lock: goroutines may still be settling after a
	// context expiry and must not race readers of the returned maps.
	snapshot := FanOutResult[K, V]{
		Data:      make(map[K]V, len(res.Data)),
		IsLoading: res.IsLoading,
		IsError:   res.IsError,
		Errors:    append([]ItemError[K](nil), res.Errors...),
	}
	for k, v := range res.Data {
		snapshot.Data[k] = v
	}
	return snapshot
}
