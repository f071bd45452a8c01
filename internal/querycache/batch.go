package querycache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchOptions bounds how a range or key-set fetch hits the backend:
// chunks of at most ChunkSize items, at most Concurrency chunks in flight.
type BatchOptions struct {
	ChunkSize   int
	Concurrency int
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	return o
}

// FetchRange fetches the contiguous numeric range [start, end]. The range is
// split into chunks dispatched with bounded concurrency; every result lands
// at its index position, so output order matches numeric order no matter
// which chunk completes first. An inverted or empty range returns an empty
// slice without a single backend call.
func FetchRange[T any](ctx context.Context, start, end uint64, opts BatchOptions, fetch func(ctx context.Context, n uint64) (T, error)) ([]T, error) {
	if end < start {
		return []T{}, nil
	}
	opts = opts.withDefaults()

	total := end - start + 1
	results := make([]T, total)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for chunkStart := start; ; chunkStart += uint64(opts.ChunkSize) {
		chunkEnd := chunkStart + uint64(opts.ChunkSize) - 1
		if chunkEnd > end {
			chunkEnd = end
		}
		cs, ce := chunkStart, chunkEnd
		g.Go(func() error {
			for n := cs; n <= ce; n++ {
				v, err := fetch(ctx, n)
				if err != nil {
					return fmt.Errorf("fetch %d: %w", n, err)
				}
				results[n-start] = v
			}
			return nil
		})
		if chunkEnd == end {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// KeyError records a single failed lookup inside a key-set fetch.
type KeyError[K comparable] struct {
	Key K
	Err error
}

// FetchByKeys applies the same chunking strategy to an unordered key set,
// e.g. receipts for a list of transaction hashes. Duplicate keys collapse
// to one lookup. Failures are collected per key instead of failing the
// batch; callers re-index results via the returned map.
func FetchByKeys[K comparable, V any](ctx context.Context, keys []K, opts BatchOptions, fetch func(ctx context.Context, key K) (V, error)) (map[K]V, []KeyError[K]) {
	opts = opts.withDefaults()

	seen := make(map[K]bool, len(keys))
	unique := make([]K, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			unique = append(unique, k)
		}
	}

	out := make(map[K]V, len(unique))
	var failed []KeyError[K]
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, opts.Concurrency)

	for chunkStart := 0; chunkStart < len(unique); chunkStart += opts.ChunkSize {
		chunkEnd := chunkStart + opts.ChunkSize
		if chunkEnd > len(unique) {
			chunkEnd = len(unique)
		}
		chunk := unique[chunkStart:chunkEnd]

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			for _, k := range chunk {
				v, err := fetch(ctx, k)
				mu.Lock()
				if err != nil {
					failed = append(failed, KeyError[K]{Key: k, Err: err})
				} else {
					out[k] = v
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return out, failed
}
