package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"emberscan/internal/metrics"
	"emberscan/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Query describes one cacheable fetch. Multiple callers issuing queries
// with the same Key share a single in-flight fetch.
type Query[T any] struct {
	Key   Key
	Fetch func(ctx context.Context) (T, error)

	// StaleTime overrides the domain tier TTL when set.
	StaleTime time.Duration

	// Disabled short-circuits the whole pipeline: no fetch, no loading
	// state. Set while required parameters are not yet known.
	Disabled bool

	// RefetchInterval makes Watch re-run the fetch periodically. The
	// ticker stops when the last watcher for the key detaches.
	RefetchInterval time.Duration
}

// Result is the observable state of a query at one point in time.
type Result[T any] struct {
	Data      T
	IsLoading bool
	IsError   bool
	Error     error
	Stale     bool
	UpdatedAt time.Time
}

// HasData reports whether Data holds a fetched value (fresh or stale).
func (r Result[T]) HasData() bool {
	return !r.UpdatedAt.IsZero()
}

// ErrTypeMismatch reports that the value cached under a key does not have
// the type the query asked for, i.e. two queries share a key with
// different result types. Always a caller bug; never swallowed.
var ErrTypeMismatch = errors.New("cached value type mismatch")

type fetchFn func(ctx context.Context) (any, error)

// Cache orchestrates query execution over a Store: fresh entries are served
// synchronously, stale entries are served while a background refetch runs,
// and concurrent misses for one key coalesce into a single backend call.
type Cache struct {
	store *Store
	tiers *TierTable
	log   *logger.Logger

	group singleflight.Group
	seq   atomic.Uint64

	// RetryBackoff is the pause before the single automatic retry of a
	// failed fetch. FetchTimeout bounds detached background refetches.
	RetryBackoff time.Duration
	FetchTimeout time.Duration

	mu       sync.Mutex
	lastErr  map[Key]error
	inFlight map[Key]bool
	watchers map[Key]*watchEntry
}

type watchEntry struct {
	count      int
	stopTicker chan struct{}
}

// NewCache creates an executor over the given store and tier table.
func NewCache(store *Store, tiers *TierTable, log *logger.Logger) *Cache {
	return &Cache{
		store:        store,
		tiers:        tiers,
		log:          log,
		RetryBackoff: 250 * time.Millisecond,
		FetchTimeout: 30 * time.Second,
		lastErr:      make(map[Key]error),
		inFlight:     make(map[Key]bool),
		watchers:     make(map[Key]*watchEntry),
	}
}

// Store exposes the underlying store for direct reads and subscriptions.
func (c *Cache) Store() *Store { return c.store }

// Tiers exposes the staleness policy table.
func (c *Cache) Tiers() *TierTable { return c.tiers }

// Invalidate evicts one key and clears its error state.
func (c *Cache) Invalidate(key Key) {
	c.store.Invalidate(key)
	c.mu.Lock()
	delete(c.lastErr, key)
	c.mu.Unlock()
}

// InvalidateDomain evicts every key of a domain.
func (c *Cache) InvalidateDomain(domain string) {
	c.store.InvalidateDomain(domain)
	c.mu.Lock()
	for key := range c.lastErr {
		if key.InDomain(domain) {
			delete(c.lastErr, key)
		}
	}
	c.mu.Unlock()
}

// Reset drops the whole store, e.g. after a dev-node chain reset.
func (c *Cache) Reset() {
	c.store.Reset()
	c.mu.Lock()
	c.lastErr = make(map[Key]error)
	c.mu.Unlock()
}

// Fetch resolves a query, blocking until data is available. Fresh entries
// return without a backend call; stale entries return immediately while a
// background refetch runs; misses fetch through the coalescing group.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	if q.Disabled {
		return zero, nil
	}

	domain := q.Key.Domain()
	ttl := c.ttlForKey(q.Key, q.StaleTime)

	if e, ok := c.store.Lookup(q.Key); ok {
		if v, ok := e.Value.(T); ok {
			if e.Fresh(time.Now()) {
				metrics.CacheHitsTotal.WithLabelValues(domain).Inc()
				return v, nil
			}
			metrics.CacheStaleServedTotal.WithLabelValues(domain).Inc()
			c.refetchAsync(q.Key, ttl, asAny(q.Fetch))
			return v, nil
		}
	}

	metrics.CacheMissesTotal.WithLabelValues(domain).Inc()
	v, err := c.fetch(ctx, q.Key, ttl, asAny(q.Fetch), false)
	if err != nil {
		return zero, err
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	return zero, fmt.Errorf("%w for key %s", ErrTypeMismatch, q.Key)
}

// Run is the non-blocking read used by observers: it reports the current
// state of the key and kicks off whatever fetch the state calls for.
func Run[T any](ctx context.Context, c *Cache, q Query[T]) Result[T] {
	var r Result[T]
	if q.Disabled {
		return r
	}

	domain := q.Key.Domain()
	ttl := c.ttlForKey(q.Key, q.StaleTime)
	now := time.Now()

	if e, ok := c.store.Lookup(q.Key); ok {
		if v, ok := e.Value.(T); ok {
			r.Data = v
			r.UpdatedAt = e.FetchedAt
			if e.Fresh(now) {
				metrics.CacheHitsTotal.WithLabelValues(domain).Inc()
			} else {
				r.Stale = true
				metrics.CacheStaleServedTotal.WithLabelValues(domain).Inc()
				c.refetchAsync(q.Key, ttl, asAny(q.Fetch))
			}
			if err := c.errFor(q.Key); err != nil {
				r.IsError = true
				r.Error = err
			}
			return r
		}
	}

	metrics.CacheMissesTotal.WithLabelValues(domain).Inc()
	if err := c.errFor(q.Key); err != nil && !c.isInFlight(q.Key) {
		// Both attempts failed and nothing is retrying; surface the error
		// until an explicit invalidation or refetch clears it.
		r.IsError = true
		r.Error = err
		return r
	}

	r.IsLoading = true
	c.refetchAsync(q.Key, ttl, asAny(q.Fetch))
	return r
}

// Refetch forces a fetch for the query even when a fresh entry exists,
// still coalescing with any concurrent fetch for the key.
func Refetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	if q.Disabled {
		return zero, nil
	}
	v, err := c.fetch(ctx, q.Key, c.ttlForKey(q.Key, q.StaleTime), asAny(q.Fetch), true)
	if err != nil {
		return zero, err
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	return zero, fmt.Errorf("%w for key %s", ErrTypeMismatch, q.Key)
}

// Prefetch warms the cache for a query, e.g. ahead of an expected page view.
func Prefetch[T any](ctx context.Context, c *Cache, q Query[T]) error {
	_, err := Fetch(ctx, c, q)
	return err
}

// Peek reads the cache directly without triggering any fetch.
func Peek[T any](c *Cache, key Key) (T, bool) {
	var zero T
	e, ok := c.store.Lookup(key)
	if !ok {
		return zero, false
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Watch subscribes to a query: notify is called with the current state
// immediately and again after every store update to the key. When the query
// has a RefetchInterval, a per-key ticker re-runs the fetch while at least
// one watcher is attached; the last detach stops it. An in-flight fetch is
// never cancelled by a detach, its result still lands in the store.
func Watch[T any](c *Cache, q Query[T], notify func(Result[T])) (stop func()) {
	if q.Disabled {
		return func() {}
	}

	updates, cancelSub := c.store.Subscribe(q.Key)
	done := make(chan struct{})

	notify(Run(context.Background(), c, q))
	c.addWatcher(q.Key, q.RefetchInterval, c.ttlForKey(q.Key, q.StaleTime), asAny(q.Fetch))

	go func() {
		for {
			select {
			case <-done:
				return
			case <-updates:
				notify(Run(context.Background(), c, q))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			cancelSub()
			c.removeWatcher(q.Key)
		})
	}
}

func (c *Cache) ttlForKey(key Key, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return c.tiers.TTL(key.Domain())
}

func asAny[T any](fn func(ctx context.Context) (T, error)) fetchFn {
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}

// fetch runs the coalesced fetch path for one key. All concurrent callers
// funnel through the singleflight group; exactly one executes fn. With
// force unset, the winner re-checks the store first since a fresh entry may
// have landed while it queued.
func (c *Cache) fetch(ctx context.Context, key Key, ttl time.Duration, fn fetchFn, force bool) (any, error) {
	domain := key.Domain()

	v, err, shared := c.group.Do(string(key), func() (any, error) {
		c.setInFlight(key, true)
		defer c.setInFlight(key, false)

		if !force {
			if e, ok := c.store.Lookup(key); ok && e.Fresh(time.Now()) {
				return e.Value, nil
			}
		}

		seq := c.seq.Add(1)
		value, err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			metrics.FetchRetriesTotal.WithLabelValues(domain).Inc()
			select {
			case <-time.After(c.RetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			value, err = fn(ctx)
		}
		if err != nil {
			metrics.FetchesTotal.WithLabelValues(domain, "error").Inc()
			c.setErr(key, err)
			return nil, err
		}

		metrics.FetchesTotal.WithLabelValues(domain, "success").Inc()
		c.store.Put(key, value, ttl, seq)
		c.clearErr(key)
		return value, nil
	})
	if shared {
		metrics.CoalescedRequestsTotal.WithLabelValues(domain).Inc()
	}
	return v, err
}

// refetchAsync starts a detached background fetch. The context is
// deliberately not the caller's: a subscriber detaching must not cancel a
// fetch whose result can still populate the cache.
func (c *Cache) refetchAsync(key Key, ttl time.Duration, fn fetchFn) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.FetchTimeout)
		defer cancel()
		if _, err := c.fetch(ctx, key, ttl, fn, false); err != nil {
			c.log.Warn("background refetch failed for %s: %v", key, err)
		}
	}()
}

func (c *Cache) addWatcher(key Key, interval, ttl time.Duration, fn fetchFn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.watchers[key]
	if w == nil {
		w = &watchEntry{}
		c.watchers[key] = w
	}
	w.count++

	if interval > 0 && w.stopTicker == nil {
		stop := make(chan struct{})
		w.stopTicker = stop
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), c.FetchTimeout)
					if _, err := c.fetch(ctx, key, ttl, fn, true); err != nil {
						c.log.Warn("interval refetch failed for %s: %v", key, err)
					}
					cancel()
				}
			}
		}()
	}
}

func (c *Cache) removeWatcher(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.watchers[key]
	if w == nil {
		return
	}
	w.count--
	if w.count <= 0 {
		if w.stopTicker != nil {
			close(w.stopTicker)
		}
		delete(c.watchers, key)
	}
}

func (c *Cache) setInFlight(key Key, v bool) {
	c.mu.Lock()
	if v {
		c.inFlight[key] = true
	} else {
		delete(c.inFlight, key)
	}
	c.mu.Unlock()
}

func (c *Cache) isInFlight(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[key]
}

func (c *Cache) setErr(key Key, err error) {
	c.mu.Lock()
	c.lastErr[key] = err
	c.mu.Unlock()
}

func (c *Cache) clearErr(key Key) {
	c.mu.Lock()
	delete(c.lastErr, key)
	c.mu.Unlock()
}

func (c *Cache) errFor(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr[key]
}
