package querycache

import (
	"sync"
	"time"

	"emberscan/internal/metrics"
)

// Entry is a read-only snapshot of one cached value. Value is replaced
// wholesale on every refetch; nothing mutates it in place.
type Entry struct {
	Key       Key
	Value     any
	FetchedAt time.Time
	StaleAt   time.Time
	Seq       uint64
}

// Fresh reports whether the entry can be served without a refetch.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.StaleAt)
}

type storeEntry struct {
	value     any
	fetchedAt time.Time
	staleAt   time.Time
	seq       uint64
}

// Store is the process-wide cache: a key to entry map guarded by a RWMutex.
// It is constructor-injected everywhere so tests can run isolated stores.
// Writes are whole-entry replacements, so a reader never observes a
// half-updated entry. Each successful write notifies key listeners.
type Store struct {
	mu        sync.RWMutex
	entries   map[Key]*storeEntry
	listeners map[Key]map[int]chan struct{}
	nextID    int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries:   make(map[Key]*storeEntry),
		listeners: make(map[Key]map[int]chan struct{}),
	}
}

// Lookup returns a snapshot of the entry for key, if present.
func (s *Store) Lookup(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{Key: key, Value: e.value, FetchedAt: e.fetchedAt, StaleAt: e.staleAt, Seq: e.seq}, true
}

// Put stores value under key with the given TTL. seq is the fetch-start
// sequence number of the fetch that produced the value; a write is dropped
// when the stored entry already carries a higher sequence, so out-of-order
// completions for the same key resolve as last-write-wins by fetch start.
// Returns whether the write was applied.
func (s *Store) Put(key Key, value any, ttl time.Duration, seq uint64) bool {
	now := time.Now()

	s.mu.Lock()
	if existing, ok := s.entries[key]; ok && existing.seq > seq {
		s.mu.Unlock()
		return false
	}
	s.entries[key] = &storeEntry{
		value:     value,
		fetchedAt: now,
		staleAt:   now.Add(ttl),
		seq:       seq,
	}
	size := len(s.entries)
	// Snapshot the listener set while still holding the lock; Subscribe and
	// its cancel func mutate the inner map under the same lock.
	listeners := make([]chan struct{}, 0, len(s.listeners[key]))
	for _, ch := range s.listeners[key] {
		listeners = append(listeners, ch)
	}
	s.mu.Unlock()

	metrics.StoreEntries.Set(float64(size))
	for _, ch := range listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return true
}

// Invalidate removes the entry for one key.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	delete(s.entries, key)
	size := len(s.entries)
	s.mu.Unlock()

	metrics.StoreEntries.Set(float64(size))
	metrics.InvalidationsTotal.WithLabelValues("key").Inc()
}

// InvalidateDomain removes every entry belonging to a domain.
func (s *Store) InvalidateDomain(domain string) {
	s.mu.Lock()
	for key := range s.entries {
		if key.InDomain(domain) {
			delete(s.entries, key)
		}
	}
	size := len(s.entries)
	s.mu.Unlock()

	metrics.StoreEntries.Set(float64(size))
	metrics.InvalidationsTotal.WithLabelValues("domain").Inc()
}

// Reset drops every entry. Used when the underlying dev node was reset and
// all cached state, including "immutable" confirmed data, is void.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = make(map[Key]*storeEntry)
	s.mu.Unlock()

	metrics.StoreEntries.Set(0)
	metrics.InvalidationsTotal.WithLabelValues("reset").Inc()
}

// Subscribe registers interest in updates to key. The returned channel
// receives a signal (capacity one, lossy) after every applied write. The
// cancel func must be called when the subscriber detaches.
func (s *Store) Subscribe(key Key) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.listeners[key] == nil {
		s.listeners[key] = make(map[int]chan struct{})
	}
	s.listeners[key][id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if m, ok := s.listeners[key]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(s.listeners, key)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns a snapshot of all stored keys, for the cache stats endpoint.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}
