// Package cache provides the volatile TTL store that bridges the
// payment-webhook → analysis → client-poll flow.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a process-local key/value store with per-entry absolute expiry.
// Entries are evicted lazily on Get and proactively by a background sweep.
// All operations are safe for concurrent use.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	onEvict func(key string, value V)
	done    chan struct{}
	closeMu sync.Once
}

// New creates a store and starts its sweep goroutine. sweepEvery bounds growth
// from keys that are set but never read; pass 0 to default to 10 minutes.
func New[V any](sweepEvery time.Duration) *Store[V] {
	if sweepEvery <= 0 {
		sweepEvery = 10 * time.Minute
	}
	s := &Store[V]{
		entries: make(map[string]entry[V]),
		done:    make(chan struct{}),
	}
	go s.sweepLoop(sweepEvery)
	return s
}

// OnEvict registers fn to run whenever an entry leaves the store, whether by
// expiry, sweep or explicit Delete. Overwriting via Set does not fire it. The
// callback runs outside the store lock, so it may call back into the store.
// Set this before the store is shared; there is no synchronization around the
// field itself.
func (s *Store[V]) OnEvict(fn func(key string, value V)) {
	s.onEvict = fn
}

// Set inserts or silently overwrites. The entry expires ttl from now.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

// Get returns the value if present and not expired. An entry found expired is
// deleted on the spot; expiry check and delete happen under one lock so a
// concurrent sweep cannot race the read.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		s.mu.Unlock()
		if s.onEvict != nil {
			s.onEvict(key, e.value)
		}
		return zero, false
	}
	s.mu.Unlock()
	return e.value, true
}

// Delete removes the key unconditionally; deleting an absent key is a no-op.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if ok && s.onEvict != nil {
		s.onEvict(key, e.value)
	}
}

// Len reports live entries, expired-but-unswept ones included.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep deletes every expired entry now. The background loop calls this on its
// period; tests call it directly.
func (s *Store[V]) Sweep() {
	now := time.Now()
	var evicted map[string]V
	s.mu.Lock()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
			if s.onEvict != nil {
				if evicted == nil {
					evicted = make(map[string]V)
				}
				evicted[k] = e.value
			}
		}
	}
	s.mu.Unlock()
	for k, v := range evicted {
		s.onEvict(k, v)
	}
}

// Close stops the sweep goroutine. Idempotent.
func (s *Store[V]) Close() {
	s.closeMu.Do(func() { close(s.done) })
}

func (s *Store[V]) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.done:
			return
		}
	}
}
