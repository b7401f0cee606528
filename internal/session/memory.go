package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	sc        Context
	expiresAt time.Time
}

// MemoryStore is an in-process session context store with TTL expiry.
// It is safe for concurrent use; a single mutex serializes all writes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time // injectable clock for testing
}

// NewMemoryStore creates a MemoryStore whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the context for key, or ok=false when absent or expired.
// Expired entries are removed on read.
func (s *MemoryStore) Get(_ context.Context, key string) (Context, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Context{}, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return Context{}, false, nil
	}
	return e.sc, true, nil
}

// Put overwrites the context for key and resets its TTL.
func (s *MemoryStore) Put(_ context.Context, key string, sc Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{sc: sc, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Delete removes the context for key, if any.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep removes all expired entries and returns the number removed. The
// server calls this periodically so abandoned sessions do not accumulate.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
