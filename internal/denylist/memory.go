package denylist

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store with per-key expiry, for tests and single-instance development.
// Entries are not shared between processes.
type MemoryStore struct {
	mu    sync.RWMutex
	m     map[string]entry
	clock clock.Clock
}

// NewMemoryStore returns an empty MemoryStore. clk may be nil (wall clock).
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryStore{
		m:     make(map[string]entry),
		clock: clk,
	}
}

// SetWithTTL implements Store.
func (s *MemoryStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Exists implements Store. Expired entries are dropped on read.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !e.expiresAt.After(s.clock.Now()) {
		s.mu.Lock()
		if cur, still := s.m[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of entries, including expired ones not yet dropped.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
