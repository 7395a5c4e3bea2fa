package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store keeps window counters. Take counts one request against key and
// reports whether it is allowed. Denied requests do not increment the
// counter and leave ResetAt unchanged.
type Store interface {
	Take(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error)
}

// Purger is implemented by stores that need expired entries removed.
type Purger interface {
	Purge(ctx context.Context, before time.Time) error
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in process memory. Each process has its own
// counters, so running N replicas allows N times the configured limit.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Take(_ context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(now.Add(-policy.Window))

	e, ok := s.entries[key]
	if !ok || !e.resetAt.After(now) {
		e = &entry{count: 1, resetAt: now.Add(policy.Window)}
		s.entries[key] = e
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit - 1, ResetAt: e.resetAt}, nil
	}

	if e.count >= policy.Limit {
		return Decision{Allowed: false, Limit: policy.Limit, Remaining: 0, ResetAt: e.resetAt}, nil
	}

	e.count++
	return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit - e.count, ResetAt: e.resetAt}, nil
}

// Purge drops entries whose window ended at or before before.
func (s *MemoryStore) Purge(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(before)
	return nil
}

func (s *MemoryStore) purgeLocked(before time.Time) {
	for k, e := range s.entries {
		if !e.resetAt.After(before) {
			delete(s.entries, k)
		}
	}
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
