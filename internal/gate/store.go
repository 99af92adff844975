package gate

import (
	"context"
	"sync"
	"time"
)

// Store counts admissions per actor over a sliding window.
type Store interface {
	// Allow records one admission attempt for actorID and reports
	// whether it fits within limit over window. When denied, retryAfter
	// says how long until a slot opens.
	Allow(ctx context.Context, actorID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error)
}

// MemoryStore is a process-local sliding-window counter. Each actor
// keeps the timestamps still inside the window; denied attempts are not
// recorded, so probing while limited does not extend the limit.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: map[string][]time.Time{}}
}

func (s *MemoryStore) Allow(ctx context.Context, actorID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-window)
	kept := s.windows[actorID][:0]
	for _, ts := range s.windows[actorID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit {
		s.windows[actorID] = kept
		return false, kept[0].Sub(cutoff), nil
	}
	s.windows[actorID] = append(kept, now)
	return true, 0, nil
}
