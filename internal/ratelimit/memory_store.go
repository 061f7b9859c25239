package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	end   time.Time
	count int64
}

// MemoryStore is a single-process Store for development and tests. Expired
// windows are swept lazily once the map grows past sweepAt entries.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	sweepAt int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window), sweepAt: 10000}
}

func (s *MemoryStore) GetAndMaybeIncrement(_ context.Context, key string, win time.Duration, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		if len(s.windows) >= s.sweepAt {
			s.sweep(now)
		}
		w = &window{start: now, end: now.Add(win)}
		s.windows[key] = w
	}
	w.count++

	return w.count, w.start, nil
}

// sweep drops windows that have ended, each by its own length.
func (s *MemoryStore) sweep(now time.Time) {
	for k, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, k)
		}
	}
}
