package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps buckets in process. A bucket disappears once nothing
// was recorded to it for the retention period.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, []time.Time]
}

// NewMemoryStore creates a store whose buckets are retained for retention
// after their last event. Retention must be at least the longest window of
// any limiter using the store.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		buckets: expirable.NewLRU[string, []time.Time](0, nil, retention),
	}
}

// Record implements Store.
func (s *MemoryStore) Record(
	_ context.Context, bucket string, now time.Time, window time.Duration, limit int,
) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, _ := s.buckets.Get(bucket)
	events = prune(events, now.Add(-window))

	if limit > 0 && len(events) >= limit {
		s.buckets.Add(bucket, events)

		return Result{
			Count:      len(events),
			RetryAfter: events[0].Add(window).Sub(now),
		}, nil
	}

	events = append(events, now)
	s.buckets.Add(bucket, events)

	return Result{Recorded: true, Count: len(events)}, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, bucket string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.buckets.Peek(bucket)
	if !ok {
		return 0, nil
	}

	return len(prune(events, now.Add(-window))), nil
}

// prune drops events at or before cutoff. Events are kept in recording order.
func prune(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}

	if i == 0 {
		return events
	}

	return append([]time.Time(nil), events[i:]...)
}
