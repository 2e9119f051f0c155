// Package ratelimit implements the sliding-window limiters used by the
// auto-moderator. A limiter counts events per key over a trailing window and
// reports a key as rate limited once that count exceeds its capacity.
package ratelimit

import (
	"context"
	"time"
)

// minRetryDelay is how long a blocking acquisition sleeps when the store
// cannot say when capacity frees up.
const minRetryDelay = 10 * time.Millisecond

// Result describes the outcome of recording an event.
type Result struct {
	// Recorded is false only when a conditional record found the window full.
	Recorded bool
	// Count is the number of events in the window after the operation.
	Count int
	// RetryAfter is how long until the oldest event leaves the window.
	// Only set when Recorded is false.
	RetryAfter time.Duration
}

// Store keeps the event timestamps of every bucket. Implementations must
// make Record atomic per bucket.
type Store interface {
	// Record adds an event at now to the bucket. When limit is positive the
	// event is only added if fewer than limit events are in the window.
	Record(ctx context.Context, bucket string, now time.Time, window time.Duration, limit int) (Result, error)
	// Count returns the number of events in the window ending at now.
	Count(ctx context.Context, bucket string, now time.Time, window time.Duration) (int, error)
}

// Limiter is a named sliding-window rate limiter.
type Limiter struct {
	name     string
	capacity int
	period   time.Duration
	blocking bool
	store    Store
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBlocking makes Acquire wait for free capacity instead of recording
// the overflowing event.
func WithBlocking() Option {
	return func(l *Limiter) {
		l.blocking = true
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter allowing capacity events per period for each key.
func New(name string, capacity int, period time.Duration, store Store, opts ...Option) *Limiter {
	l := &Limiter{
		name:     name,
		capacity: capacity,
		period:   period,
		store:    store,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Name returns the limiter name.
func (l *Limiter) Name() string {
	return l.name
}

// Capacity returns the number of events allowed per period.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Period returns the window length.
func (l *Limiter) Period() time.Duration {
	return l.period
}

// Acquire records one event for key. A blocking limiter waits until the
// window has room for the event or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	if !l.blocking {
		_, err := l.store.Record(ctx, l.bucket(key), l.now(), l.period, 0)
		return err
	}

	for {
		res, err := l.store.Record(ctx, l.bucket(key), l.now(), l.period, l.capacity)
		if err != nil {
			return err
		}

		if res.Recorded {
			return nil
		}

		wait := max(res.RetryAfter, minRetryDelay)
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IsRateLimited reports whether key has more events in the current window
// than the limiter allows. It does not record anything.
func (l *Limiter) IsRateLimited(ctx context.Context, key string) (bool, error) {
	count, err := l.store.Count(ctx, l.bucket(key), l.now(), l.period)
	if err != nil {
		return false, err
	}

	return count > l.capacity, nil
}

// Hit records one event for key and reports whether key is now rate
// limited, as one atomic step.
func (l *Limiter) Hit(ctx context.Context, key string) (bool, error) {
	res, err := l.store.Record(ctx, l.bucket(key), l.now(), l.period, 0)
	if err != nil {
		return false, err
	}

	return res.Count > l.capacity, nil
}

func (l *Limiter) bucket(key string) string {
	return l.name + ":" + key
}
