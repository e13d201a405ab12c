package auth

import (
	"context"
	"sync"
	"time"
)

// staleWindowAge is how long an idle key keeps its window before cleanup
const staleWindowAge = time.Hour

// RateLimiter answers whether a request under a key may proceed
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// SlidingWindowLimiter allows at most limit requests per key within a
// trailing window. Idle keys are evicted so the map does not grow with
// every address the server has ever seen.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	windows    map[string][]time.Time
	limit      int
	windowSize time.Duration
	lastSweep  time.Time
}

// NewSlidingWindowLimiter creates a limiter of limit requests per windowSize
func NewSlidingWindowLimiter(limit int, windowSize time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows:    make(map[string][]time.Time),
		limit:      limit,
		windowSize: windowSize,
		lastSweep:  time.Now(),
	}
}

// Allow records the request and reports whether it fits the window
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweepLocked(now)

	cutoff := now.Add(-l.windowSize)
	kept := l.windows[key][:0]
	for _, at := range l.windows[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= l.limit {
		l.windows[key] = kept
		return false, nil
	}

	l.windows[key] = append(kept, now)
	return true, nil
}

// Reset forgets all recorded requests for key
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

func (l *SlidingWindowLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < staleWindowAge {
		return
	}
	l.lastSweep = now

	cutoff := now.Add(-l.windowSize)
	for key, hits := range l.windows {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.windows, key)
		}
	}
}

// IPRateLimiter limits requests per client address per minute
type IPRateLimiter struct {
	limiter RateLimiter
}

// NewIPRateLimiter creates an address limiter of requestsPerMinute
func NewIPRateLimiter(requestsPerMinute int) *IPRateLimiter {
	return &IPRateLimiter{
		limiter: NewSlidingWindowLimiter(requestsPerMinute, time.Minute),
	}
}

// Allow reports whether a request from ip may proceed
func (l *IPRateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	return l.limiter.Allow(ctx, "ip:"+ip)
}

// UserRateLimiter limits requests per authenticated user per minute
type UserRateLimiter struct {
	limiter RateLimiter
}

// NewUserRateLimiter creates a user limiter of requestsPerMinute
func NewUserRateLimiter(requestsPerMinute int) *UserRateLimiter {
	return &UserRateLimiter{
		limiter: NewSlidingWindowLimiter(requestsPerMinute, time.Minute),
	}
}

// Allow reports whether a request from userID may proceed
func (l *UserRateLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	return l.limiter.Allow(ctx, "user:"+userID)
}
