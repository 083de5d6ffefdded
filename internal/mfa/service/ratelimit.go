package service

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultCoolDown    = 15 * time.Minute
)

// Decision is the result of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type failureCounter struct {
	count       int
	lastFailure time.Time
}

// RateLimiter counts consecutive verification failures per identity.
//
// The cool-down slides: every recorded failure restarts it, and state only
// clears once a full cool-down passes with no failures at all.
type RateLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	coolDown    time.Duration
	counters    map[string]*failureCounter
}

// NewRateLimiter returns a limiter that blocks after maxAttempts failures.
func NewRateLimiter(maxAttempts int, coolDown time.Duration) (*RateLimiter, error) {
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", maxAttempts)
	}
	if coolDown <= 0 {
		return nil, fmt.Errorf("cool-down must be positive, got %s", coolDown)
	}
	return &RateLimiter{
		maxAttempts: maxAttempts,
		coolDown:    coolDown,
		counters:    make(map[string]*failureCounter),
	}, nil
}

func (l *RateLimiter) MaxAttempts() int { return l.maxAttempts }

// CheckAllowed reports whether identity may attempt a verification at now.
func (l *RateLimiter) CheckAllowed(identity string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.current(identity, now)
	if c == nil {
		return Decision{Allowed: true, Remaining: l.maxAttempts}
	}
	if c.count >= l.maxAttempts {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: c.lastFailure.Add(l.coolDown).Sub(now),
		}
	}
	return Decision{Allowed: true, Remaining: l.maxAttempts - c.count}
}

// RecordFailure counts a failed attempt and returns the attempts left.
// Once blocked the counter saturates and the cool-down is not extended.
func (l *RateLimiter) RecordFailure(identity string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.current(identity, now)
	if c == nil {
		c = &failureCounter{}
		l.counters[identity] = c
	}
	if c.count >= l.maxAttempts {
		return 0
	}
	c.count++
	c.lastFailure = now
	return l.maxAttempts - c.count
}

// RecordSuccess clears identity unconditionally.
func (l *RateLimiter) RecordSuccess(identity string) {
	l.mu.Lock()
	delete(l.counters, identity)
	l.mu.Unlock()
}

// Prune drops counters whose cool-down has elapsed and returns how many.
func (l *RateLimiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, c := range l.counters {
		if now.Sub(c.lastFailure) > l.coolDown {
			delete(l.counters, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked identities.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// current returns the live counter for identity, clearing it first if the
// cool-down has elapsed. Caller holds l.mu.
func (l *RateLimiter) current(identity string, now time.Time) *failureCounter {
	c, ok := l.counters[identity]
	if !ok {
		return nil
	}
	if now.Sub(c.lastFailure) > l.coolDown {
		delete(l.counters, identity)
		return nil
	}
	return c
}
