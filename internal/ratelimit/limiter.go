package ratelimit

import (
	"sync"
	"time"
)

type record struct {
	count        int
	firstRequest time.Time
	lastRequest  time.Time
}

// Limiter admits or denies requests per key within a fixed window.
type Limiter struct {
	mutex       sync.Mutex
	records     map[string]*record
	window      time.Duration
	maxRequests int
	maxKeys     int
	now         func() time.Time
}

// Decision is the outcome of an Admit call. RetryAfterSeconds is set only
// on denial.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

func NewLimiter(window time.Duration, maxRequests, maxKeys int) *Limiter {
	return NewLimiterWithClock(window, maxRequests, maxKeys, time.Now)
}

func NewLimiterWithClock(window time.Duration, maxRequests, maxKeys int, now func() time.Time) *Limiter {
	return &Limiter{
		records:     make(map[string]*record),
		window:      window,
		maxRequests: maxRequests,
		maxKeys:     maxKeys,
		now:         now,
	}
}

// Admit counts a request against key. The first maxRequests requests
// inside a window are allowed; later ones are denied with a back-off hint.
// A record whose window has elapsed is replaced, not incremented.
func (l *Limiter) Admit(key string) Decision {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()

	if len(l.records) > l.maxKeys {
		l.sweepLocked(now)
	}

	rec, ok := l.records[key]
	if !ok || now.Sub(rec.firstRequest) > l.window {
		l.records[key] = &record{
			count:        1,
			firstRequest: now,
			lastRequest:  now,
		}
		return Decision{Allowed: true}
	}

	rec.count++
	rec.lastRequest = now

	if rec.count <= l.maxRequests {
		return Decision{Allowed: true}
	}

	retryAfter := rec.firstRequest.Add(l.window).Sub(now)
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	return Decision{Allowed: false, RetryAfterSeconds: seconds}
}

// Keys returns the number of tracked records, expired or not.
func (l *Limiter) Keys() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.records)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for key, rec := range l.records {
		if now.Sub(rec.firstRequest) > l.window {
			delete(l.records, key)
		}
	}
}
