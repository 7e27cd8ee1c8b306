package circuitbreaker

import (
	"sync"
	"time"
)

// Registry holds one breaker per upstream name, created lazily with a
// shared threshold and reset timeout.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	timeout   time.Duration
	now       func() time.Time
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return NewRegistryWithClock(threshold, timeout, time.Now)
}

func NewRegistryWithClock(threshold int, timeout time.Duration, now func() time.Time) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
		now:       now,
	}
}

func (r *Registry) GetBreaker(name string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreakerWithClock(name, r.threshold, r.timeout, r.now)
	r.breakers[name] = cb
	return cb
}

func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Stats returns a snapshot of every registered breaker, keyed by upstream
// name.
func (r *Registry) Stats() map[string]Counts {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]Counts, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Counts()
	}
	return stats
}
