// Package circuitbreaker implements the circuit breaker pattern for upstream
// service calls.
//
// A circuit breaker prevents cascading failures by temporarily blocking
// requests to a failing upstream. It has three states:
//
//   - CLOSED: Normal operation, calls pass through
//   - OPEN: Upstream failing, calls rejected with ErrCircuitOpen
//   - HALF-OPEN: Testing recovery with one probe call
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	cb := registry.GetBreaker("mailerlite")
//	err := cb.Do(func() error {
//	    // Call the upstream...
//	    return err
//	})
//	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
//	    // Upstream presumed unhealthy, fail fast
//	}
package circuitbreaker
