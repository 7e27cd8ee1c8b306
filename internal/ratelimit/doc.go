// Package ratelimit implements a fixed-window request limiter keyed by
// client identifier (typically the client IP).
//
// Each key gets at most maxRequests admits per window, counted from the
// first request; once the window elapses the next request starts a fresh
// one. Denied callers are told how many seconds to back off. The backing
// map is swept of expired records opportunistically once it grows past a
// key cap, so a warm instance cannot accumulate unbounded state.
package ratelimit
