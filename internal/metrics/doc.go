// Package metrics provides real-time metrics collection for the
// middleware service.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Request counts and status codes per endpoint
//   - Relay latencies with percentile calculations (P50, P95, P99)
//   - Rate-limit denials per endpoint
//   - Blocked duplicate conversions
//   - Upstream call counts and failures per service
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Events are sent via buffered channels with
// non-blocking semantics to prevent degradation under load, and the
// collector drains pending events on shutdown.
package metrics
