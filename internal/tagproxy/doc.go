// Package tagproxy relays analytics collection requests to a server-side
// tag endpoint, routing each request to either the production or the
// preview backend.
//
// A tag-management preview session must reach an isolated backend without
// the browser knowing about two hostnames. Classification ORs three
// signals (debug query parameter, preview header, preview cookie) because
// the debug parameter alone is absent on later navigations. Both backends
// expose the same path shape; only the host differs.
//
// Upstream calls go through a circuit breaker with a per-call timeout; a
// timed-out call counts as a breaker failure and its late result is
// discarded.
package tagproxy
