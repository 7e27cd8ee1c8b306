// Package handler implements the HTTP request handlers of the functions
// layer: the rate-limited tag collection relay, lead capture with
// non-blocking upstream fan-out, and conversion tracking guarded by the
// duplicate-transaction suppressor.
package handler
