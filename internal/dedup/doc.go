// Package dedup suppresses repeated conversion events for the same
// transaction id inside a suppression window.
//
// Browser-side double-fires (page reload, retry, back-button) would
// otherwise double-count revenue in analytics. The suppressor records the
// first sighting of each transaction id and rejects repeats until the TTL
// elapses; a background sweep keeps the store bounded.
package dedup
