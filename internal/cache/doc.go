// Package cache implements a bounded in-memory key-value store with
// per-entry TTL expiry. Expired entries are dropped lazily on read;
// capacity pressure evicts the oldest entry by insertion time. The
// customer-lookup cache and the duplicate-transaction store are both
// instantiations of this one primitive.
//
// State lives in the process only. On a platform running several warm
// instances each holds an independent copy, which is an accepted tradeoff;
// swapping the map for an external store behind the same Get/Set surface
// is the upgrade path.
package cache
