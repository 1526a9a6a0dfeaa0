// Package ratelimit implements fixed-window request counting.
//
// A counter starts its window on first use. The first check that observes
// the window lapsed resets the count before counting, so up to twice the
// allowance can pass in a short span straddling a boundary. A check only
// increments when the count is below the allowance; a rejected check leaves
// the counter untouched.
//
// Counters are spread over shards keyed by an xxhash of the identifier.
// Each check runs under its shard's write lock, so concurrent checks for one
// identifier can never admit more than the allowance within a window.
//
// Gate combines the endpoint policy table with the per-source policy and
// requires both to pass.
package ratelimit
