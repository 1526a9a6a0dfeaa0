// Package cache provides the gateway's two-level cache.
//
// The fast tier is an in-process map with per-entry TTL; the durable tier is
// a kvstore.Store (normally Redis) shared between gateway instances. Reads go
// fast tier first and fall back to the durable tier, repopulating the fast
// tier on a durable hit. Writes go to both tiers; durable failures are logged
// and never returned to the caller.
//
// Values are JSON documents. Set marshals any value with sonic; Get returns
// the raw JSON so callers decode into their own types.
//
// Category helpers (API responses, external sessions, permission sets) derive
// their key and TTL from a Policy that can be replaced at runtime.
package cache
