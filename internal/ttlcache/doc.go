// Package ttlcache provides a thread-safe, size-bounded cache with per-entry
// time-to-live expiry.
//
// The gateway uses it for two best-effort memoizations: authorization
// decisions (principal, connection) -> allowed, and negative agent-card
// results (connection -> last fetch error). Neither cache is authoritative;
// entries may be evicted at any time and a miss simply re-runs the underlying
// lookup.
//
// Usage:
//
//	c := ttlcache.New[bool](15*time.Second, 10_000)
//	defer c.Close()
//	c.Set("alice\x00echo-a2a", true)
//	allowed, ok := c.Get("alice\x00echo-a2a")
package ttlcache
