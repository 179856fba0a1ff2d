// Package authz enforces per-caller access to connections.
//
// The source of truth is an external permission oracle: a caller may use a
// connection when the oracle reports the USE_CONNECTION privilege for them,
// or when they own the connection. Decisions are cached briefly to keep the
// oracle off the hot path; the cache TTL bounds how long a revocation can
// lag. Any oracle failure denies.
package authz
