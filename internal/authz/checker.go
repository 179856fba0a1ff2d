// ABOUTME: Authorization checker with short-TTL decision caching
// ABOUTME: Owner always allowed, oracle failures always deny

package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/a2a-gateway/internal/registry"
	"github.com/2389/a2a-gateway/internal/ttlcache"
)

// Checker decides whether a caller may use a connection. Decisions, allows
// and denies alike, are cached per (principal, connection) for a short TTL,
// so a revoked grant can stay usable for at most that window.
//
// The checker fails closed: if the oracle cannot be reached or returns an
// error, the caller is denied and nothing is cached.
type Checker struct {
	oracle Oracle
	cache  *ttlcache.Cache[bool]
	logger *slog.Logger
}

// NewChecker creates a Checker over oracle with the given decision TTL.
func NewChecker(oracle Oracle, ttl time.Duration, logger *slog.Logger) *Checker {
	return &Checker{
		oracle: oracle,
		cache:  ttlcache.New[bool](ttl, 4096),
		logger: logger.With("component", "authz"),
	}
}

// Allowed reports whether principal may use conn. The connection owner is
// always allowed without consulting the oracle.
func (c *Checker) Allowed(ctx context.Context, principal string, conn *registry.Connection) bool {
	if principal == "" {
		return false
	}
	if conn.Owner != "" && principal == conn.Owner {
		return true
	}

	key := principal + "\x00" + conn.Name
	if allowed, ok := c.cache.Get(key); ok {
		return allowed
	}

	allowed, err := c.oracle.Check(ctx, principal, conn.Name)
	if err != nil {
		c.logger.Warn("permission check failed, denying",
			"principal", principal,
			"connection", conn.Name,
			"error", err)
		return false
	}

	c.cache.Set(key, allowed)
	return allowed
}

// Close releases the decision cache.
func (c *Checker) Close() {
	c.cache.Close()
}
