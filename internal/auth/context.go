// ABOUTME: Caller identity context for tracking who is invoking the gateway
// ABOUTME: Provides WithIdentity/FromContext for propagating identity via context

package auth

import (
	"context"
)

// Identity holds the authenticated caller information extracted from a request.
// Principal is the identity the permission oracle is queried about; Token is
// the caller's raw bearer token, kept for on-behalf-of checks and for the
// passthrough credential strategy. Token must never be logged in full.
type Identity struct {
	Principal string // caller identity (email or token subject)
	Token     string // raw inbound bearer token, may be empty
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
