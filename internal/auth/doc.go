// Package auth resolves the identity of gateway callers.
//
// # Identity Resolution
//
// The gateway never evaluates access policy itself; that is the permission
// oracle's job. It still needs to know who is calling so the oracle can be
// queried on the caller's behalf. Identity is resolved from, in order:
//
//  1. The x-forwarded-email header, set by fronting platforms that terminate
//     auth and strip the Authorization header.
//  2. Claims of the bearer token from x-forwarded-access-token or the
//     Authorization header: verified HS256 claims when auth.jwt_secret is
//     configured, unverified claims otherwise (the oracle receives the raw
//     token and remains authoritative).
//
// # Context Plumbing
//
// Middleware attaches an *Identity to the request context; handlers retrieve
// it with FromContext. The raw token travels with the identity because the
// passthrough credential strategy and on-behalf-of oracle checks both need it.
package auth
