// Package credential resolves the outbound bearer token for each proxied
// request.
//
// A connection authenticates to its backend in one of three ways:
// passthrough of the caller's own token, a static bearer secret from the
// registration, or an OAuth2 client-credentials exchange. The mode is fixed
// at registration time; this package only executes it.
//
// Failures here are configuration or identity-provider problems, so they
// are reported as upstream authentication failures and never conflated
// with the caller being denied access.
package credential
