// Package proxy forwards JSON-RPC calls from authenticated callers to
// backend agents.
//
// Every request runs the same pipeline: validate the envelope, resolve the
// agent name to a connection, authorize the caller, fetch the agent card to
// find the invocation endpoint, resolve the outbound credential, and
// forward. Authorization is decided before the method is dispatched and
// before anything touches the backend.
//
// Failures are classified, not passed through raw: a caller can always tell
// "you may not" (denial) from "the backend could not" (unavailable, timed
// out, or failed to authenticate the gateway). The proxy never retries a
// forward.
package proxy
