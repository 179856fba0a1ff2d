// Package a2a defines the wire types of the agent-to-agent protocol the
// gateway proxies: JSON-RPC 2.0 envelopes, the agent card capability
// descriptor, and the message/artifact content model.
//
// The gateway treats backend payloads as opaque wherever possible: request
// ids and params are json.RawMessage so they round-trip byte-for-byte, and
// only the few shapes it must inspect get decoded (the envelope itself and
// the agent card's invocation URL and capability flags).
package a2a
