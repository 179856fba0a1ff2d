// Package gateway assembles and runs the a2a-gateway server.
//
// It wires the metadata store, agent registry, authorization checker,
// credential resolver, and request proxy behind one HTTP API:
//
//	GET  /health, /health/ready          liveness and readiness
//	GET  /                               service info
//	GET  /.well-known/agent.json         the gateway's own card
//	GET  /api/agents                     agents the caller may use
//	GET  /api/agents/{name}              one agent's metadata
//	GET  /api/agents/{name}/.well-known/agent.json
//	POST /api/agents/{name}              blocking JSON-RPC invoke
//	POST /api/agents/{name}/stream       streaming invoke over SSE
//
// The server listens on plain TCP or joins a tailnet via tsnet, with
// optional HTTPS and funnel exposure.
package gateway
