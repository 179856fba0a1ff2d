// Package registry resolves caller-facing agent names to backend
// connections and serves their agent cards.
//
// Connections live in a MetadataStore (SQLite for local deployments, a
// remote catalog API otherwise) and are registered out of band; the
// gateway only reads. A connection participates in discovery when its name
// carries the configured suffix, and callers address it by the name with
// the suffix stripped.
//
// Each connection's registration options are decoded exactly once into a
// host, a card path, and an outbound auth strategy. Agent cards are
// fetched from the backend's well-known endpoint and cached with a TTL;
// failed fetches are negatively cached for a shorter window.
package registry
