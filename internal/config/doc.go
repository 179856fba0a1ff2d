// Package config loads and validates the a2a-gateway YAML configuration.
//
// # Configuration File
//
// The gateway reads a single YAML file:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	tailscale:
//	  enabled: false
//	  hostname: "a2a-gateway"
//
//	catalog:
//	  database_path: "./catalog.db"   # or base_url for an external catalog
//	  suffix: "-a2a"
//	  oracle_url: ""                  # defaults to base_url; if neither is
//	                                  # set, only connection owners are
//	                                  # authorized
//
//	auth:
//	  jwt_secret: "${A2A_JWT_SECRET}"
//
//	cache:
//	  card_ttl: "5m"
//	  negative_card_ttl: "15s"
//	  authorization_ttl: "15s"
//
//	proxy:
//	  backend_timeout: "60s"
//	  stream_idle_timeout: "5m"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Environment Variables
//
// ${VAR_NAME} patterns anywhere in the file are expanded from the environment
// before parsing. Unset variables expand to the empty string.
//
// # Staleness Windows
//
// cache.authorization_ttl bounds how long a revoked grant may keep working and
// how long a fresh grant may take to be visible. It defaults to seconds, not
// minutes; raising it trades authorization freshness for oracle load.
package config
