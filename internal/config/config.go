// ABOUTME: Configuration loading and parsing for a2a-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default cache and proxy timings. Authorization staleness is deliberately
// short (seconds, not minutes) so grant/revoke changes propagate quickly.
const (
	DefaultCardTTL           = 5 * time.Minute
	DefaultNegativeCardTTL   = 15 * time.Second
	DefaultAuthorizationTTL  = 15 * time.Second
	DefaultBackendTimeout    = 60 * time.Second
	DefaultStreamIdleTimeout = 5 * time.Minute
	DefaultSuffix            = "-a2a"
)

// Config represents the complete a2a-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // Serve HTTPS with Tailscale-provisioned certs
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// CatalogConfig holds connection-metadata store configuration.
// Exactly one of database_path (embedded SQLite catalog) or base_url
// (external HTTP catalog service) must be set.
type CatalogConfig struct {
	DatabasePath string `yaml:"database_path"`
	BaseURL      string `yaml:"base_url"`
	OracleURL    string `yaml:"oracle_url"` // permission oracle base URL; defaults to base_url
	Suffix       string `yaml:"suffix"`     // discovery suffix, default "-a2a"
}

// AuthConfig holds caller authentication configuration.
// When jwt_secret is set, inbound bearer tokens are verified as HS256 JWTs.
// When empty, identity is taken from unverified claims or forwarded headers;
// the permission oracle remains the authority either way.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// CacheConfig holds TTLs for the gateway's memoization caches
type CacheConfig struct {
	CardTTL          time.Duration `yaml:"-"`
	NegativeCardTTL  time.Duration `yaml:"-"`
	AuthorizationTTL time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CardTTLRaw          string `yaml:"card_ttl"`
	NegativeCardTTLRaw  string `yaml:"negative_card_ttl"`
	AuthorizationTTLRaw string `yaml:"authorization_ttl"`
}

// ProxyConfig holds backend call timing configuration.
// backend_timeout bounds blocking calls; stream_idle_timeout bounds the gap
// between SSE frames on a stream (streams have no overall deadline).
type ProxyConfig struct {
	BackendTimeout    time.Duration `yaml:"-"`
	StreamIdleTimeout time.Duration `yaml:"-"`

	BackendTimeoutRaw    string `yaml:"backend_timeout"`
	StreamIdleTimeoutRaw string `yaml:"stream_idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for fields left unset.
func (c *Config) applyDefaults() {
	if c.Catalog.Suffix == "" {
		c.Catalog.Suffix = DefaultSuffix
	}
	if c.Catalog.OracleURL == "" {
		c.Catalog.OracleURL = c.Catalog.BaseURL
	}
	if c.Cache.CardTTL == 0 {
		c.Cache.CardTTL = DefaultCardTTL
	}
	if c.Cache.NegativeCardTTL == 0 {
		c.Cache.NegativeCardTTL = DefaultNegativeCardTTL
	}
	if c.Cache.AuthorizationTTL == 0 {
		c.Cache.AuthorizationTTL = DefaultAuthorizationTTL
	}
	if c.Proxy.BackendTimeout == 0 {
		c.Proxy.BackendTimeout = DefaultBackendTimeout
	}
	if c.Proxy.StreamIdleTimeout == 0 {
		c.Proxy.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Catalog.DatabasePath == "" && c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.database_path or catalog.base_url is required")
	}
	if c.Catalog.DatabasePath != "" && c.Catalog.BaseURL != "" {
		return fmt.Errorf("catalog.database_path and catalog.base_url are mutually exclusive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"cache.card_ttl", cfg.Cache.CardTTLRaw, &cfg.Cache.CardTTL},
		{"cache.negative_card_ttl", cfg.Cache.NegativeCardTTLRaw, &cfg.Cache.NegativeCardTTL},
		{"cache.authorization_ttl", cfg.Cache.AuthorizationTTLRaw, &cfg.Cache.AuthorizationTTL},
		{"proxy.backend_timeout", cfg.Proxy.BackendTimeoutRaw, &cfg.Proxy.BackendTimeout},
		{"proxy.stream_idle_timeout", cfg.Proxy.StreamIdleTimeoutRaw, &cfg.Proxy.StreamIdleTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
