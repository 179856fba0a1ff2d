// ABOUTME: Gateway orchestrator wiring registry, authz, credentials, and proxy
// ABOUTME: Manages TCP or Tailscale listeners and graceful shutdown

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/a2a-gateway/internal/auth"
	"github.com/2389/a2a-gateway/internal/authz"
	"github.com/2389/a2a-gateway/internal/config"
	"github.com/2389/a2a-gateway/internal/credential"
	"github.com/2389/a2a-gateway/internal/proxy"
	"github.com/2389/a2a-gateway/internal/registry"
)

// Version is the gateway release version reported by the info endpoints.
const Version = "0.1.0"

// Gateway orchestrates the a2a-gateway server components: the agent
// registry, the authorization checker, outbound credentials, and the proxy,
// all behind one HTTP server.
type Gateway struct {
	config      *config.Config
	store       registry.MetadataStore
	registry    *registry.Registry
	checker     *authz.Checker
	creds       *credential.Resolver
	proxy       *proxy.Proxy
	identifier  auth.TokenIdentifier
	metrics     *metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore creates the metadata store from config: SQLite when a database
// path is set, the remote catalog client otherwise.
func initStore(cfg *config.Config) (registry.MetadataStore, error) {
	if cfg.Catalog.DatabasePath != "" {
		s, err := registry.NewSQLiteStore(cfg.Catalog.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	}
	return registry.NewHTTPStore(cfg.Catalog.BaseURL), nil
}

// initIdentifier picks the token identifier: HS256 verification when a
// secret is configured, unverified claims extraction otherwise. In the
// latter mode the permission oracle remains the authority; the claims only
// name the principal to ask about.
func initIdentifier(cfg *config.Config) auth.TokenIdentifier {
	if cfg.Auth.JWTSecret != "" {
		return auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}
	return auth.ClaimsIdentifier{}
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	store, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	reg := registry.New(store, cfg.Catalog.Suffix, cfg.Cache.CardTTL, cfg.Cache.NegativeCardTTL, logger)

	var oracle authz.Oracle = authz.OwnerOnlyOracle{}
	if cfg.Catalog.OracleURL != "" {
		oracle = authz.NewHTTPOracle(cfg.Catalog.OracleURL)
	} else {
		logger.Warn("no catalog.oracle_url configured; only connection owners are authorized")
	}
	checker := authz.NewChecker(oracle, cfg.Cache.AuthorizationTTL, logger)
	creds := credential.NewResolver(logger)

	g := &Gateway{
		config:     cfg,
		store:      store,
		registry:   reg,
		checker:    checker,
		creds:      creds,
		proxy:      proxy.New(reg, checker, creds, cfg.Proxy.BackendTimeout, cfg.Proxy.StreamIdleTimeout, logger),
		identifier: initIdentifier(cfg),
		logger:     logger.With("component", "gateway"),
	}
	if cfg.Metrics.Enabled {
		g.metrics = newMetrics()
	}

	g.httpServer = &http.Server{
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Run starts the gateway and blocks until ctx is canceled or the server
// fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is already
// canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases all gateway resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale: %w", err))
		}
	}

	g.registry.Close()
	g.checker.Close()
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.logger.Info("gateway stopped")
	return nil
}

// setupListener creates the listener based on configuration (Tailscale or
// plain TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using a default
// under the user's data dir if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "a2a-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and the HTTP listener on it.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node",
		"hostname", tsCfg.Hostname,
		"state_dir", stateDir,
		"ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's
// auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	g.logger.Info("tailscale node ready",
		"hostname", hostname,
		"tailscale_ip", tsAddr,
		"dns_name", dnsName)
}
