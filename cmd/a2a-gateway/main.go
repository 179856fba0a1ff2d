// ABOUTME: Entry point for the a2a-gateway server and its operator commands
// ABOUTME: Serve, health, agents, and local catalog registration

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/a2a-gateway/internal/auth"
	"github.com/2389/a2a-gateway/internal/config"
	"github.com/2389/a2a-gateway/internal/gateway"
	"github.com/2389/a2a-gateway/internal/registry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        ___                           _
  __ _ |_  ) __ _ ___ __ _  __ _ | |_ ___ __ __ __ __ _  _  _
 / _' | / / / _' |___/ _' |/ _' ||  _/ -_)\ V  V // _' || || |
 \__,_|/___|\__,_|   \__, |\__,_| \__\___| \_/\_/ \__,_| \_, |
                     |___/                               |__/
`

// getConfigPath returns the path to the gateway config file.
// Priority: A2A_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/a2a-gateway/gateway.yaml
// > ~/.config/a2a-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("A2A_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "a2a-gateway", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: a2a-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                        Start the gateway server")
		fmt.Println("  health                       Check gateway health")
		fmt.Println("  agents                       List agents available to the caller")
		fmt.Println("  register --name NAME ...     Register an agent in the local catalog")
		fmt.Println("  unregister --name NAME       Remove an agent from the local catalog")
		fmt.Println("  token --principal PRINCIPAL  Issue a caller token (requires auth.jwt_secret)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx)
	case "register":
		err = runRegister(ctx, os.Args[2:])
	case "unregister":
		err = runUnregister(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	if cfg.Catalog.DatabasePath != "" {
		green.Print("    ▶ ")
		fmt.Printf("Catalog: %s\n", cfg.Catalog.DatabasePath)
	} else {
		green.Print("    ▶ ")
		fmt.Printf("Catalog: %s\n", cfg.Catalog.BaseURL)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	}

	fmt.Println()

	logger.Info("starting a2a-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runAgents lists the agents the caller may use. The caller token comes from
// A2A_GATEWAY_TOKEN.
func runAgents(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/agents", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if token := os.Getenv("A2A_GATEWAY_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing agents failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing agents failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Agents []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"agents"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(payload.Agents) == 0 {
		fmt.Println("no agents available")
		return nil
	}
	for _, a := range payload.Agents {
		fmt.Printf("%-20s %-40s %s\n", a.Name, a.Description, a.URL)
	}
	return nil
}

// runRegister writes a connection into the local SQLite catalog. Only valid
// for gateways running with catalog.database_path.
func runRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "connection name (must end in the discovery suffix)")
	host := fs.String("host", "", "backend base URL")
	cardPath := fs.String("card-path", "", "agent card path (default /.well-known/agent.json)")
	comment := fs.String("comment", "", "description shown in discovery")
	owner := fs.String("owner", "", "owning principal (always authorized)")
	bearerToken := fs.String("bearer-token", "", "static bearer token for the backend")
	clientID := fs.String("client-id", "", "OAuth client id")
	clientSecret := fs.String("client-secret", "", "OAuth client secret")
	tokenEndpoint := fs.String("token-endpoint", "", "OAuth token endpoint")
	scope := fs.String("oauth-scope", "", "OAuth scope")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *host == "" {
		return fmt.Errorf("--name and --host are required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Catalog.DatabasePath == "" {
		return fmt.Errorf("register requires catalog.database_path; this gateway uses a remote catalog")
	}
	if !strings.HasSuffix(*name, cfg.Catalog.Suffix) {
		fmt.Fprintf(os.Stderr, "warning: %q lacks the %q suffix and will not be discoverable\n", *name, cfg.Catalog.Suffix)
	}

	options := map[string]string{"host": *host}
	setIfNonEmpty := func(key, value string) {
		if value != "" {
			options[key] = value
		}
	}
	setIfNonEmpty("base_path", *cardPath)
	setIfNonEmpty("bearer_token", *bearerToken)
	setIfNonEmpty("client_id", *clientID)
	setIfNonEmpty("client_secret", *clientSecret)
	setIfNonEmpty("token_endpoint", *tokenEndpoint)
	setIfNonEmpty("oauth_scope", *scope)

	// Validate before writing so a bad registration never lands.
	if _, _, _, err := registry.DecodeOptions(options); err != nil {
		return err
	}

	store, err := registry.NewSQLiteStore(cfg.Catalog.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	if err := store.PutConnection(ctx, *name, *comment, *owner, options); err != nil {
		return err
	}
	fmt.Printf("registered %s\n", *name)
	return nil
}

func runUnregister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unregister", flag.ExitOnError)
	name := fs.String("name", "", "connection name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Catalog.DatabasePath == "" {
		return fmt.Errorf("unregister requires catalog.database_path; this gateway uses a remote catalog")
	}

	store, err := registry.NewSQLiteStore(cfg.Catalog.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	if err := store.DeleteConnection(ctx, *name); err != nil {
		return err
	}
	fmt.Printf("unregistered %s\n", *name)
	return nil
}

// runToken issues a caller JWT signed with the gateway's secret.
func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	principal := fs.String("principal", "", "caller principal (email)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *principal == "" {
		return fmt.Errorf("--principal is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("token issuance requires auth.jwt_secret")
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(*principal, jwt.MapClaims{
		"exp": time.Now().Add(*ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}

	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, a)
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

// writeAttr renders one attribute, highlighting the component key every
// gateway subsystem logs with so lines are scannable by origin.
func (h *colorHandler) writeAttr(buf *strings.Builder, a slog.Attr) {
	buf.WriteString(color.HiBlackString(" " + a.Key + "="))
	if a.Key == "component" {
		buf.WriteString(color.CyanString(a.Value.String()))
		return
	}
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
