// ABOUTME: Agent registry built on the metadata store and cached agent cards
// ABOUTME: Applies the discovery suffix and resolves invocation endpoints

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/a2a-gateway/internal/a2a"
	"github.com/2389/a2a-gateway/internal/ttlcache"
)

// ErrCardUnavailable is returned when an agent card cannot be fetched and no
// fresh cached copy exists.
var ErrCardUnavailable = errors.New("agent card unavailable")

// Registry exposes the agent catalog: connections whose names carry the
// discovery suffix, plus their cached agent cards.
//
// Cards are refreshed on read once their TTL lapses. Fetch failures are
// negatively cached for a short window so an unreachable backend is not
// re-probed on every request. Concurrent refreshes for the same agent
// collapse into one upstream fetch.
type Registry struct {
	store   MetadataStore
	suffix  string
	cardTTL time.Duration
	client  *http.Client
	logger  *slog.Logger

	mu    sync.RWMutex
	cards map[string]cachedCard

	negative *ttlcache.Cache[string]
	sf       singleflight.Group
}

type cachedCard struct {
	card      *a2a.AgentCard
	fetchedAt time.Time
}

// New creates a Registry over store. Connections are eligible for discovery
// only if their name ends in suffix.
func New(store MetadataStore, suffix string, cardTTL, negativeTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		suffix:   suffix,
		cardTTL:  cardTTL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With("component", "registry"),
		cards:    make(map[string]cachedCard),
		negative: ttlcache.New[string](negativeTTL, 1024),
	}
}

// Suffix returns the discovery suffix.
func (r *Registry) Suffix() string {
	return r.suffix
}

// List returns the connections eligible for discovery, in name order.
func (r *Registry) List(ctx context.Context) ([]*Connection, error) {
	conns, err := r.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	eligible := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		if strings.HasSuffix(conn.Name, r.suffix) {
			eligible = append(eligible, conn)
		}
	}
	return eligible, nil
}

// Lookup resolves a caller-facing agent name to its connection. Names that
// lack the discovery suffix, and connections that do not exist, are both
// ErrConnectionNotFound; callers cannot tell the difference.
func (r *Registry) Lookup(ctx context.Context, agentName string) (*Connection, error) {
	if agentName == "" {
		return nil, ErrConnectionNotFound
	}
	conn, err := r.store.GetConnection(ctx, agentName+r.suffix)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Card returns the agent card for conn, from cache when fresh.
func (r *Registry) Card(ctx context.Context, conn *Connection) (*a2a.AgentCard, error) {
	r.mu.RLock()
	entry, ok := r.cards[conn.Name]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < r.cardTTL {
		return entry.card, nil
	}

	if msg, found := r.negative.Get(conn.Name); found {
		return nil, fmt.Errorf("%w: %s", ErrCardUnavailable, msg)
	}

	card, err, _ := r.sf.Do(conn.Name, func() (any, error) {
		return r.fetchCard(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	return card.(*a2a.AgentCard), nil
}

func (r *Registry) fetchCard(ctx context.Context, conn *Connection) (*a2a.AgentCard, error) {
	card, err := r.doFetchCard(ctx, conn)
	if err != nil {
		r.negative.Set(conn.Name, err.Error())
		r.logger.Warn("agent card fetch failed",
			"connection", conn.Name,
			"url", conn.CardURL(),
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrCardUnavailable, err)
	}

	r.mu.Lock()
	r.cards[conn.Name] = cachedCard{card: card, fetchedAt: time.Now()}
	r.mu.Unlock()

	return card, nil
}

func (r *Registry) doFetchCard(ctx context.Context, conn *Connection) (*a2a.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, conn.CardURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build card request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("card request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("card endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read card: %w", err)
	}

	var card a2a.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("card is not valid JSON: %w", err)
	}
	return &card, nil
}

// EndpointURL resolves the invocation endpoint for conn. Cards commonly
// publish a relative url (or none at all); those resolve against the
// connection's registered host, never against anything caller-supplied.
func (r *Registry) EndpointURL(conn *Connection, card *a2a.AgentCard) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(conn.Host, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("connection %s has invalid host: %w", conn.Name, err)
	}

	if card == nil || card.URL == "" {
		return strings.TrimSuffix(base.String(), "/"), nil
	}

	ref, err := url.Parse(card.URL)
	if err != nil {
		return "", fmt.Errorf("card for %s has invalid url: %w", conn.Name, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Invalidate drops any cached card for conn, forcing the next Card call to
// refetch.
func (r *Registry) Invalidate(conn *Connection) {
	r.mu.Lock()
	delete(r.cards, conn.Name)
	r.mu.Unlock()
	r.negative.Delete(conn.Name)
}

// Close releases the registry's caches.
func (r *Registry) Close() {
	r.negative.Close()
}
