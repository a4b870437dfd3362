package agentcard

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/telemetry"
)

const (
	defaultCacheSize    = 128
	defaultFetchTimeout = 10 * time.Second
	maxParallelFetches  = 8
)

// Entry is one configured remote agent. Name may be empty when only the
// endpoint is known; the card then provides it.
type Entry struct {
	Name string
	URL  string
}

// Known is a resolved configured agent.
type Known struct {
	Entry Entry
	Card  *a2a.AgentCard
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHTTPClient sets the client used to fetch cards.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(r *Registry) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithCacheSize bounds the number of cached cards.
func WithCacheSize(size int) RegistryOption {
	return func(r *Registry) {
		if size > 0 {
			r.cacheSize = size
		}
	}
}

// WithFetchTimeout bounds a single card fetch.
func WithFetchTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.fetchTimeout = timeout
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches cache metrics.
func WithMetrics(metrics *telemetry.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = metrics
	}
}

// Registry publishes the local card and resolves remote ones. Resolved cards
// are cached per normalised endpoint until explicitly refreshed.
type Registry struct {
	own          *a2a.AgentCard
	httpClient   *http.Client
	cacheSize    int
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *telemetry.Metrics

	cache *lru.Cache[string, *a2a.AgentCard]
	group singleflight.Group

	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry creates a registry for own with the configured remote entries.
func NewRegistry(own *a2a.AgentCard, entries []Entry, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		own:          own,
		httpClient:   http.DefaultClient,
		cacheSize:    defaultCacheSize,
		fetchTimeout: defaultFetchTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	cache, err := lru.New[string, *a2a.AgentCard](r.cacheSize)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	r.entries = cleanEntries(entries)
	return r, nil
}

// Publish returns the local agent's card.
func (r *Registry) Publish() *a2a.AgentCard {
	return r.own
}

// Resolve returns the card of a configured agent name or of a base URL.
func (r *Registry) Resolve(ctx context.Context, endpointOrName string) (*a2a.AgentCard, error) {
	endpoint := strings.TrimSpace(endpointOrName)
	if entry, ok := r.Lookup(endpoint); ok {
		endpoint = entry.URL
	} else if !strings.Contains(endpoint, "://") {
		return nil, errors.UnknownAgent(endpointOrName)
	}
	return r.resolveEndpoint(ctx, endpoint)
}

// Find looks a configured name up and resolves its card. Unknown names fail
// with UnknownAgent without any network call; unnamed entries are only
// addressable once ResolveNames or ListKnown has fetched their cards.
func (r *Registry) Find(ctx context.Context, name string) (Known, error) {
	entry, ok := r.Lookup(name)
	if !ok {
		return Known{}, errors.UnknownAgent(name)
	}
	card, err := r.resolveEndpoint(ctx, entry.URL)
	if err != nil {
		return Known{Entry: entry}, err
	}
	if entry.Name == "" {
		entry.Name = card.Name
	}
	return Known{Entry: entry, Card: card}, nil
}

// Lookup finds a configured entry by name without any network call. Names
// match case-insensitively and exactly. Unnamed entries match on their
// cached card name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	query := strings.TrimSpace(name)
	if query == "" {
		return Entry{}, false
	}
	for _, entry := range r.Entries() {
		if entry.Name == "" {
			if card, ok := r.cache.Peek(NormalizeEndpoint(entry.URL)); ok {
				entry.Name = card.Name
			}
		}
		if strings.EqualFold(entry.Name, query) {
			return entry, true
		}
	}
	return Entry{}, false
}

// ResolveNames fetches the cards of unnamed entries that are not cached yet,
// making them addressable by card name. It returns how many were resolved.
func (r *Registry) ResolveNames(ctx context.Context) int {
	var pending []Entry
	for _, entry := range r.Entries() {
		if entry.Name == "" && !r.cache.Contains(NormalizeEndpoint(entry.URL)) {
			pending = append(pending, entry)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	var resolved atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for _, entry := range pending {
		g.Go(func() error {
			if _, err := r.resolveEndpoint(gctx, entry.URL); err != nil {
				r.logger.WarnContext(ctx, "agentcard.resolve.skipped",
					slog.String("agent", entry.URL),
					slog.String("error", err.Error()),
				)
				return nil
			}
			resolved.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(resolved.Load())
}

// ListKnown resolves every configured entry in configuration order. Entries
// that fail to resolve are logged and skipped.
func (r *Registry) ListKnown(ctx context.Context) []Known {
	known, _ := r.ListKnownDetailed(ctx)
	return known
}

// ListKnownDetailed is ListKnown plus the resolution error of each skipped
// entry, keyed by entry name or URL.
func (r *Registry) ListKnownDetailed(ctx context.Context) ([]Known, map[string]error) {
	entries := r.Entries()
	cards := make([]*a2a.AgentCard, len(entries))
	failures := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, entry := range entries {
		g.Go(func() error {
			card, err := r.resolveEndpoint(gctx, entry.URL)
			cards[i] = card
			failures[i] = err
			return nil
		})
	}
	_ = g.Wait()

	known := make([]Known, 0, len(entries))
	failed := make(map[string]error)
	for i, entry := range entries {
		if failures[i] != nil {
			key := entry.Name
			if key == "" {
				key = entry.URL
			}
			failed[key] = failures[i]
			r.logger.WarnContext(ctx, "agentcard.resolve.skipped",
				slog.String("agent", key),
				slog.String("error", failures[i].Error()),
			)
			continue
		}
		if entry.Name == "" {
			entry.Name = cards[i].Name
		}
		known = append(known, Known{Entry: entry, Card: cards[i]})
	}
	return known, failed
}

// Refresh drops the cached card of endpoint so the next resolve refetches it.
func (r *Registry) Refresh(endpoint string) {
	r.cache.Remove(NormalizeEndpoint(endpoint))
}

// RefreshAll drops every cached card.
func (r *Registry) RefreshAll() {
	r.cache.Purge()
}

// Entries returns a copy of the configured entries.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

// SetEntries replaces the configured entries. Cached cards of endpoints that
// are no longer configured are dropped.
func (r *Registry) SetEntries(entries []Entry) {
	entries = cleanEntries(entries)
	keep := make(map[string]bool, len(entries))
	for _, entry := range entries {
		keep[NormalizeEndpoint(entry.URL)] = true
	}

	r.mu.Lock()
	previous := r.entries
	r.entries = entries
	r.mu.Unlock()

	for _, entry := range previous {
		key := NormalizeEndpoint(entry.URL)
		if !keep[key] {
			r.cache.Remove(key)
		}
	}
	r.logger.Info("agentcard.registry.updated", slog.Int("entries", len(entries)))
}

func (r *Registry) resolveEndpoint(ctx context.Context, endpoint string) (*a2a.AgentCard, error) {
	key := NormalizeEndpoint(endpoint)
	if card, ok := r.cache.Get(key); ok {
		r.metrics.RecordCacheLookup(ctx, true)
		return card, nil
	}
	r.metrics.RecordCacheLookup(ctx, false)

	value, err, _ := r.group.Do(key, func() (any, error) {
		if card, ok := r.cache.Get(key); ok {
			return card, nil
		}
		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
		card, err := Fetch(fetchCtx, r.httpClient, key)
		if err != nil {
			return nil, err
		}
		r.cache.Add(key, card)
		r.logger.DebugContext(ctx, "agentcard.resolve.fetched",
			slog.String("endpoint", key),
			slog.String("agent", card.Name),
		)
		return card, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*a2a.AgentCard), nil
}

// cleanEntries drops entries without URL and duplicate endpoints, keeping
// the first occurrence.
func cleanEntries(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.URL = strings.TrimSpace(entry.URL)
		key := NormalizeEndpoint(entry.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, entry)
	}
	return out
}
