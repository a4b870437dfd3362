package agentcard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/errors"
)

// Discovery constants for AgentCard HTTP endpoints.
const (
	// WellKnownPath is the standardized location for AgentCard discovery.
	WellKnownPath = "/.well-known/agent.json"
	// WellKnownAliasPath is the newer name of the same document.
	WellKnownAliasPath = "/.well-known/agent-card.json"
	// DefaultMediaType is the media type of the card document.
	DefaultMediaType = "application/json"

	maxCardBytes = 1 << 20
)

// PublishHandler serves the provided AgentCard as JSON.
func PublishHandler(card *a2a.AgentCard) http.Handler {
	payload, encodeErr := json.Marshal(card)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if card == nil {
			http.Error(w, "agent card not configured", http.StatusNotFound)
			return
		}
		if encodeErr != nil {
			http.Error(w, "failed to encode agent card", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", DefaultMediaType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	})
}

// Fetch retrieves and validates the AgentCard published under baseURL.
// Every failure is a discovery error.
func Fetch(ctx context.Context, httpClient *http.Client, baseURL string) (*a2a.AgentCard, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := NormalizeEndpoint(baseURL)
	if base == "" {
		return nil, errors.Discovery(baseURL, fmt.Errorf("empty endpoint"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+WellKnownPath, nil)
	if err != nil {
		return nil, errors.Discovery(base, err)
	}
	req.Header.Set("Accept", DefaultMediaType)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Discovery(base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Discovery(base, fmt.Errorf("agent card fetch failed: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCardBytes))
	if err != nil {
		return nil, errors.Discovery(base, err)
	}

	var card a2a.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, errors.Discovery(base, fmt.Errorf("decode agent card: %w", err))
	}
	if err := card.Validate(); err != nil {
		return nil, errors.Discovery(base, err)
	}
	return &card, nil
}

// NormalizeEndpoint trims whitespace and trailing slashes and lowercases the
// scheme and host so equivalent base URLs share one cache entry.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	scheme, rest, found := strings.Cut(endpoint, "://")
	if !found {
		return endpoint
	}
	host, path, _ := strings.Cut(rest, "/")
	out := strings.ToLower(scheme) + "://" + strings.ToLower(host)
	if path != "" {
		out += "/" + path
	}
	return out
}
