// Package discovery lists the remote agents a node may delegate to. Entries
// come from configuration and from an optional registry file, merged in
// priority order.
package discovery

import (
	"context"
	"errors"
	"strings"

	"github.com/jllopis/agora/pkg/a2a/agentcard"
)

// AgentEndpoint is one remote agent. Name is optional; the agent card
// provides it when missing.
type AgentEndpoint struct {
	Name string `yaml:"name" json:"name,omitempty"`
	URL  string `yaml:"url" json:"url"`
}

// Provider lists agent endpoints.
type Provider interface {
	List(ctx context.Context) ([]AgentEndpoint, error)
}

// Resolver aggregates providers in priority order.
type Resolver struct {
	providers []Provider
}

// NewResolver creates a resolver with providers in order of priority.
func NewResolver(providers ...Provider) (*Resolver, error) {
	filtered := make([]Provider, 0, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		filtered = append(filtered, provider)
	}
	if len(filtered) == 0 {
		return nil, errors.New("no discovery providers configured")
	}
	return &Resolver{providers: filtered}, nil
}

// Resolve returns discovered endpoints in order, deduped by normalised URL.
// The first provider naming an endpoint wins.
func (r *Resolver) Resolve(ctx context.Context) ([]AgentEndpoint, error) {
	if r == nil {
		return nil, errors.New("resolver is nil")
	}
	out := make([]AgentEndpoint, 0)
	seen := map[string]struct{}{}
	for _, provider := range r.providers {
		entries, err := provider.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			key := agentcard.NormalizeEndpoint(entry.URL)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, AgentEndpoint{
				Name: strings.TrimSpace(entry.Name),
				URL:  strings.TrimSpace(entry.URL),
			})
		}
	}
	return out, nil
}

// ToEntries converts endpoints to registry entries.
func ToEntries(endpoints []AgentEndpoint) []agentcard.Entry {
	out := make([]agentcard.Entry, 0, len(endpoints))
	for _, endpoint := range endpoints {
		out = append(out, agentcard.Entry{Name: endpoint.Name, URL: endpoint.URL})
	}
	return out
}
