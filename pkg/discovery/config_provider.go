package discovery

import (
	"context"
	"strings"

	"github.com/jllopis/agora/pkg/config"
)

// ConfigProvider lists agents from configuration.
type ConfigProvider struct {
	Entries []AgentEndpoint
}

// NewConfigProvider builds a provider from the registry section, keeping
// the configured order.
func NewConfigProvider(cfg config.RegistryConfig) *ConfigProvider {
	provider := &ConfigProvider{}
	for _, agent := range cfg.Agents {
		provider.Entries = append(provider.Entries, AgentEndpoint{
			Name: strings.TrimSpace(agent.Name),
			URL:  strings.TrimSpace(agent.URL),
		})
	}
	return provider
}

// List returns configured endpoints.
func (p *ConfigProvider) List(_ context.Context) ([]AgentEndpoint, error) {
	if p == nil {
		return nil, nil
	}
	return append([]AgentEndpoint(nil), p.Entries...), nil
}
