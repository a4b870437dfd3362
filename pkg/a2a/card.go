package a2a

import (
	"fmt"
	"strings"
)

// AgentCapabilities lists optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// AgentSkill describes one capability that delegating agents can match on.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentProvider identifies the organisation running the agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// AgentCard is the published, immutable descriptor of an agent.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	URL                string            `json:"url"`
	Version            string            `json:"version,omitempty"`
	DocumentationURL   string            `json:"documentationUrl,omitempty"`
	Provider           *AgentProvider    `json:"provider,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill      `json:"skills"`
}

// Validate checks the fields peers rely on before issuing any call.
func (c *AgentCard) Validate() error {
	if c == nil {
		return fmt.Errorf("agent card is nil")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("agent card: name is required")
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("agent card: url is required")
	}
	for i, skill := range c.Skills {
		if strings.TrimSpace(skill.ID) == "" && strings.TrimSpace(skill.Name) == "" {
			return fmt.Errorf("agent card: skill %d has neither id nor name", i)
		}
	}
	return nil
}
