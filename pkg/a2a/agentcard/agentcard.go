// Package agentcard builds, publishes, fetches and caches A2A Agent Cards.
package agentcard

import (
	"strings"

	"github.com/jllopis/agora/pkg/a2a"
)

// Config describes AgentCard fields that can be derived from runtime settings.
type Config struct {
	Name               string
	Description        string
	URL                string
	Version            string
	DocumentationURL   string
	Streaming          bool
	DefaultInputModes  []string
	DefaultOutputModes []string
	Skills             []a2a.AgentSkill
	Provider           *a2a.AgentProvider
}

// Build assembles an AgentCard from the provided config. Input and output
// modes default to text.
func Build(cfg Config) *a2a.AgentCard {
	inputModes := cfg.DefaultInputModes
	if len(inputModes) == 0 {
		inputModes = []string{"text"}
	}
	outputModes := cfg.DefaultOutputModes
	if len(outputModes) == 0 {
		outputModes = []string{"text"}
	}
	skills := make([]a2a.AgentSkill, 0, len(cfg.Skills))
	for _, skill := range cfg.Skills {
		if skill.ID == "" {
			skill.ID = skillID(skill.Name)
		}
		skills = append(skills, skill)
	}
	return &a2a.AgentCard{
		Name:               cfg.Name,
		Description:        cfg.Description,
		URL:                strings.TrimRight(cfg.URL, "/"),
		Version:            cfg.Version,
		DocumentationURL:   cfg.DocumentationURL,
		Provider:           cfg.Provider,
		Capabilities:       a2a.AgentCapabilities{Streaming: cfg.Streaming},
		DefaultInputModes:  inputModes,
		DefaultOutputModes: outputModes,
		Skills:             skills,
	}
}

func skillID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
