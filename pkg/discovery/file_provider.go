package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileProvider reads endpoints from a YAML or JSON file. The file holds a
// list whose items are either base URLs or {name, url} objects, e.g.
// a bare "http://localhost:10000" next to a mapping with name GreetingAgent
// and url http://localhost:10001.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider for path.
func NewFileProvider(path string) (*FileProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve registry path: %w", err)
	}
	return &FileProvider{path: absPath}, nil
}

// Path returns the absolute file path.
func (p *FileProvider) Path() string {
	return p.path
}

// List reads and parses the file. A missing file yields no endpoints.
func (p *FileProvider) List(_ context.Context) ([]AgentEndpoint, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry file %s: %w", p.path, err)
	}
	endpoints, err := ParseEndpoints(data)
	if err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", p.path, err)
	}
	return endpoints, nil
}

// ParseEndpoints decodes a registry document. JSON documents are accepted
// since they are valid YAML.
func ParseEndpoints(data []byte) ([]AgentEndpoint, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var items []yaml.Node
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	out := make([]AgentEndpoint, 0, len(items))
	for i := range items {
		item := &items[i]
		switch item.Kind {
		case yaml.ScalarNode:
			if url := strings.TrimSpace(item.Value); url != "" {
				out = append(out, AgentEndpoint{URL: url})
			}
		case yaml.MappingNode:
			var endpoint AgentEndpoint
			if err := item.Decode(&endpoint); err != nil {
				return nil, fmt.Errorf("line %d: %w", item.Line, err)
			}
			if strings.TrimSpace(endpoint.URL) == "" {
				return nil, fmt.Errorf("line %d: url is required", item.Line)
			}
			out = append(out, endpoint)
		default:
			return nil, fmt.Errorf("line %d: expected url or mapping", item.Line)
		}
	}
	return out, nil
}
