// Package tools defines the callable tools offered to a reasoning step and
// the registry that dispatches model tool calls to them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
)

// Tool is a capability the model may invoke.
type Tool interface {
	Name() string
	Definition() llm.Tool
	// Call runs the tool with decoded JSON object arguments and returns the
	// text handed back to the model.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry with tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	if tool == nil || strings.TrimSpace(tool.Name()) == "" {
		return errors.InvalidInput("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return errors.InvalidInput(fmt.Sprintf("tool %q already registered", tool.Name()))
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns the model definitions of every tool, sorted by name.
func (r *Registry) Definitions() []llm.Tool {
	names := r.Names()
	out := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.Get(name); ok {
			out = append(out, tool.Definition())
		}
	}
	return out
}

// Invoke decodes call arguments and runs the named tool. Unknown tools and
// undecodable arguments are CodeToolFailure errors.
func (r *Registry) Invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	tool, ok := r.Get(call.Function.Name)
	if !ok {
		return "", errors.New(errors.CodeToolFailure, fmt.Sprintf("unknown tool %q", call.Function.Name), nil)
	}
	args, err := ParseArguments(call.Function.Arguments)
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "invalid tool arguments", err).
			WithAttribute("tool", call.Function.Name)
	}
	return tool.Call(ctx, args)
}

// ParseArguments decodes a JSON object produced by a model. Malformed input
// such as trailing commas, single quotes or truncated objects is repaired
// before giving up.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		if args == nil {
			args = map[string]any{}
		}
		return args, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Decode converts decoded arguments into T.
func Decode[T any](args map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}

// Schema reflects the JSON Schema of T for use as tool parameters. Fields
// tagged jsonschema:"required" are required.
func Schema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// Function builds a model definition for a function tool.
func Function(name, description string, parameters any) llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
