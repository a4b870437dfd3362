package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/telemetry"
	"github.com/jllopis/agora/pkg/tools"
)

// ToolCaller abstracts MCP tool execution for adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolAdapter exposes an MCP tool as a tools.Tool.
type ToolAdapter struct {
	tool   mcp.Tool
	caller ToolCaller
	source string
}

// NewToolAdapter builds a tools.Tool backed by an MCP tool definition and caller.
func NewToolAdapter(tool mcp.Tool, caller ToolCaller) (*ToolAdapter, error) {
	if tool.Name == "" {
		return nil, errors.InvalidInput("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.InvalidInput("tool caller is required")
	}
	source := "mcp"
	if named, ok := caller.(interface{ Name() string }); ok && named.Name() != "" {
		source = "mcp:" + named.Name()
	}
	return &ToolAdapter{tool: tool, caller: caller, source: source}, nil
}

// Name returns the MCP tool name.
func (t *ToolAdapter) Name() string {
	return t.tool.Name
}

// Source names the MCP server the tool comes from.
func (t *ToolAdapter) Source() string {
	return t.source
}

// Definition returns the model function definition for this tool.
func (t *ToolAdapter) Definition() llm.Tool {
	return ToolDefinition(t.tool)
}

// Call validates required arguments and invokes the MCP tool.
func (t *ToolAdapter) Call(ctx context.Context, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	ctx, span := otel.Tracer("agora/mcp").Start(ctx, "tool.call "+t.tool.Name)
	defer span.End()
	start := time.Now()

	output, err := t.call(ctx, args)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	span.SetAttributes(telemetry.ToolCallAttributes(t.tool.Name, "", t.source, elapsed, err == nil)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", errors.New(errors.CodeToolFailure, "mcp tool call failed", err).
			WithAttribute("tool", t.tool.Name)
	}
	return output, nil
}

func (t *ToolAdapter) call(ctx context.Context, args map[string]any) (string, error) {
	if err := validateRequiredArgs(t.tool, args); err != nil {
		return "", err
	}
	result, err := t.caller.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return "", err
	}
	return toolResultToOutput(result)
}

// ToolDefinition converts an MCP tool into a model function definition.
func ToolDefinition(tool mcp.Tool) llm.Tool {
	var params any = tool.InputSchema
	if tool.RawInputSchema != nil {
		params = tool.RawInputSchema
	}
	return tools.Function(tool.Name, tool.Description, params)
}

// LoadTools lists the server's tools and wraps each of them.
func LoadTools(ctx context.Context, c *Client) ([]tools.Tool, error) {
	listed, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tools.Tool, 0, len(listed))
	for _, tool := range listed {
		adapter, err := NewToolAdapter(tool, c)
		if err != nil {
			return nil, err
		}
		out = append(out, adapter)
	}
	return out, nil
}

func validateRequiredArgs(tool mcp.Tool, args map[string]any) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	return nil
}

func toolResultToOutput(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("mcp tool result is nil")
	}
	if result.IsError {
		return "", fmt.Errorf("tool returned error: %s", extractTextContent(result.Content))
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	if result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return "", fmt.Errorf("encode structured content: %w", err)
		}
		return string(data), nil
	}
	return "", nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ tools.Tool = (*ToolAdapter)(nil)
