// Package agent implements the reasoning steps a local agent plugs into the
// task manager: a time teller, a greeter that delegates to it, an LLM
// orchestrator over remote agents and a plain LLM chat agent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agora/pkg/delegation"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/memory"
	"github.com/jllopis/agora/pkg/telemetry"
	"github.com/jllopis/agora/pkg/tools"
)

const (
	defaultMaxIterations = 8
	defaultHistoryWindow = 40
)

var (
	ErrMissingProvider = errors.New("llm provider is required")
	ErrMissingRouter   = errors.New("delegation router is required")
)

// Option configures an agent.
type Option func(*options) error

type options struct {
	name          string
	logger        *slog.Logger
	metrics       *telemetry.Metrics
	provider      llm.Provider
	providerName  string
	model         string
	instructions  string
	memory        memory.ConversationMemory
	tools         []tools.Tool
	decider       delegation.Decider
	maxIterations int
	timeAgent     string
	now           func() time.Time
	tracer        trace.Tracer
}

func newOptions(name string, opts []Option) (*options, error) {
	o := &options{
		name:          name,
		logger:        slog.Default(),
		maxIterations: defaultMaxIterations,
		timeAgent:     "TellTimeAgent",
		now:           time.Now,
		tracer:        otel.Tracer("agora/agent"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.memory == nil {
		o.memory = memory.NewInMemoryConversation(memory.ConversationConfig{
			TruncationStrategy: memory.NewWindowStrategy(defaultHistoryWindow, true),
		})
	}
	return o, nil
}

// WithName sets the agent name used in logs and prompts.
func WithName(name string) Option {
	return func(o *options) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("agent name is required")
		}
		o.name = name
		return nil
	}
}

// WithLogger sets the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithMetrics records tool and model failures.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(o *options) error {
		o.metrics = metrics
		return nil
	}
}

// WithLLM sets the chat model. providerName only labels telemetry.
func WithLLM(provider llm.Provider, providerName, model string) Option {
	return func(o *options) error {
		o.provider = provider
		o.providerName = providerName
		o.model = model
		return nil
	}
}

// WithInstructions sets the system prompt.
func WithInstructions(instructions string) Option {
	return func(o *options) error {
		o.instructions = instructions
		return nil
	}
}

// WithMemory sets the per-session conversation memory.
func WithMemory(mem memory.ConversationMemory) Option {
	return func(o *options) error {
		o.memory = mem
		return nil
	}
}

// WithTools adds tools the model may call.
func WithTools(ts ...tools.Tool) Option {
	return func(o *options) error {
		o.tools = append(o.tools, ts...)
		return nil
	}
}

// WithDecider picks remote agents when no model is configured.
func WithDecider(decider delegation.Decider) Option {
	return func(o *options) error {
		o.decider = decider
		return nil
	}
}

// WithMaxIterations bounds the model tool loop.
func WithMaxIterations(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("max iterations must be at least 1, got %d", n)
		}
		o.maxIterations = n
		return nil
	}
}

// WithTimeAgent names the remote agent asked for the time.
func WithTimeAgent(name string) Option {
	return func(o *options) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("time agent name is required")
		}
		o.timeAgent = name
		return nil
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

// sourced is implemented by tools that come from an external server.
type sourced interface {
	Source() string
}

func toolSource(tool tools.Tool) string {
	if s, ok := tool.(sourced); ok {
		return s.Source()
	}
	return "local"
}

// callTool runs one tool call inside a span and logs its outcome.
func (o *options) callTool(ctx context.Context, registry *tools.Registry, call llm.ToolCall, taskID string) (string, error) {
	toolName := call.Function.Name
	source := "unknown"
	if tool, ok := registry.Get(toolName); ok {
		source = toolSource(tool)
	}

	toolStart := time.Now()
	toolCtx, toolSpan := o.tracer.Start(ctx, "Agent.Tool.Call")
	res, err := registry.Invoke(toolCtx, call)
	toolDurationMs := time.Since(toolStart).Seconds() * 1000
	toolSpan.SetAttributes(telemetry.ToolCallAttributes(toolName, call.ID, source, toolDurationMs, err == nil)...)
	toolSpan.SetAttributes(telemetry.ToolCallArgsResult(call.Function.Arguments, res, 500)...)
	if err != nil {
		toolSpan.RecordError(err)
		toolSpan.SetStatus(codes.Error, err.Error())
	}
	toolSpan.End()

	if err != nil {
		ke := WrapToolError(err, toolName, call.ID)
		o.metrics.RecordError(ctx, ke, "agent-tool")
		o.logger.ErrorContext(ctx, "agent.tool.error",
			slog.String("agent", o.name),
			slog.String("task_id", taskID),
			slog.String("tool", toolName),
			slog.String("tool_call_id", call.ID),
			slog.String("error", err.Error()),
		)
		return "", ke
	}

	o.logger.InfoContext(ctx, "agent.tool.complete",
		slog.String("agent", o.name),
		slog.String("task_id", taskID),
		slog.String("tool", toolName),
		slog.String("tool_call_id", call.ID),
		slog.Float64("duration_ms", toolDurationMs),
	)
	return res, nil
}

// chat sends one model request inside a span.
func (o *options) chat(ctx context.Context, messages []llm.Message, defs []llm.Tool, taskID string) (*llm.ChatResponse, error) {
	llmCtx, llmSpan := o.tracer.Start(ctx, "Agent.LLM.Chat")
	llmSpan.SetAttributes(telemetry.LLMAttributes(o.model, o.providerName, len(messages), 0)...)
	resp, err := o.provider.Chat(llmCtx, llm.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    defs,
	})
	if resp != nil {
		llmSpan.SetAttributes(telemetry.LLMAttributes(o.model, o.providerName, len(messages), len(resp.ToolCalls))...)
		llmSpan.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	}
	if err != nil {
		llmSpan.RecordError(err)
		llmSpan.SetStatus(codes.Error, err.Error())
	}
	llmSpan.End()

	if err != nil {
		ke := WrapLLMError(err, o.model)
		o.metrics.RecordError(ctx, ke, "agent-llm")
		o.logger.ErrorContext(ctx, "agent.llm.error",
			slog.String("agent", o.name),
			slog.String("task_id", taskID),
			slog.String("model", o.model),
			slog.String("error", err.Error()),
		)
		return nil, ke
	}
	return resp, nil
}
