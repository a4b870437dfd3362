// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/telemetry"
)

const defaultOpenAIModel = "gpt-5-mini"

// OpenAIProvider implements Provider for the OpenAI chat completions API
// and compatible servers.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	requestOptions []option.RequestOption
}

// WithOpenAIAPIKey sets the API key. Without it OPENAI_API_KEY is read.
func WithOpenAIAPIKey(apiKey string) OpenAIOption {
	return func(c *openAIConfig) {
		if apiKey != "" {
			c.requestOptions = append(c.requestOptions, option.WithAPIKey(apiKey))
		}
	}
}

// WithOpenAIBaseURL points the provider at a proxy or compatible server.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		if url != "" {
			c.requestOptions = append(c.requestOptions, option.WithBaseURL(url))
		}
	}
}

// WithOpenAIHTTPClient overrides the HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openAIConfig) {
		if client != nil {
			c.requestOptions = append(c.requestOptions, option.WithHTTPClient(client))
		}
	}
}

// WithOpenAIMaxRetries sets how often failed calls are retried.
func WithOpenAIMaxRetries(n int) OpenAIOption {
	return func(c *openAIConfig) {
		c.requestOptions = append(c.requestOptions, option.WithMaxRetries(n))
	}
}

// NewOpenAI creates an OpenAIProvider. model is used when a request does
// not name one.
func NewOpenAI(model string, opts ...OpenAIOption) *OpenAIProvider {
	var cfg openAIConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(cfg.requestOptions...),
		model:  model,
	}
}

// Chat implements Provider.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	ctx, span := otel.Tracer("agora/llm").Start(ctx, "llm.chat",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.LLMAttributes(model, "openai", len(req.Messages), 0)...),
	)
	defer span.End()

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, toOpenAITool(tool))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.New(errors.CodeLLMError, "openai chat failed", err).
			WithAttribute("model", model)
	}
	resp := fromOpenAICompletion(completion)
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	return resp, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		out = append(out, toOpenAIMessage(msg))
	}
	return out
}

func toOpenAIMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.Content)
	case RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	case RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return openai.AssistantMessage(msg.Content)
		}
		assistant := openai.ChatCompletionAssistantMessageParam{}
		for _, call := range msg.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   call.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		if msg.Content != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(msg.Content),
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	}
	return openai.UserMessage(msg.Content)
}

func toOpenAITool(tool Tool) openai.ChatCompletionToolParam {
	var params openai.FunctionParameters
	if data, err := json.Marshal(tool.Function.Parameters); err == nil {
		_ = json.Unmarshal(data, &params)
	}
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  params,
		},
	}
}

func fromOpenAICompletion(completion *openai.ChatCompletion) *ChatResponse {
	resp := &ChatResponse{
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) == 0 {
		return resp
	}
	message := completion.Choices[0].Message
	resp.Content = message.Content
	for _, call := range message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   call.ID,
			Type: ToolTypeFunction,
			Function: FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return resp
}
