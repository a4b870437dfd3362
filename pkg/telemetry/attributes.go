// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for agora telemetry.
const (
	// Task attributes
	AttrTaskID        = "agora.task.id"
	AttrTaskState     = "agora.task.state"
	AttrSessionID     = "agora.session.id"
	AttrHistoryLength = "agora.task.history_length"

	// Agent attributes
	AttrAgentName      = "agora.agent.name"
	AttrAgentURL       = "agora.agent.url"
	AttrAgentIteration = "agora.agent.iteration"
	AttrAgentMaxIter   = "agora.agent.max_iterations"

	// Delegation attributes
	AttrDelegationAttempt = "agora.delegation.attempt"
	AttrDelegationKind    = "agora.delegation.error_kind"

	// Tool attributes
	AttrToolName       = "agora.tool.name"
	AttrToolCallID     = "agora.tool.call_id"
	AttrToolArgs       = "agora.tool.arguments"
	AttrToolResult     = "agora.tool.result"
	AttrToolDurationMs = "agora.tool.duration_ms"
	AttrToolSuccess    = "agora.tool.success"
	AttrToolSource     = "agora.tool.source" // "local", "mcp", "delegation"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

// TaskAttributes returns attributes for task spans.
func TaskAttributes(taskID, sessionID, state string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if taskID != "" {
		attrs = append(attrs, attribute.String(AttrTaskID, taskID))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(AttrTaskState, state))
	}
	return attrs
}

// DelegationAttributes returns attributes for a remote agent call span.
func DelegationAttributes(agent, url string, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentName, agent),
	}
	if url != "" {
		attrs = append(attrs, attribute.String(AttrAgentURL, url))
	}
	if attempt > 0 {
		attrs = append(attrs, attribute.Int(AttrDelegationAttempt, attempt))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name, callID, source string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolCallID, callID),
		attribute.String(AttrToolSource, source),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// ToolCallArgsResult returns attributes with tool arguments and result, truncated to maxLen.
func ToolCallArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{}
	if args != "" {
		attrs = append(attrs, attribute.String(AttrToolArgs, truncate(args, maxLen)))
	}
	if result != "" {
		attrs = append(attrs, attribute.String(AttrToolResult, truncate(result, maxLen)))
	}
	return attrs
}

// LLMAttributes returns attributes for LLM call spans.
func LLMAttributes(model, provider string, msgCount int, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	return attrs
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
