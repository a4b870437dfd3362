// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestTaskAttributes(t *testing.T) {
	attrs := TaskAttributes("task-1", "session-9", "working")

	expected := map[string]any{
		AttrTaskID:    "task-1",
		AttrSessionID: "session-9",
		AttrTaskState: "working",
	}

	assertAttributes(t, attrs, expected)
}

func TestTaskAttributesOmitEmpty(t *testing.T) {
	attrs := TaskAttributes("task-1", "", "")
	if len(attrs) != 1 {
		t.Fatalf("expected only the task id, got %d attributes", len(attrs))
	}
}

func TestDelegationAttributes(t *testing.T) {
	attrs := DelegationAttributes("TellTimeAgent", "http://localhost:10000", 2)

	expected := map[string]any{
		AttrAgentName:         "TellTimeAgent",
		AttrAgentURL:          "http://localhost:10000",
		AttrDelegationAttempt: 2,
	}

	assertAttributes(t, attrs, expected)
}

func TestToolCallAttributes(t *testing.T) {
	attrs := ToolCallAttributes("delegate_task", "call-1", "delegation", 150.5, true)

	expected := map[string]any{
		AttrToolName:       "delegate_task",
		AttrToolCallID:     "call-1",
		AttrToolSource:     "delegation",
		AttrToolDurationMs: 150.5,
		AttrToolSuccess:    true,
	}

	assertAttributes(t, attrs, expected)
}

func TestToolCallArgsResultTruncates(t *testing.T) {
	long := strings.Repeat("x", 40)
	attrs := ToolCallArgsResult(long, "ok", 10)

	expected := map[string]any{
		AttrToolArgs:   strings.Repeat("x", 10) + "...",
		AttrToolResult: "ok",
	}

	assertAttributes(t, attrs, expected)
}

func TestLLMAttributes(t *testing.T) {
	attrs := LLMAttributes("qwen2.5", "ollama", 4, 2)
	attrs = append(attrs, LLMUsageAttributes(100, 20)...)

	expected := map[string]any{
		AttrLLMModel:        "qwen2.5",
		AttrLLMProvider:     "ollama",
		AttrLLMMessages:     4,
		AttrLLMToolCalls:    2,
		AttrLLMTokensInput:  100,
		AttrLLMTokensOutput: 20,
	}

	assertAttributes(t, attrs, expected)
}

func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}
