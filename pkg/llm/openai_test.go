// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jllopis/agora/pkg/errors"
)

var _ Provider = (*OpenAIProvider)(nil)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1760866200,
  "model": "gpt-test",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "current_time", "arguments": "{}"}}]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
}`

func TestOpenAIChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing api key, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	p := NewOpenAI("gpt-test",
		WithOpenAIAPIKey("sk-test"),
		WithOpenAIBaseURL(srv.URL+"/v1/"),
		WithOpenAIMaxRetries(0),
	)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "time?"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Type: ToolTypeFunction, Function: FunctionCall{Name: "noop", Arguments: "{}"}}}},
			{Role: RoleTool, Content: "ok", ToolCallID: "call_0"},
		},
		Tools: []Tool{{Type: ToolTypeFunction, Function: FunctionDef{
			Name:       "current_time",
			Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Function.Name != "current_time" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}

	if got["model"] != "gpt-test" {
		t.Fatalf("unexpected model %v", got["model"])
	}
	messages, _ := got["messages"].([]any)
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	last, _ := messages[3].(map[string]any)
	if last["role"] != "tool" || last["tool_call_id"] != "call_0" {
		t.Fatalf("unexpected tool message %v", last)
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %v", got["tools"])
	}
}

func TestOpenAIChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAI("", WithOpenAIAPIKey("sk-bad"), WithOpenAIBaseURL(srv.URL+"/v1/"), WithOpenAIMaxRetries(0))
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if errors.CodeOf(err) != errors.CodeLLMError {
		t.Fatalf("expected LLM error, got %v", err)
	}
}
