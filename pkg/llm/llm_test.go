package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jllopis/agora/pkg/errors"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
}

func TestScriptedProvider(t *testing.T) {
	p := NewScriptedProvider(CallTool("current_time", `{}`), Say("done"))

	first, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "time?"}}})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].ID == "" || first.ToolCalls[0].Function.Name != "current_time" {
		t.Fatalf("unexpected tool call %+v", first.ToolCalls)
	}
	second, _ := p.Chat(context.Background(), ChatRequest{})
	if second.Content != "done" || p.Remaining() != 0 {
		t.Fatalf("unexpected second turn %+v", second)
	}
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error once the script is exhausted")
	}
	if n := len(p.Requests()); n != 3 {
		t.Fatalf("expected 3 recorded requests, got %d", n)
	}
}

func TestChatResponseEmpty(t *testing.T) {
	tests := []struct {
		resp *ChatResponse
		want bool
	}{
		{nil, true},
		{&ChatResponse{Content: "  "}, true},
		{&ChatResponse{Content: "hi"}, false},
		{&ChatResponse{ToolCalls: []ToolCall{{}}}, false},
	}
	for _, tt := range tests {
		if got := tt.resp.Empty(); got != tt.want {
			t.Errorf("Empty(%+v) = %v, want %v", tt.resp, got, tt.want)
		}
	}
}

func TestOllamaChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"list_agents","arguments":{}}}]},"done":true,"prompt_eval_count":5,"eval_count":3}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL+"/", "llama3.2")
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleUser, Content: "who is there?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Function: FunctionCall{Name: "x", Arguments: "{broken"}}}},
	}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got.Model != "llama3.2" || got.Stream {
		t.Fatalf("unexpected request %+v", got)
	}
	if string(got.Messages[1].ToolCalls[0].Function.Arguments) != "{}" {
		t.Fatalf("invalid arguments must be replaced, got %s", got.Messages[1].ToolCalls[0].Function.Arguments)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "list_agents" || resp.ToolCalls[0].Function.Arguments != "{}" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}

func TestOllamaChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "missing").Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, errors.CodeLLMError) {
		t.Fatalf("expected llm error, got %v", err)
	}
}
