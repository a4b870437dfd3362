// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory keeps per-session conversation history for reasoning agents.
package memory

import (
	"context"
	"time"

	"github.com/jllopis/agora/pkg/llm"
)

// ConversationMessage represents a single message in a conversation history.
type ConversationMessage struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Role       llm.Role          `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []llm.ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// FromLLM wraps a model message for storage.
func FromLLM(msg llm.Message) ConversationMessage {
	return ConversationMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCalls:  msg.ToolCalls,
		ToolCallID: msg.ToolCallID,
	}
}

// LLM converts the stored message back to a model message.
func (m ConversationMessage) LLM() llm.Message {
	return llm.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}

// ToLLM converts a history to model messages.
func ToLLM(messages []ConversationMessage) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.LLM())
	}
	return out
}

// ConversationMemory stores and retrieves conversation history for
// multi-turn interactions, ordered by append time.
type ConversationMemory interface {
	// AppendMessage adds a message to the conversation.
	AppendMessage(ctx context.Context, sessionID string, msg ConversationMessage) error

	// GetMessages retrieves the session history after truncation.
	GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error)

	// GetRecentMessages retrieves the last N messages for a session.
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]ConversationMessage, error)

	// Clear removes all messages for a session.
	Clear(ctx context.Context, sessionID string) error

	// DeleteOldMessages removes messages older than the given duration.
	DeleteOldMessages(ctx context.Context, sessionID string, olderThan time.Duration) error
}

// TruncationStrategy defines how to manage conversation length.
type TruncationStrategy interface {
	// Truncate reduces messages while preserving context.
	Truncate(ctx context.Context, messages []ConversationMessage) ([]ConversationMessage, error)
}

// WindowStrategy keeps only the last N messages.
type WindowStrategy struct {
	MaxMessages int
	// KeepSystemMessages preserves system messages regardless of window.
	KeepSystemMessages bool
}

// NewWindowStrategy creates a window-based truncation strategy.
func NewWindowStrategy(maxMessages int, keepSystem bool) *WindowStrategy {
	return &WindowStrategy{MaxMessages: maxMessages, KeepSystemMessages: keepSystem}
}

// Truncate implements TruncationStrategy.
func (w *WindowStrategy) Truncate(_ context.Context, messages []ConversationMessage) ([]ConversationMessage, error) {
	if w.MaxMessages <= 0 || len(messages) <= w.MaxMessages {
		return messages, nil
	}
	if !w.KeepSystemMessages {
		return dropOrphanToolResults(messages[len(messages)-w.MaxMessages:]), nil
	}

	system, other := splitSystem(messages)
	available := max(w.MaxMessages-len(system), 0)
	if len(other) > available {
		other = other[len(other)-available:]
	}
	return append(system, dropOrphanToolResults(other)...), nil
}

// TokenStrategy keeps the most recent messages that fit a token budget.
type TokenStrategy struct {
	MaxTokens int
	// TokenCounter estimates tokens for a message. Nil uses len(content)/4.
	TokenCounter func(msg ConversationMessage) int
	// KeepSystemMessages preserves system messages regardless of budget.
	KeepSystemMessages bool
}

// NewTokenStrategy creates a token-based truncation strategy.
func NewTokenStrategy(maxTokens int, keepSystem bool) *TokenStrategy {
	return &TokenStrategy{MaxTokens: maxTokens, KeepSystemMessages: keepSystem}
}

// Truncate implements TruncationStrategy.
func (t *TokenStrategy) Truncate(_ context.Context, messages []ConversationMessage) ([]ConversationMessage, error) {
	counter := t.TokenCounter
	if counter == nil {
		counter = func(msg ConversationMessage) int { return len(msg.Content) / 4 }
	}

	total := 0
	for _, msg := range messages {
		total += counter(msg)
	}
	if total <= t.MaxTokens {
		return messages, nil
	}

	var system, other []ConversationMessage
	if t.KeepSystemMessages {
		system, other = splitSystem(messages)
	} else {
		other = messages
	}
	budget := t.MaxTokens
	for _, msg := range system {
		budget -= counter(msg)
	}

	start := len(other)
	used := 0
	for i := len(other) - 1; i >= 0; i-- {
		cost := counter(other[i])
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return append(system, dropOrphanToolResults(other[start:])...), nil
}

func splitSystem(messages []ConversationMessage) (system, other []ConversationMessage) {
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg)
		} else {
			other = append(other, msg)
		}
	}
	return system, other
}

// dropOrphanToolResults removes leading tool results whose calling
// assistant turn was cut off; models reject such histories.
func dropOrphanToolResults(messages []ConversationMessage) []ConversationMessage {
	for len(messages) > 0 && messages[0].Role == llm.RoleTool {
		messages = messages[1:]
	}
	return messages
}

// ConversationConfig configures conversation memory behavior.
type ConversationConfig struct {
	// TruncationStrategy to apply when loading messages. Optional.
	TruncationStrategy TruncationStrategy
	// MaxSessions bounds the number of sessions kept; the least recently
	// used is evicted. Zero means unbounded.
	MaxSessions int
}
