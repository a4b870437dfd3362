// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const unboundedSessions = 1 << 20

// InMemoryConversation implements ConversationMemory with in-memory storage.
// Data is lost on restart.
type InMemoryConversation struct {
	mu       sync.Mutex
	sessions *simplelru.LRU[string, []ConversationMessage]
	config   ConversationConfig
}

// NewInMemoryConversation creates a new in-memory conversation store.
func NewInMemoryConversation(config ConversationConfig) *InMemoryConversation {
	size := config.MaxSessions
	if size <= 0 {
		size = unboundedSessions
	}
	sessions, _ := simplelru.NewLRU[string, []ConversationMessage](size, nil)
	return &InMemoryConversation{sessions: sessions, config: config}
}

// AppendMessage adds a message to the conversation.
func (m *InMemoryConversation) AppendMessage(_ context.Context, sessionID string, msg ConversationMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	history, _ := m.sessions.Get(sessionID)
	m.sessions.Add(sessionID, append(history, msg))
	return nil
}

// GetMessages retrieves all messages for a session.
func (m *InMemoryConversation) GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error) {
	messages := m.snapshot(sessionID)
	if m.config.TruncationStrategy != nil && len(messages) > 0 {
		return m.config.TruncationStrategy.Truncate(ctx, messages)
	}
	return messages, nil
}

// GetRecentMessages retrieves the last N messages for a session.
func (m *InMemoryConversation) GetRecentMessages(_ context.Context, sessionID string, limit int) ([]ConversationMessage, error) {
	all := m.snapshot(sessionID)
	if limit < 0 || len(all) <= limit {
		return all, nil
	}
	return all[len(all)-limit:], nil
}

// Clear removes all messages for a session.
func (m *InMemoryConversation) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(sessionID)
	return nil
}

// DeleteOldMessages removes messages older than the given duration.
func (m *InMemoryConversation) DeleteOldMessages(_ context.Context, sessionID string, olderThan time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages, ok := m.sessions.Peek(sessionID)
	if !ok {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	var kept []ConversationMessage
	for _, msg := range messages {
		if msg.CreatedAt.After(cutoff) {
			kept = append(kept, msg)
		}
	}
	m.sessions.Add(sessionID, kept)
	return nil
}

// ExpireSessions drops messages older than olderThan from every session and
// forgets sessions left empty. It returns how many sessions were removed.
func (m *InMemoryConversation) ExpireSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	removed := 0
	for _, id := range m.ListSessions() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := m.DeleteOldMessages(ctx, id, olderThan); err != nil {
			return removed, err
		}
		m.mu.Lock()
		if messages, ok := m.sessions.Peek(id); ok && len(messages) == 0 {
			m.sessions.Remove(id)
			removed++
		}
		m.mu.Unlock()
	}
	return removed, nil
}

// ListSessions returns all active session IDs.
func (m *InMemoryConversation) ListSessions() []string {
	m.mu.Lock()
	ids := m.sessions.Keys()
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (m *InMemoryConversation) snapshot(sessionID string) []ConversationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	history, _ := m.sessions.Get(sessionID)
	out := make([]ConversationMessage, len(history))
	copy(out, history)
	return out
}
