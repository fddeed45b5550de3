// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/resonancehq/resonance/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Mentor"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// While an assistant message is streaming, Content is repeatedly replaced
// with a longer cumulative prefix of the final reply; it never shrinks until
// the stream completes, fails, or is aborted. Within one conversation at most
// one message has IsStreaming set at any time.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// IsStreaming is true only for the assistant message currently
	// receiving tokens. Not persisted.
	IsStreaming bool `json:"-"`

	// Seeded marks the synthetic greeting shown for a fresh conversation.
	// Seeded messages are never persisted and never sent as LLM context.
	Seeded bool `json:"-"`
}

// NewMessage creates a new message with a generated UUID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantPlaceholder creates an empty assistant message in streaming
// state. It is appended to the visible list before the first token arrives so
// the UI shows a pending reply with zero latency.
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:          uuid.NewString(),
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsStreaming: true,
	}
}

// NewGreeting creates the seeded greeting message for a new conversation.
func NewGreeting(content string) *Message {
	m := NewMessage(RoleAssistant, content)
	m.Seeded = true
	return m
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// SetStreamContent replaces the content with a newer cumulative prefix.
// Only meaningful while the message is streaming.
func (m *Message) SetStreamContent(cumulative string) {
	if m.IsStreaming {
		m.Content = cumulative
	}
}

// Finalize ends the streaming state, fixing the content at its final value.
func (m *Message) Finalize(content string) {
	m.Content = content
	m.IsStreaming = false
}

// Preview returns a single-line truncated preview of the message content.
func (m *Message) Preview(maxRunes int) string {
	return util.TruncateRunes(util.OneLine(m.Content), maxRunes)
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}
