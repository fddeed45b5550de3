// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/resonancehq/resonance/internal/util"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a persisted chat with its ordered message log.
// A conversation is materialized in storage lazily, on the first user send;
// until then it exists only as transient session state with no ID.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"` // empty means "derive a label from the first message"
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`
}

// TitleMaxRunes is the length of titles derived from the first user message.
const TitleMaxRunes = 50

// DeriveTitle produces a fallback title from the first user message.
// Returns the current title unchanged when one is already set.
func (c *Conversation) DeriveTitle() string {
	if c.Title != "" {
		return c.Title
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return util.TruncateRunes(util.OneLine(msg.Content), TitleMaxRunes)
		}
	}
	return ""
}

// Label returns the title to display, falling back to a derived label.
func (c *Conversation) Label() string {
	if t := c.DeriveTitle(); t != "" {
		return t
	}
	return "New conversation"
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// =============================================================================
// CONVERSATION METADATA
// =============================================================================

// ConversationMeta holds lightweight metadata for listing conversations.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Language     string    `json:"language"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Meta returns the listing metadata for the conversation.
func (c *Conversation) Meta() ConversationMeta {
	preview := ""
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			preview = msg.Preview(80)
			break
		}
	}
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.Label(),
		Language:     c.Language,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      preview,
	}
}
