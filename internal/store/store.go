// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"

	"github.com/resonancehq/resonance/internal/model"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence contract shared by the SQLite and HTTP backends.
//
// Messages are returned in chronological order, oldest first, and always in
// full. Context trimming is the caller's concern, not the store's.
type Store interface {
	// CreateConversation persists a new conversation. Title may be empty;
	// a display label is derived from the first user message.
	CreateConversation(ctx context.Context, title, language string) (*model.Conversation, error)

	// Conversation loads a conversation with all of its messages.
	// Returns ErrConversationNotFound when the ID is unknown.
	Conversation(ctx context.Context, id string) (*model.Conversation, error)

	// ListConversations returns metadata for all conversations, most
	// recently updated first.
	ListConversations(ctx context.Context) ([]model.ConversationMeta, error)

	// UpdateConversation applies a partial update (rename, language switch).
	UpdateConversation(ctx context.Context, id string, patch Patch) (*model.Conversation, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage persists a message and bumps the conversation's
	// updated_at timestamp.
	AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error

	// Close releases underlying resources.
	Close() error
}

// Patch is a partial conversation update. Nil fields are left unchanged.
type Patch struct {
	Title    *string `json:"title,omitempty"`
	Language *string `json:"language,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &StoreError{Message: "conversation not found"}

// StoreError represents a persistence-related error.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
