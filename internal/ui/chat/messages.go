// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/resonancehq/resonance/internal/model"
	"github.com/resonancehq/resonance/internal/session"
)

// =============================================================================
// PROGRAM MESSAGES
// =============================================================================

// SessionEventMsg wraps a session event for the Bubble Tea loop.
type SessionEventMsg struct {
	Event session.Event
}

// StreamTickMsg drives the capped-rate re-render during streaming.
type StreamTickMsg struct {
	Time time.Time
}

// ConversationsLoadedMsg delivers the conversation list for the picker.
type ConversationsLoadedMsg struct {
	Conversations []model.ConversationMeta
	Err           error
}

// ConversationOpenedMsg fires after a picker selection finished loading.
type ConversationOpenedMsg struct {
	Err error
}

// ExportedMsg reports the result of a conversation export.
type ExportedMsg struct {
	Path string
	Err  error
}

// StatusExpiredMsg clears a transient status note.
type StatusExpiredMsg struct{}
