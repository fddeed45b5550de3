// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// =============================================================================
// SESSION EVENTS
// =============================================================================

// Event is delivered to the session's notifier as state changes. The TUI
// adapts these into program messages; the notifier must not call back into
// the Session synchronously while holding its own locks.
type Event any

// TurnStarted fires when a send has appended the user message and the
// assistant placeholder.
type TurnStarted struct {
	UserMessageID      string
	AssistantMessageID string
}

// StreamUpdate fires on every decoder callback with the full cumulative
// reply so far.
type StreamUpdate struct {
	MessageID string
	Content   string
}

// TurnCompleted fires when a stream finished cleanly and the reply was
// finalized.
type TurnCompleted struct {
	MessageID string
	Content   string
}

// TurnAborted fires after a user abort rolled the turn back.
type TurnAborted struct{}

// TurnFailed fires when a send failed; the visible placeholder now holds
// the localized fallback text.
type TurnFailed struct {
	MessageID string
	Err       error
}

// ConversationSwitched fires after Select or NewConversation replaced the
// visible message list. ID is empty for a fresh unsaved conversation.
type ConversationSwitched struct {
	ID string
}

// PersistenceFailed fires when a background storage write failed. The turn
// keeps going; the visible list stays the source of truth.
type PersistenceFailed struct {
	ConversationID string
	Err            error
}
