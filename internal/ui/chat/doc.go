// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view for resonance.
//
// The view owns no conversation logic. It drives a session.Session and
// renders whatever the session says is visible: the message list updates
// synchronously on send, stream updates arrive as session events adapted
// into program messages, and Esc during streaming maps to Abort.
package chat
