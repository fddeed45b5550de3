// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the conversation state machine.
//
// A Session owns the active conversation: its visible message list, the
// in-flight send (if any), and a bounded cache of recently viewed
// conversations. One turn moves through
//
//	idle -> sending -> streaming -> completed | aborted | failed
//
// A send appends the user message and an empty streaming assistant
// placeholder immediately, so the UI shows a pending reply with zero
// latency. Abort rolls both back and persists nothing. Failure replaces the
// placeholder with a localized fallback, which is persisted like a normal
// reply.
//
// Stale asynchronous callbacks are fenced with a generation counter: every
// turn captures the generation at start, and any callback whose generation
// no longer matches is discarded without touching session state.
package session
