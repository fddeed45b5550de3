// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway provides the OpenRouter integration for mentor replies.
//
// OpenRouter exposes many LLM providers behind a single chat-completions
// API. This package implements the streaming client: it sends the system
// persona plus the windowed conversation and decodes the Server-Sent
// Events response, delivering the growing reply to a callback.
package gateway
