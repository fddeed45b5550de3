// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the resonance HTTP API.
//
// Endpoints:
//   - POST   /api/chat                - Streaming mentor completion (SSE)
//   - GET    /api/conversations       - List conversations
//   - POST   /api/conversations       - Create conversation
//   - GET    /api/conversations/{id}  - Get conversation with messages
//   - PATCH  /api/conversations/{id}  - Rename / change language
//   - DELETE /api/conversations/{id}  - Delete conversation
//   - POST   /api/messages            - Append message
//   - GET    /health                  - Health check
//
// The chat endpoint proxies OpenRouter and re-frames the reply as SSE
// deltas, so terminal clients never hold the upstream API key.
package server
