// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides conversation persistence for resonance.
//
// Two implementations exist: SQLite for local single-binary use, and an
// HTTP client that talks to a resonance server so several terminals can
// share one conversation history. Both satisfy the Store interface.
package store
