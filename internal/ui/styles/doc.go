// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the resonance TUI.
//
// Colors are defined as lipgloss.AdaptiveColor so the palette works on both
// light and dark terminals without configuration. The Theme struct bundles
// every style the chat view uses; construct one with NewTheme at startup and
// share it.
package styles
