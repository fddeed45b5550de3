// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history selects the slice of a conversation that is sent to the
// model. Long conversations are trimmed to a recent window plus a bounded
// set of earlier, unusually substantial messages so the model keeps context
// without the request growing without limit.
package history

import "github.com/resonancehq/resonance/internal/model"

// =============================================================================
// WINDOW CONFIGURATION
// =============================================================================

// Config bounds the windowing pass.
type Config struct {
	// RecentWindow is how many trailing messages are always kept.
	RecentWindow int

	// ImportanceThreshold is the minimum content length, in runes, for an
	// older message to qualify as important.
	ImportanceThreshold int

	// MaxImportant caps how many older messages are promoted into the window.
	MaxImportant int
}

// DefaultConfig is the windowing used for every send.
var DefaultConfig = Config{
	RecentWindow:        30,
	ImportanceThreshold: 500,
	MaxImportant:        10,
}

// =============================================================================
// WINDOWING
// =============================================================================

// Window returns the messages to send as model context, in chronological
// order. Seeded greetings never reach the model. When the conversation fits
// inside the recent window it is passed through unchanged; otherwise the
// result is up to MaxImportant long messages from the older portion followed
// by the RecentWindow trailing messages, deduplicated by role and content.
func Window(messages []*model.Message, cfg Config) []*model.Message {
	eligible := make([]*model.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil || m.Seeded {
			continue
		}
		eligible = append(eligible, m)
	}

	if cfg.RecentWindow <= 0 || len(eligible) <= cfg.RecentWindow {
		return eligible
	}

	cut := len(eligible) - cfg.RecentWindow
	older := eligible[:cut]
	recent := eligible[cut:]

	// Most recent important messages win when over the cap. Selection walks
	// backwards, then the kept set is restored to chronological order by
	// prepending in reverse.
	var important []*model.Message
	for i := len(older) - 1; i >= 0 && len(important) < cfg.MaxImportant; i-- {
		if runeLen(older[i].Content) >= cfg.ImportanceThreshold {
			important = append([]*model.Message{older[i]}, important...)
		}
	}

	combined := make([]*model.Message, 0, len(important)+len(recent))
	combined = append(combined, important...)
	combined = append(combined, recent...)

	return dedupe(combined)
}

// dedupe drops later repeats of an identical role+content pair, keeping the
// first occurrence so chronological order is preserved.
func dedupe(messages []*model.Message) []*model.Message {
	type key struct {
		role    model.Role
		content string
	}
	seen := make(map[key]struct{}, len(messages))
	out := messages[:0:0]
	for _, m := range messages {
		k := key{m.Role, m.Content}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}
	return out
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
