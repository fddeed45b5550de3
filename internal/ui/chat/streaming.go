// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// STREAM COALESCER
// =============================================================================

// StreamCoalescer collapses the burst of cumulative stream updates into a
// capped-rate render feed. Updates arrive from the session's notifier
// goroutine far faster than the terminal can usefully repaint; the view polls
// the coalescer on a ~30fps tick and only re-renders when content actually
// changed since the last poll.
type StreamCoalescer struct {
	mu      sync.Mutex
	content string
	dirty   bool
}

// NewStreamCoalescer creates an empty coalescer.
func NewStreamCoalescer() *StreamCoalescer {
	return &StreamCoalescer{}
}

// Set records the latest cumulative content. Called from the notifier
// goroutine, so it is thread-safe. Later updates supersede earlier ones; the
// view only ever needs the newest snapshot.
func (sc *StreamCoalescer) Set(content string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.content = content
	sc.dirty = true
}

// Take returns the newest content if it changed since the last Take.
func (sc *StreamCoalescer) Take() (string, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.dirty {
		return "", false
	}
	sc.dirty = false
	return sc.content, true
}

// Reset clears state when a stream ends or is aborted.
func (sc *StreamCoalescer) Reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.content = ""
	sc.dirty = false
}

// streamTickCmd sends StreamTickMsg at roughly 30fps while streaming.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
