// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/resonancehq/resonance/internal/export"
	"github.com/resonancehq/resonance/internal/model"
)

// uiTimeout bounds store calls issued from the UI loop.
const uiTimeout = 10 * time.Second

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), uiTimeout)
}

// exportCmd writes the current transcript to disk in the configured format.
func (m Model) exportCmd() tea.Cmd {
	now := time.Now()
	conv := &model.Conversation{
		ID:        m.session.ConversationID(),
		Language:  string(m.session.Language()),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  m.session.Messages(),
	}
	format := m.opts.ExportFormat
	opts := &export.Options{
		OutputDir:         m.opts.ExportDir,
		IncludeMetadata:   true,
		IncludeTimestamps: !m.opts.CompactMode,
	}
	return func() tea.Msg {
		exporter, err := export.ForFormat(format, opts)
		if err != nil {
			return ExportedMsg{Err: err}
		}
		path, err := export.ToFile(conv, exporter, opts)
		return ExportedMsg{Path: path, Err: err}
	}
}
