// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/resonancehq/resonance/internal/model"
)

// =============================================================================
// TEXT EXPORTER
// =============================================================================

// TextExporter renders conversations as plain text transcripts.
type TextExporter struct {
	options *Options
}

// NewTextExporter creates a plain text exporter.
func NewTextExporter(opts *Options) *TextExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &TextExporter{options: opts}
}

// Export converts a conversation to a plain text transcript.
func (e *TextExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	messages := exportable(conv)
	if len(messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString(conv.Label() + "\n")
		sb.WriteString(fmt.Sprintf("Created %s, %d messages\n",
			formatTimestamp(conv.CreatedAt), len(messages)))
		sb.WriteString(strings.Repeat("=", 60) + "\n\n")
	}

	for _, msg := range messages {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps {
			label = fmt.Sprintf("%s [%s]", label, formatShortTimestamp(msg.CreatedAt))
		}
		sb.WriteString(label + ":\n")
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")
	}

	return []byte(sb.String()), nil
}

// FileExtension returns ".txt".
func (e *TextExporter) FileExtension() string {
	return ".txt"
}
