// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/resonancehq/resonance/internal/model"
	"github.com/resonancehq/resonance/internal/session"
	"github.com/resonancehq/resonance/internal/util"
)

// Fixed chrome heights used for viewport sizing.
const (
	headerHeight = 2
	inputHeight  = 3
	statusHeight = 1
)

// View renders the full interface.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	if m.mode == modePicker {
		return m.viewPicker()
	}

	sections := []string{
		m.viewHeader(),
		m.viewport.View(),
		m.viewInput(),
		m.viewStatusBar(),
	}
	if m.showHelp {
		sections = []string{
			m.viewHeader(),
			m.viewHelp(),
			m.viewInput(),
			m.viewStatusBar(),
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// SECTIONS
// =============================================================================

func (m Model) viewHeader() string {
	title := "New conversation"
	if id := m.session.ConversationID(); id != "" {
		title = "Conversation"
	}
	left := m.theme.HeaderTitle.Render("resonance") + "  " +
		m.theme.HeaderSubtitle.Render(title)
	right := m.theme.HeaderSubtitle.Render(string(m.session.Language()))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	return m.theme.Header.Width(m.width).Render(bar)
}

func (m Model) viewInput() string {
	return m.theme.InputContainer.Width(m.width - 2).Render(m.input.View())
}

func (m Model) viewStatusBar() string {
	if m.status != "" {
		return m.theme.StatusBar.Width(m.width).Render(
			m.theme.StatusNote.Render(util.TruncateWidth(m.status, m.width-2)))
	}

	var b strings.Builder
	if m.session.Busy() {
		b.WriteString(m.theme.StatusBusy.Render(m.spinner.View() + "replying"))
		b.WriteString("  ")
		b.WriteString(m.theme.ShortcutKey.Render("Esc"))
		b.WriteString(m.theme.ShortcutDesc.Render(" stop"))
	} else {
		for i, binding := range m.keyMap.ShortHelp() {
			if i > 0 {
				b.WriteString("  ")
			}
			h := binding.Help()
			b.WriteString(m.theme.ShortcutKey.Render(h.Key))
			b.WriteString(m.theme.ShortcutDesc.Render(" " + h.Desc))
		}
	}
	return m.theme.StatusBar.Width(m.width).Render(b.String())
}

func (m Model) viewHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keyboard shortcuts"))
	b.WriteString("\n\n")
	for _, group := range m.keyMap.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(fmt.Sprintf("  %s  %s\n",
				m.theme.ShortcutKey.Render(util.PadWidth(h.Key, 10)),
				m.theme.ShortcutDesc.Render(h.Desc)))
		}
		b.WriteString("\n")
	}

	box := m.theme.ListBox.Width(m.width - 4).Render(b.String())
	return lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) viewPicker() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Conversations"))
	b.WriteString("\n\n")

	if len(m.conversations) == 0 {
		b.WriteString(m.theme.ListMeta.Render("No saved conversations yet."))
		b.WriteString("\n")
	}
	for i, meta := range m.conversations {
		line := fmt.Sprintf("%s  %s",
			util.TruncateWidth(meta.Title, 40),
			m.theme.ListMeta.Render(fmt.Sprintf("%d messages · %s",
				meta.MessageCount, meta.UpdatedAt.Format("Jan 2 15:04"))))
		if i == m.selected {
			b.WriteString(m.theme.ListItemSelected.Render("> " + line))
		} else {
			b.WriteString(m.theme.ListItem.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.ShortcutDesc.Render("enter open · d delete · esc back"))

	box := m.theme.ListBox.Width(m.width - 4).Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// refreshViewport re-renders the transcript into the viewport.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
}

func (m Model) renderMessages() string {
	messages := m.session.Messages()
	var b strings.Builder

	bubbleWidth := m.width - 10
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	for _, msg := range messages {
		if msg == nil {
			continue
		}
		b.WriteString(m.renderMessage(msg, bubbleWidth))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg *model.Message, bubbleWidth int) string {
	label := m.theme.RoleLabel.Render(msg.Role.DisplayName())
	if !m.opts.CompactMode && !msg.CreatedAt.IsZero() {
		label += " " + m.theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
	}

	content := msg.Content
	if msg.IsStreaming && content == "" {
		content = m.thinkingLine()
	}

	var bubble string
	switch msg.Role {
	case model.RoleUser:
		bubble = m.theme.UserBubble.MaxWidth(bubbleWidth).Render(content)
		return lipgloss.JoinVertical(lipgloss.Right, label, bubble) + "\n"
	default:
		bubble = m.theme.MentorBubble.MaxWidth(bubbleWidth).Render(content)
		return lipgloss.JoinVertical(lipgloss.Left, label, bubble) + "\n"
	}
}

func (m Model) thinkingLine() string {
	if m.session.State() == session.StateStreaming {
		return m.theme.ThinkingText.Render("...")
	}
	return m.theme.ThinkingText.Render(m.spinner.View() + "thinking")
}
