// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/resonancehq/resonance/internal/session"
)

// Update is the Bubble Tea update loop.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionEventMsg:
		return m.handleSessionEvent(msg.Event)

	case StreamTickMsg:
		return m.handleStreamTick()

	case spinner.TickMsg:
		if !m.session.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConversationsLoadedMsg:
		if msg.Err != nil {
			return m.withStatus(fmt.Sprintf("could not load conversations: %v", msg.Err))
		}
		m.mode = modePicker
		m.conversations = msg.Conversations
		if m.selected >= len(m.conversations) {
			m.selected = 0
		}
		return m, nil

	case ConversationOpenedMsg:
		m.mode = modeChat
		if msg.Err != nil {
			return m.withStatus(fmt.Sprintf("could not open conversation: %v", msg.Err))
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		m.input.Placeholder = placeholderFor(m.session.Language())
		return m, nil

	case ExportedMsg:
		if msg.Err != nil {
			return m.withStatus(fmt.Sprintf("export failed: %v", msg.Err))
		}
		return m.withStatus("exported to " + msg.Path)

	case StatusExpiredMsg:
		m.status = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	chromeHeight := headerHeight + inputHeight + statusHeight
	vpHeight := msg.Height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 6

	m.refreshViewport()
	m.viewport.GotoBottom()
	return m
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modePicker {
		return m.handlePickerKey(msg)
	}

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Abort):
		if m.session.Busy() {
			m.session.Abort()
			m.bridge.coalescer.Reset()
			m.refreshViewport()
			return m, nil
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()

	case key.Matches(msg, m.keyMap.NewChat):
		m.session.NewConversation()
		m.input.Placeholder = placeholderFor(m.session.Language())
		m.refreshViewport()
		return m, nil

	case key.Matches(msg, m.keyMap.Conversations):
		return m, m.loadConversationsCmd()

	case key.Matches(msg, m.keyMap.Export):
		return m, m.exportCmd()

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.Up), key.Matches(msg, m.keyMap.Down),
		key.Matches(msg, m.keyMap.PageUp), key.Matches(msg, m.keyMap.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.conversations)-1 {
			m.selected++
		}
	case "enter":
		if len(m.conversations) > 0 {
			return m, m.openConversationCmd(m.conversations[m.selected].ID)
		}
		m.mode = modeChat
	case "d":
		if len(m.conversations) > 0 {
			return m, m.deleteConversationCmd(m.conversations[m.selected].ID)
		}
	case "esc", "ctrl+o":
		m.mode = modeChat
	case "ctrl+c", "ctrl+q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	err := m.session.Send(text)
	switch {
	case errors.Is(err, session.ErrSendInFlight):
		return m.withStatus("still replying, press Esc to stop first")
	case errors.Is(err, session.ErrEmptyMessage):
		return m, nil
	case err != nil:
		return m.withStatus(fmt.Sprintf("send failed: %v", err))
	}

	m.input.Reset()
	m.input.Placeholder = placeholderFor(m.session.Language())
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// =============================================================================
// SESSION EVENTS
// =============================================================================

func (m Model) handleSessionEvent(ev session.Event) (tea.Model, tea.Cmd) {
	resume := waitForEvent(m.bridge.events)

	switch ev := ev.(type) {
	case session.TurnStarted:
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, tea.Batch(resume, m.spinner.Tick, streamTickCmd())

	case session.TurnCompleted, session.TurnAborted:
		m.bridge.coalescer.Reset()
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, resume

	case session.TurnFailed:
		m.bridge.coalescer.Reset()
		m.refreshViewport()
		m.viewport.GotoBottom()
		m.status = fmt.Sprintf("reply failed: %v", ev.Err)
		return m, tea.Batch(resume, statusExpiryCmd())

	case session.ConversationSwitched:
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, resume

	case session.PersistenceFailed:
		m.status = fmt.Sprintf("save failed: %v", ev.Err)
		return m, tea.Batch(resume, statusExpiryCmd())
	}

	return m, resume
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if _, changed := m.bridge.coalescer.Take(); changed {
		// The session already holds the cumulative content in its visible
		// message list; the coalescer only tells us a repaint is due.
		m.refreshViewport()
		m.viewport.GotoBottom()
	}
	if m.session.Busy() {
		return m, streamTickCmd()
	}
	return m, nil
}

func (m Model) withStatus(note string) (tea.Model, tea.Cmd) {
	m.status = note
	return m, statusExpiryCmd()
}
