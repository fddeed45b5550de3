// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"log"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/resonancehq/resonance/internal/lang"
	"github.com/resonancehq/resonance/internal/model"
	"github.com/resonancehq/resonance/internal/session"
	"github.com/resonancehq/resonance/internal/ui/styles"
)

// =============================================================================
// SESSION BRIDGE
// =============================================================================

// Bridge carries session events into the Bubble Tea loop. Stream updates go
// through the coalescer so a fast upstream cannot flood the renderer;
// lifecycle events go through a buffered channel the program waits on.
type Bridge struct {
	events    chan session.Event
	coalescer *StreamCoalescer
}

// NewBridge creates a bridge. Pass its Notify method as session.Config.Notify.
func NewBridge() *Bridge {
	return &Bridge{
		events:    make(chan session.Event, 64),
		coalescer: NewStreamCoalescer(),
	}
}

// Notify implements the session notifier. Safe to call from any goroutine.
func (b *Bridge) Notify(ev session.Event) {
	if up, ok := ev.(session.StreamUpdate); ok {
		b.coalescer.Set(up.Content)
		return
	}
	select {
	case b.events <- ev:
	default:
		// A full queue means the UI is wedged; dropping a lifecycle event
		// is better than deadlocking the session.
		log.Printf("[ui] dropping session event %T", ev)
	}
}

// waitForEvent returns a command that delivers the next lifecycle event.
func waitForEvent(ch chan session.Event) tea.Cmd {
	return func() tea.Msg {
		return SessionEventMsg{Event: <-ch}
	}
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// viewMode selects between the chat transcript and the conversation picker.
type viewMode int

const (
	modeChat viewMode = iota
	modePicker
)

// Options configures the chat view.
type Options struct {
	// ExportDir is where Ctrl+E writes transcripts.
	ExportDir string
	// ExportFormat is "markdown", "json" or "text".
	ExportFormat string
	// CompactMode hides timestamps.
	CompactMode bool
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	theme   *styles.Theme
	session *session.Session
	bridge  *Bridge
	opts    Options

	width  int
	height int
	ready  bool

	mode     viewMode
	keyMap   KeyMap
	showHelp bool

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Conversation picker state
	conversations []model.ConversationMeta
	selected      int

	// Transient status note shown in the status bar
	status string
}

// New creates the chat view driving the given session through the bridge.
func New(sess *session.Session, bridge *Bridge, theme *styles.Theme, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = placeholderFor(sess.Language())
	ti.CharLimit = 4096
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	if opts.ExportFormat == "" {
		opts.ExportFormat = "markdown"
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}

	return Model{
		theme:   theme,
		session: sess,
		bridge:  bridge,
		opts:    opts,
		keyMap:  DefaultKeyMap(),
		input:   ti,
		spinner: sp,
	}
}

func placeholderFor(l lang.Language) string {
	if l == lang.Chinese {
		return "说点什么..."
	}
	return "Say something..."
}

// Init starts the event pump, cursor blink and spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForEvent(m.bridge.events),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

// loadConversationsCmd fetches the picker list off the UI loop.
func (m Model) loadConversationsCmd() tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx, cancel := contextWithTimeout()
		defer cancel()
		metas, err := sess.Conversations(ctx)
		return ConversationsLoadedMsg{Conversations: metas, Err: err}
	}
}

// openConversationCmd loads a picked conversation into the session.
func (m Model) openConversationCmd(id string) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		ctx, cancel := contextWithTimeout()
		defer cancel()
		return ConversationOpenedMsg{Err: sess.Select(ctx, id)}
	}
}

// deleteConversationCmd removes a conversation and refreshes the picker.
func (m Model) deleteConversationCmd(id string) tea.Cmd {
	sess := m.session
	load := m.loadConversationsCmd()
	return func() tea.Msg {
		ctx, cancel := contextWithTimeout()
		defer cancel()
		if err := sess.Delete(ctx, id); err != nil {
			return ConversationsLoadedMsg{Err: err}
		}
		return load()
	}
}

// statusExpiryCmd clears a transient status note after a few seconds.
func statusExpiryCmd() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return StatusExpiredMsg{}
	})
}
