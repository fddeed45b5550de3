// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/resonancehq/resonance/internal/gateway"
	"github.com/resonancehq/resonance/internal/history"
	"github.com/resonancehq/resonance/internal/lang"
	"github.com/resonancehq/resonance/internal/model"
	"github.com/resonancehq/resonance/internal/store"
)

// =============================================================================
// STATES AND ERRORS
// =============================================================================

// State is the send-controller state of the session.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
)

// String returns a label for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyMessage is returned when Send is called with blank text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSendInFlight is returned when Send is called while a previous
	// send has not reached a terminal state. Sends are rejected rather
	// than queued; the caller retries once the turn settles.
	ErrSendInFlight = errors.New("a send is already in flight")
)

// Completer produces a streaming mentor reply. *gateway.Client satisfies it.
type Completer interface {
	ChatStream(ctx context.Context, systemPrompt string, messages []gateway.ChatMessage, onContent func(cumulative string)) (string, error)
}

// =============================================================================
// SESSION
// =============================================================================

// inflightSend tracks the cancellation handle of the current turn.
type inflightSend struct {
	cancel     context.CancelFunc
	generation uint64
}

// Config configures a Session.
type Config struct {
	Store     store.Store
	Completer Completer

	// Language seeds the greeting and persona until detection adjusts it.
	Language lang.Language

	// Window overrides the history windowing; zero value means defaults.
	Window history.Config

	// CacheSize bounds the resident conversation cache (0 = default).
	CacheSize int

	// Notify receives session events. May be nil.
	Notify func(Event)
}

// Session owns the active conversation state. All methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	store  store.Store
	llm    Completer
	window history.Config
	notify func(Event)

	language       lang.Language
	conversationID string
	messages       []*model.Message
	cache          *conversationCache

	state      State
	inflight   *inflightSend
	generation uint64
}

// New creates a session starting on a fresh, unsaved conversation seeded
// with the localized greeting.
func New(cfg Config) *Session {
	window := cfg.Window
	if window.RecentWindow == 0 {
		window = history.DefaultConfig
	}
	s := &Session{
		store:    cfg.Store,
		llm:      cfg.Completer,
		window:   window,
		notify:   cfg.Notify,
		language: cfg.Language.Or(lang.English),
		cache:    newConversationCache(cfg.CacheSize),
	}
	s.messages = []*model.Message{model.NewGreeting(lang.Greeting(s.language))}
	return s
}

// emit delivers an event outside the session lock.
func (s *Session) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Messages returns a snapshot of the visible message list.
func (s *Session) Messages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// ConversationID returns the active conversation id; empty until the
// conversation is materialized by the first send.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Language returns the current conversation language.
func (s *Session) Language() lang.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// State returns the send-controller state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a send is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// Conversations lists stored conversations, most recent first.
func (s *Session) Conversations(ctx context.Context) ([]model.ConversationMeta, error) {
	return s.store.ListConversations(ctx)
}

// =============================================================================
// SEND
// =============================================================================

// Send starts one turn: append the user message and a streaming assistant
// placeholder, then asynchronously persist, call the model, and stream the
// reply into the placeholder. Returns ErrSendInFlight while a previous turn
// is unsettled.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.inflight != nil {
		s.mu.Unlock()
		return ErrSendInFlight
	}

	// Reply language follows the user's input, with recent context breaking
	// ties on low-signal input.
	s.language = lang.DetermineOutput(text, s.language, s.recentEntriesLocked())
	language := s.language

	userMsg := model.NewUserMessage(text)
	placeholder := model.NewAssistantPlaceholder()
	s.messages = append(s.messages, userMsg, placeholder)

	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.inflight = &inflightSend{cancel: cancel, generation: gen}
	s.state = StateSending

	convID := s.conversationID
	llmContext := s.llmContextLocked()
	s.mu.Unlock()

	s.emit(TurnStarted{UserMessageID: userMsg.ID, AssistantMessageID: placeholder.ID})

	go s.runTurn(ctx, gen, convID, language, userMsg, placeholder, llmContext)
	return nil
}

// recentEntriesLocked returns the last messages for language detection.
func (s *Session) recentEntriesLocked() []lang.Entry {
	var entries []lang.Entry
	for _, m := range s.messages {
		if m.Seeded || m.IsStreaming {
			continue
		}
		entries = append(entries, lang.Entry{Role: m.Role.String(), Content: m.Content})
	}
	return entries
}

// llmContextLocked computes the windowed model context from the visible
// list. Seeded greetings and the streaming placeholder are excluded.
func (s *Session) llmContextLocked() []gateway.ChatMessage {
	eligible := make([]*model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Seeded || m.IsStreaming {
			continue
		}
		eligible = append(eligible, m)
	}

	windowed := history.Window(eligible, s.window)
	out := make([]gateway.ChatMessage, len(windowed))
	for i, m := range windowed {
		out[i] = gateway.ChatMessage{Role: m.Role.String(), Content: m.Content}
	}
	return out
}

// runTurn executes the asynchronous part of a send.
func (s *Session) runTurn(ctx context.Context, gen uint64, convID string, language lang.Language, userMsg, placeholder *model.Message, llmContext []gateway.ChatMessage) {
	// Materialize the conversation lazily on the first send. Persistence
	// failures are logged and never interrupt the conversation flow.
	if convID == "" {
		conv, err := s.store.CreateConversation(ctx, "", string(language))
		if err != nil {
			log.Printf("[session] failed to create conversation: %v", err)
			s.emit(PersistenceFailed{Err: err})
		} else {
			convID = conv.ID
			s.mu.Lock()
			if s.generation == gen {
				s.conversationID = convID
			}
			s.mu.Unlock()
		}
	}

	// The user message is persisted before the model call so storage order
	// matches visible order.
	if convID != "" {
		if err := s.store.AppendMessage(ctx, convID, userMsg); err != nil {
			log.Printf("[session] failed to save user message: %v", err)
			s.emit(PersistenceFailed{ConversationID: convID, Err: err})
		}
	}

	full, err := s.llm.ChatStream(ctx, lang.SystemPrompt(language), llmContext, func(cumulative string) {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		s.state = StateStreaming
		placeholder.SetStreamContent(cumulative)
		s.mu.Unlock()
		s.emit(StreamUpdate{MessageID: placeholder.ID, Content: cumulative})
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Abort already rolled the turn back.
			return
		}
		s.failTurn(ctx, gen, convID, language, placeholder, err)
		return
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	placeholder.Finalize(full)
	s.settleLocked(convID)
	s.mu.Unlock()

	// settleLocked cancels the turn context, so persist detached from it.
	if convID != "" {
		if perr := s.store.AppendMessage(context.WithoutCancel(ctx), convID, placeholder); perr != nil {
			log.Printf("[session] failed to save reply: %v", perr)
			s.emit(PersistenceFailed{ConversationID: convID, Err: perr})
		}
	}
	s.emit(TurnCompleted{MessageID: placeholder.ID, Content: full})
}

// failTurn converts a non-cancellation error into the localized fallback
// reply. Unlike an abort, the fallback is persisted.
func (s *Session) failTurn(ctx context.Context, gen uint64, convID string, language lang.Language, placeholder *model.Message, cause error) {
	log.Printf("[session] send failed: %v", cause)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	placeholder.Finalize(lang.Fallback(language))
	s.settleLocked(convID)
	s.mu.Unlock()

	if convID != "" {
		if perr := s.store.AppendMessage(context.WithoutCancel(ctx), convID, placeholder); perr != nil {
			log.Printf("[session] failed to save fallback reply: %v", perr)
			s.emit(PersistenceFailed{ConversationID: convID, Err: perr})
		}
	}
	s.emit(TurnFailed{MessageID: placeholder.ID, Err: cause})
}

// settleLocked returns the controller to idle and refreshes the cache
// snapshot for the settled conversation.
func (s *Session) settleLocked(convID string) {
	if s.inflight != nil {
		s.inflight.cancel()
		s.inflight = nil
	}
	s.state = StateIdle
	if convID != "" {
		s.cache.put(convID, string(s.language), s.persistableLocked())
	}
}

// persistableLocked is the visible list minus the seeded greeting, matching
// what a fresh fetch from storage would return.
func (s *Session) persistableLocked() []*model.Message {
	out := make([]*model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Seeded {
			continue
		}
		out = append(out, m)
	}
	return out
}

// =============================================================================
// ABORT
// =============================================================================

// Abort cancels the in-flight send, tears down the network stream, and
// removes the user message and assistant placeholder from the visible list.
// Nothing from the aborted turn is persisted. No-op when idle.
func (s *Session) Abort() {
	s.mu.Lock()
	inf := s.inflight
	if inf == nil {
		s.mu.Unlock()
		return
	}

	inf.cancel()
	s.inflight = nil
	s.state = StateIdle
	// Invalidate any callback still in flight from the cancelled turn.
	s.generation++

	if n := len(s.messages); n >= 2 {
		s.messages = s.messages[:n-2]
	}
	s.mu.Unlock()

	s.emit(TurnAborted{})
}

// =============================================================================
// CONVERSATION SWITCHING
// =============================================================================

// Select makes the conversation with the given id active. An in-flight send
// is aborted first. A cached conversation is adopted without touching
// storage; otherwise the full message history is fetched and cached.
func (s *Session) Select(ctx context.Context, id string) error {
	s.Abort()

	s.mu.Lock()
	if language, msgs, ok := s.cache.get(id); ok {
		s.adoptLocked(id, language, msgs)
		s.mu.Unlock()
		s.emit(ConversationSwitched{ID: id})
		return nil
	}
	s.mu.Unlock()

	conv, err := s.store.Conversation(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache.put(conv.ID, conv.Language, conv.Messages)
	s.adoptLocked(conv.ID, conv.Language, cloneMessages(conv.Messages))
	s.mu.Unlock()

	s.emit(ConversationSwitched{ID: id})
	return nil
}

// adoptLocked installs a conversation as the active one.
func (s *Session) adoptLocked(id, language string, msgs []*model.Message) {
	s.generation++
	s.conversationID = id
	s.messages = msgs
	if l := lang.Language(language); l.Valid() {
		s.language = l
	}
	s.state = StateIdle
}

// NewConversation abandons the current view for a fresh, unsaved
// conversation seeded with the greeting. No storage row is created until
// the first send.
func (s *Session) NewConversation() {
	s.Abort()

	s.mu.Lock()
	s.generation++
	s.conversationID = ""
	s.messages = []*model.Message{model.NewGreeting(lang.Greeting(s.language))}
	s.state = StateIdle
	s.mu.Unlock()

	s.emit(ConversationSwitched{ID: ""})
}

// Delete removes a stored conversation. Deleting the active conversation
// switches to a fresh one.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache.remove(id)
	active := s.conversationID == id
	s.mu.Unlock()

	if active {
		s.NewConversation()
	}
	return nil
}

// Rename updates a conversation's title.
func (s *Session) Rename(ctx context.Context, id, title string) error {
	_, err := s.store.UpdateConversation(ctx, id, store.Patch{Title: &title})
	if err == nil {
		s.mu.Lock()
		s.cache.remove(id)
		s.mu.Unlock()
	}
	return err
}
