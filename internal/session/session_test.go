// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package session_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/resonancehq/resonance/internal/gateway"
	"github.com/resonancehq/resonance/internal/lang"
	"github.com/resonancehq/resonance/internal/model"
	"github.com/resonancehq/resonance/internal/session"
	"github.com/resonancehq/resonance/internal/store"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeStore is an in-memory Store that counts boundary calls.
type fakeStore struct {
	mu       sync.Mutex
	convs    map[string]*model.Conversation
	appended map[string][]*model.Message
	creates  int
	fetches  map[string]int
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs:    make(map[string]*model.Conversation),
		appended: make(map[string][]*model.Message),
		fetches:  make(map[string]int),
	}
}

func (f *fakeStore) CreateConversation(ctx context.Context, title, language string) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.nextID++
	conv := &model.Conversation{
		ID:        fmt.Sprintf("conv-%d", f.nextID),
		Title:     title,
		Language:  language,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.convs[conv.ID] = conv
	return conv, nil
}

func (f *fakeStore) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[id]++
	conv, ok := f.convs[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	cp := *conv
	cp.Messages = append([]*model.Message(nil), f.appended[id]...)
	return &cp, nil
}

func (f *fakeStore) ListConversations(ctx context.Context) ([]model.ConversationMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var metas []model.ConversationMeta
	for _, c := range f.convs {
		metas = append(metas, c.Meta())
	}
	return metas, nil
}

func (f *fakeStore) UpdateConversation(ctx context.Context, id string, patch store.Patch) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	if patch.Title != nil {
		conv.Title = *patch.Title
	}
	if patch.Language != nil {
		conv.Language = *patch.Language
	}
	return conv, nil
}

func (f *fakeStore) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[id]; !ok {
		return store.ErrConversationNotFound
	}
	delete(f.convs, id)
	delete(f.appended, id)
	return nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[conversationID]; !ok {
		return store.ErrConversationNotFound
	}
	f.appended[conversationID] = append(f.appended[conversationID], msg.Clone())
	return nil
}

func (f *fakeStore) Close() error { return nil }

// persisted returns the appended messages for a conversation.
func (f *fakeStore) persisted(id string) []*model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Message(nil), f.appended[id]...)
}

func (f *fakeStore) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeStore) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

func (f *fakeStore) conversationIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.convs))
	for id := range f.convs {
		ids = append(ids, id)
	}
	return ids
}

// completerFunc adapts a function to the Completer interface.
type completerFunc func(ctx context.Context, systemPrompt string, messages []gateway.ChatMessage, onContent func(string)) (string, error)

func (f completerFunc) ChatStream(ctx context.Context, systemPrompt string, messages []gateway.ChatMessage, onContent func(string)) (string, error) {
	return f(ctx, systemPrompt, messages, onContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func newTestSession(t *testing.T, fs *fakeStore, c session.Completer) (*session.Session, chan session.Event) {
	t.Helper()
	events := make(chan session.Event, 128)
	s := session.New(session.Config{
		Store:     fs,
		Completer: c,
		Language:  lang.English,
		Notify:    func(ev session.Event) { events <- ev },
	})
	return s, events
}

func waitEvent[T any](t *testing.T, events <-chan session.Event) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSessionStartsWithGreetingAndNoStorageRow(t *testing.T) {
	fs := newFakeStore()
	s, _ := newTestSession(t, fs, nil)

	msgs := s.Messages()
	if len(msgs) != 1 || !msgs[0].Seeded || msgs[0].Role != model.RoleAssistant {
		t.Fatalf("expected single seeded greeting, got %+v", msgs)
	}
	if msgs[0].Content != lang.Greeting(lang.English) {
		t.Errorf("greeting content = %q", msgs[0].Content)
	}
	if fs.createCount() != 0 {
		t.Error("conversation created before first send")
	}
	if s.ConversationID() != "" {
		t.Error("conversation id set before first send")
	}
}

func TestSendEmptyRejected(t *testing.T) {
	s, _ := newTestSession(t, newFakeStore(), nil)
	if err := s.Send("   \n"); !errors.Is(err, session.ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestSendStreamsIntoPlaceholder(t *testing.T) {
	fs := newFakeStore()
	started := make(chan func(string))
	comp := completerFunc(func(ctx context.Context, sys string, msgs []gateway.ChatMessage, on func(string)) (string, error) {
		if sys != lang.SystemPrompt(lang.English) {
			t.Errorf("unexpected system prompt")
		}
		if len(msgs) != 1 || msgs[0].Content != "Hello" {
			t.Errorf("context = %+v, greeting must be excluded", msgs)
		}
		started <- on
		on("Hi")
		on("Hi there")
		on("Hi there!")
		return "Hi there!", nil
	})
	s, events := newTestSession(t, fs, comp)

	if err := s.Send("Hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// The user message and placeholder appear before any network work.
	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("visible list has %d messages, want 3", len(msgs))
	}
	if msgs[1].Role != model.RoleUser || msgs[1].Content != "Hello" {
		t.Errorf("message 1 = %+v", msgs[1])
	}
	if msgs[2].Role != model.RoleAssistant || msgs[2].Content != "" || !msgs[2].IsStreaming {
		t.Errorf("placeholder = %+v", msgs[2])
	}

	<-started
	done := waitEvent[session.TurnCompleted](t, events)
	if done.Content != "Hi there!" {
		t.Errorf("final content = %q", done.Content)
	}

	msgs = s.Messages()
	final := msgs[len(msgs)-1]
	if final.IsStreaming || final.Content != "Hi there!" {
		t.Errorf("final message = %+v", final)
	}

	// One lazily created conversation holding user then assistant.
	if fs.createCount() != 1 {
		t.Fatalf("creates = %d", fs.createCount())
	}
	saved := fs.persisted(s.ConversationID())
	if len(saved) != 2 || saved[0].Role != model.RoleUser || saved[1].Role != model.RoleAssistant {
		t.Fatalf("persisted = %+v", saved)
	}
	if saved[1].Content != "Hi there!" {
		t.Errorf("persisted reply = %q", saved[1].Content)
	}
}

func TestSendRejectedWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	comp := completerFunc(func(ctx context.Context, sys string, msgs []gateway.ChatMessage, on func(string)) (string, error) {
		<-release
		return "done", nil
	})
	s, events := newTestSession(t, newFakeStore(), comp)

	if err := s.Send("first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send("second"); !errors.Is(err, session.ErrSendInFlight) {
		t.Errorf("err = %v, want ErrSendInFlight", err)
	}

	close(release)
	waitEvent[session.TurnCompleted](t, events)

	// Settled turn allows the next send.
	if err := s.Send("third"); err != nil {
		t.Errorf("Send after settle: %v", err)
	}
}

// =============================================================================
// ABORT TESTS
// =============================================================================

func TestAbortRollsBackVisibleList(t *testing.T) {
	fs := newFakeStore()
	started := make(chan struct{})
	comp := completerFunc(func(ctx context.Context, sys string, msgs []gateway.ChatMessage, on func(string)) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	s, events := newTestSession(t, fs, comp)

	before := s.Messages()
	if err := s.Send("question"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-started

	s.Abort()
	waitEvent[session.TurnAborted](t, events)

	after := s.Messages()
	if len(after) != len(before) {
		t.Fatalf("visible list length = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i].Content != before[i].Content {
			t.Errorf("message %d changed: %q -> %q", i, before[i].Content, after[i].Content)
		}
	}

	// The partial reply is never persisted.
	for _, id := range fs.conversationIDs() {
		for _, m := range fs.persisted(id) {
			if m.Role == model.RoleAssistant {
				t.Errorf("assistant message persisted after abort: %+v", m)
			}
		}
	}

	if s.Busy() {
		t.Error("session still busy after abort")
	}
}

func TestAbortWhenIdleIsNoOp(t *testing.T) {
	s, _ := newTestSession(t, newFakeStore(), nil)
	before := s.Messages()
	s.Abort()
	if got := s.Messages(); len(got) != len(before) {
		t.Errorf("abort while idle mutated the list")
	}
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestFailureShowsAndPersistsFallback(t *testing.T) {
	fs := newFakeStore()
	comp := completerFunc(func(ctx context.Context, sys string, msgs []gateway.ChatMessage, on func(string)) (string, error) {
		return "", &gateway.GatewayError{Status: http.StatusInternalServerError, Message: "upstream exploded"}
	})
	s, events := newTestSession(t, fs, comp)

	if err := s.Send("Hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	failed := waitEvent[session.TurnFailed](t, events)
	if failed.Err == nil {
		t.Error("failure event carries no error")
	}

	msgs := s.Messages()
	final := msgs[len(msgs)-1]
	if final.IsStreaming {
		t.Error("fallback message still streaming")
	}
	if final.Content != lang.Fallback(lang.English) {
		t.Errorf("fallback content = %q", final.Content)
	}

	saved := fs.persisted(s.ConversationID())
	if len(saved) != 2 || saved[1].Content != lang.Fallback(lang.English) {
		t.Fatalf("fallback not persisted: %+v", saved)
	}
}

func TestFailureFallbackIsLocalized(t *testing.T) {
	fs := newFakeStore()
	comp := completerFunc(func(ctx context.Context, sys string, msgs []gateway.ChatMessage, on func(string)) (string, error) {
		return "", errors.New("connection reset")
	})
	s, events := newTestSession(t, fs, comp)

	if err := s.Send("我的产品太复杂了"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitEvent[session.TurnFailed](t, events)

	msgs := s.Messages()
	if got := msgs[len(msgs)-1].Content; got != lang.Fallback(lang.Chinese) {
		t.Errorf("fallback = %q, want Chinese fallback", got)
	}
}

// flakyStore fails message writes while leaving the rest of the fake intact.
type flakyStore struct {
	*fakeStore
	failAppend bool
}

func (f *flakyStore) AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	if f.failAppend {
		return errors.New("disk full")
	}
	return f.fakeStore.AppendMessage(ctx, conversationID, msg)
}

func TestPersistenceFailureIsObservedNotFatal(t *testing.T) {
	fs := &flakyStore{fakeStore: newFakeStore(), failAppend: true}
	comp := completerFunc(func(ctx context.Context, sys string, msgs []gateway.ChatMessage, on func(string)) (string, error) {
		on("fine answer")
		return "fine answer", nil
	})

	events := make(chan session.Event, 128)
	s := session.New(session.Config{
		Store:     fs,
		Completer: comp,
		Language:  lang.English,
		Notify:    func(ev session.Event) { events <- ev },
	})

	if err := s.Send("Hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	failed := waitEvent[session.PersistenceFailed](t, events)
	if failed.Err == nil {
		t.Error("persistence event carries no error")
	}
	done := waitEvent[session.TurnCompleted](t, events)
	if done.Content != "fine answer" {
		t.Errorf("turn content = %q, storage trouble must not change the reply", done.Content)
	}

	msgs := s.Messages()
	if got := msgs[len(msgs)-1].Content; got != "fine answer" {
		t.Errorf("visible reply = %q", got)
	}
}

// =============================================================================
// SWITCHING AND CACHE TESTS
// =============================================================================

func seedConversation(t *testing.T, fs *fakeStore, content string) string {
	t.Helper()
	conv, err := fs.CreateConversation(context.Background(), "", "en")
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.AppendMessage(context.Background(), conv.ID, model.NewUserMessage(content)); err != nil {
		t.Fatal(err)
	}
	return conv.ID
}

func TestSelectUsesCacheOnSecondLoad(t *testing.T) {
	fs := newFakeStore()
	id := seedConversation(t, fs, "old question")
	s, _ := newTestSession(t, fs, nil)
	ctx := context.Background()

	if err := s.Select(ctx, id); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if fs.fetchCount(id) != 1 {
		t.Fatalf("fetches = %d, want 1", fs.fetchCount(id))
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "old question" {
		t.Fatalf("adopted messages = %+v", msgs)
	}

	s.NewConversation()
	if err := s.Select(ctx, id); err != nil {
		t.Fatalf("re-Select: %v", err)
	}
	if fs.fetchCount(id) != 1 {
		t.Errorf("fetches = %d after cached re-select, want 1", fs.fetchCount(id))
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	fs := newFakeStore()
	a := seedConversation(t, fs, "a")
	b := seedConversation(t, fs, "b")
	c := seedConversation(t, fs, "c")

	events := make(chan session.Event, 128)
	s := session.New(session.Config{
		Store:     fs,
		Language:  lang.English,
		CacheSize: 2,
		Notify:    func(ev session.Event) { events <- ev },
	})
	ctx := context.Background()

	for _, id := range []string{a, b, c} {
		if err := s.Select(ctx, id); err != nil {
			t.Fatalf("Select %s: %v", id, err)
		}
	}

	// a was evicted by c; b and c are resident.
	if err := s.Select(ctx, b); err != nil {
		t.Fatal(err)
	}
	if fs.fetchCount(b) != 1 {
		t.Errorf("b fetched %d times, want 1 (cached)", fs.fetchCount(b))
	}
	if err := s.Select(ctx, a); err != nil {
		t.Fatal(err)
	}
	if fs.fetchCount(a) != 2 {
		t.Errorf("a fetched %d times, want 2 (evicted)", fs.fetchCount(a))
	}
}

func TestSelectAbortsInFlightAndFencesStaleCallbacks(t *testing.T) {
	fs := newFakeStore()
	id := seedConversation(t, fs, "elsewhere")

	var captured func(string)
	started := make(chan struct{})
	comp := completerFunc(func(ctx context.Context, sys string, msgs []gateway.ChatMessage, on func(string)) (string, error) {
		captured = on
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	s, events := newTestSession(t, fs, comp)

	if err := s.Send("about to be abandoned"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-started

	if err := s.Select(context.Background(), id); err != nil {
		t.Fatalf("Select: %v", err)
	}
	waitEvent[session.ConversationSwitched](t, events)

	// A stale callback from the cancelled turn must not touch the new view.
	captured("late token")
	for _, m := range s.Messages() {
		if m.Content == "late token" {
			t.Fatal("stale stream callback mutated session state")
		}
	}
	if s.Busy() {
		t.Error("session busy after switch")
	}
}

func TestNewConversationResetsState(t *testing.T) {
	fs := newFakeStore()
	id := seedConversation(t, fs, "prior")
	s, _ := newTestSession(t, fs, nil)

	if err := s.Select(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	s.NewConversation()

	if s.ConversationID() != "" {
		t.Error("conversation id not cleared")
	}
	msgs := s.Messages()
	if len(msgs) != 1 || !msgs[0].Seeded {
		t.Fatalf("expected fresh greeting, got %+v", msgs)
	}
	if fs.createCount() != 1 {
		t.Errorf("creates = %d, new conversation must not create a row", fs.createCount())
	}
}

func TestDeleteActiveConversationSwitchesToFresh(t *testing.T) {
	fs := newFakeStore()
	id := seedConversation(t, fs, "to delete")
	s, _ := newTestSession(t, fs, nil)

	if err := s.Select(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if s.ConversationID() != "" {
		t.Error("active id not cleared after deleting active conversation")
	}
	if _, err := fs.Conversation(context.Background(), id); !errors.Is(err, store.ErrConversationNotFound) {
		t.Error("conversation still in storage")
	}
}
