// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonancehq/resonance/internal/model"
)

// Compile-time interface checks.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RemoteStore)(nil)
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "resonance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndLoadConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "", "zh")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	assert.Equal(t, "zh", conv.Language)

	loaded, err := s.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, loaded.ID)
	assert.Empty(t, loaded.Messages)
}

func TestConversationNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Conversation(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	err = s.DeleteConversation(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	title := "x"
	_, err = s.UpdateConversation(ctx, "no-such-id", Patch{Title: &title})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	err = s.AppendMessage(ctx, "no-such-id", model.NewUserMessage("hello"))
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMessagesReturnedInFullAscendingOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "", "en")
	require.NoError(t, err)

	// More messages than any UI page size; the store must return all of
	// them, oldest first.
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 45; i++ {
		m := model.NewUserMessage("message")
		m.Content = m.Content + " " + string(rune('A'+i%26))
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.AppendMessage(ctx, conv.ID, m))
	}

	loaded, err := s.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 45)

	for i := 1; i < len(loaded.Messages); i++ {
		assert.False(t, loaded.Messages[i].CreatedAt.Before(loaded.Messages[i-1].CreatedAt),
			"messages out of order at index %d", i)
	}
}

func TestAppendMessageBumpsUpdatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "", "en")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.AppendMessage(ctx, conv.ID, model.NewUserMessage("hi")))

	loaded, err := s.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, loaded.UpdatedAt.After(conv.UpdatedAt))
}

func TestListConversationsOrderAndPreview(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateConversation(ctx, "", "en")
	require.NoError(t, err)
	second, err := s.CreateConversation(ctx, "Named", "en")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(ctx, first.ID, model.NewUserMessage("what is taste?")))
	require.NoError(t, s.AppendMessage(ctx, first.ID, model.NewMessage(model.RoleAssistant, "an answer")))

	metas, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)

	// first was touched last, so it lists first.
	assert.Equal(t, first.ID, metas[0].ID)
	assert.Equal(t, 2, metas[0].MessageCount)
	assert.Equal(t, "what is taste?", metas[0].Preview)
	assert.Equal(t, "what is taste?", metas[0].Title)

	assert.Equal(t, second.ID, metas[1].ID)
	assert.Equal(t, "Named", metas[1].Title)
	assert.Equal(t, 0, metas[1].MessageCount)
}

func TestUpdateConversationPatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "", "en")
	require.NoError(t, err)

	title := "Focus"
	updated, err := s.UpdateConversation(ctx, conv.ID, Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Focus", updated.Title)
	assert.Equal(t, "en", updated.Language, "unpatched field must be unchanged")

	language := "zh"
	updated, err = s.UpdateConversation(ctx, conv.ID, Patch{Language: &language})
	require.NoError(t, err)
	assert.Equal(t, "Focus", updated.Title)
	assert.Equal(t, "zh", updated.Language)
}

func TestDeleteConversationCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "", "en")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, conv.ID, model.NewUserMessage("hi")))

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = s.Conversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n))
	assert.Zero(t, n, "messages should cascade on delete")
}

func TestAppendMessageRejectsInvalidRole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "", "en")
	require.NoError(t, err)

	bad := model.NewMessage("tool", "nope")
	assert.Error(t, s.AppendMessage(ctx, conv.ID, bad))
}
