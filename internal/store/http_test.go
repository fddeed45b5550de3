// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonancehq/resonance/internal/model"
)

func TestRemoteStoreRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	conv := &model.Conversation{
		ID:        "c1",
		Title:     "Focus",
		Language:  "en",
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []*model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "hello", CreatedAt: now},
		},
	}

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.Method + " " + r.URL.Path {
		case "POST /api/conversations":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "zh", body["language"])
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"conversation": conv})
		case "GET /api/conversations/c1":
			json.NewEncoder(w).Encode(map[string]any{"conversation": conv})
		case "GET /api/conversations":
			json.NewEncoder(w).Encode(map[string]any{"conversations": []model.ConversationMeta{conv.Meta()}})
		case "DELETE /api/conversations/c1":
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		case "POST /api/messages":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"message": conv.Messages[0]})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rs := NewRemoteStore(srv.URL, "secret")
	ctx := context.Background()

	created, err := rs.CreateConversation(ctx, "", "zh")
	require.NoError(t, err)
	assert.Equal(t, "c1", created.ID)
	assert.Equal(t, "Bearer secret", gotAuth)

	loaded, err := rs.Conversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "hello", loaded.Messages[0].Content)

	metas, err := rs.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "c1", metas[0].ID)

	require.NoError(t, rs.AppendMessage(ctx, "c1", model.NewUserMessage("hi")))
	require.NoError(t, rs.DeleteConversation(ctx, "c1"))
}

func TestRemoteStoreNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	rs := NewRemoteStore(srv.URL, "")
	_, err := rs.Conversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestRemoteStoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "database down"})
	}))
	defer srv.Close()

	rs := NewRemoteStore(srv.URL, "")
	_, err := rs.ListConversations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database down")
}
