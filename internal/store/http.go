// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/resonancehq/resonance/internal/model"
)

// =============================================================================
// REMOTE STORE
// =============================================================================

// remoteTimeout bounds individual API calls. Persistence calls are small;
// anything slower than this is effectively down.
const remoteTimeout = 15 * time.Second

// maxRemoteBodySize caps response bodies read from the server.
const maxRemoteBodySize = 32 * 1024 * 1024

// RemoteStore talks to a resonance server's HTTP API. It lets several
// terminals share one conversation history.
type RemoteStore struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRemoteStore creates a client for the server at baseURL. The token is
// optional; when set it is sent as a bearer credential.
func NewRemoteStore(baseURL, token string) *RemoteStore {
	return &RemoteStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: remoteTimeout},
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (r *RemoteStore) WithHTTPClient(hc *http.Client) *RemoteStore {
	r.http = hc
	return r
}

// Close is a no-op; the remote store holds no local resources.
func (r *RemoteStore) Close() error {
	return nil
}

// do performs one API call and decodes the JSON response into out (when
// non-nil). A 404 maps to ErrConversationNotFound.
func (r *RemoteStore) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrConversationNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return &StoreError{Message: fmt.Sprintf("server error (HTTP %d): %s", resp.StatusCode, apiErr.Error)}
		}
		return &StoreError{Message: fmt.Sprintf("server error (HTTP %d)", resp.StatusCode)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// STORE IMPLEMENTATION
// =============================================================================

// CreateConversation creates a conversation on the server.
func (r *RemoteStore) CreateConversation(ctx context.Context, title, language string) (*model.Conversation, error) {
	req := map[string]string{"title": title, "language": language}
	var resp struct {
		Conversation *model.Conversation `json:"conversation"`
	}
	if err := r.do(ctx, http.MethodPost, "/api/conversations", req, &resp); err != nil {
		return nil, err
	}
	return resp.Conversation, nil
}

// Conversation fetches a conversation with all of its messages.
func (r *RemoteStore) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	var resp struct {
		Conversation *model.Conversation `json:"conversation"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/conversations/"+id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Conversation == nil {
		return nil, ErrConversationNotFound
	}
	return resp.Conversation, nil
}

// ListConversations fetches conversation metadata, most recent first.
func (r *RemoteStore) ListConversations(ctx context.Context) ([]model.ConversationMeta, error) {
	var resp struct {
		Conversations []model.ConversationMeta `json:"conversations"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// UpdateConversation applies a partial update on the server.
func (r *RemoteStore) UpdateConversation(ctx context.Context, id string, patch Patch) (*model.Conversation, error) {
	var resp struct {
		Conversation *model.Conversation `json:"conversation"`
	}
	if err := r.do(ctx, http.MethodPatch, "/api/conversations/"+id, patch, &resp); err != nil {
		return nil, err
	}
	return resp.Conversation, nil
}

// DeleteConversation removes a conversation on the server.
func (r *RemoteStore) DeleteConversation(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/conversations/"+id, nil, nil)
}

// AppendMessage persists a message on the server.
func (r *RemoteStore) AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	req := map[string]string{
		"conversationId": conversationID,
		"role":           msg.Role.String(),
		"content":        msg.Content,
	}
	return r.do(ctx, http.MethodPost, "/api/messages", req, nil)
}
