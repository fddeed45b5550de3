// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatStreamNotConfigured(t *testing.T) {
	c := NewClient("")
	_, err := c.ChatStream(context.Background(), "", nil, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestChatStreamHappyPath(t *testing.T) {
	var gotBody chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, dataLine("Focus "))
		io.WriteString(w, dataLine("means saying no."))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient("test-key").WithBaseURL(srv.URL).WithModel("test/model")

	var updates []string
	full, err := c.ChatStream(context.Background(), "be direct",
		[]ChatMessage{{Role: "user", Content: "What is focus?"}},
		func(cumulative string) { updates = append(updates, cumulative) })
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if full != "Focus means saying no." {
		t.Errorf("full reply = %q", full)
	}
	if len(updates) != 2 || updates[1] != full {
		t.Errorf("callback updates = %v", updates)
	}

	// Request shape checks.
	if !gotBody.Stream {
		t.Error("stream flag not set")
	}
	if gotBody.Model != "test/model" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("system prompt not injected: %+v", gotBody.Messages)
	}
	if gotBody.Temperature != defaultTemperature || gotBody.TopP != defaultTopP || gotBody.MaxTokens != defaultMaxTokens {
		t.Errorf("sampling params = %v/%v/%v", gotBody.Temperature, gotBody.TopP, gotBody.MaxTokens)
	}
}

func TestChatStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"code":"invalid_key","message":"bad key"}}`)
	}))
	defer srv.Close()

	c := NewClient("test-key").WithBaseURL(srv.URL)
	_, err := c.ChatStream(context.Background(), "", []ChatMessage{{Role: "user", Content: "hi"}}, nil)

	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("err = %v, want ErrAuthFailed", err)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("err = %T, want *GatewayError", err)
	}
	if gwErr.Status != http.StatusUnauthorized || gwErr.Code != "invalid_key" {
		t.Errorf("gateway error = %+v", gwErr)
	}
}

func TestChatStreamRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	c := NewClient("test-key").WithBaseURL(srv.URL)
	_, err := c.ChatStream(context.Background(), "", []ChatMessage{{Role: "user", Content: "hi"}}, nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestChatStreamCancelMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, dataLine("first"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient("test-key").WithBaseURL(srv.URL)
	partial := ""
	done := make(chan error, 1)
	go func() {
		_, err := c.ChatStream(ctx, "", []ChatMessage{{Role: "user", Content: "hi"}},
			func(cumulative string) {
				partial = cumulative
				cancel()
			})
		done <- err
	}()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if partial != "first" {
		t.Errorf("partial = %q", partial)
	}
}
