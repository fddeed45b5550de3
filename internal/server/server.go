// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/resonancehq/resonance/internal/gateway"
	"github.com/resonancehq/resonance/internal/lang"
	"github.com/resonancehq/resonance/internal/model"
	"github.com/resonancehq/resonance/internal/store"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = 8590

	// MaxRequestBodySize limits request bodies to 1MB.
	MaxRequestBodySize = 1 * 1024 * 1024

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout = 10 * time.Second

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second
)

// =============================================================================
// SERVER
// =============================================================================

// Server is the resonance HTTP API server. It fronts a conversation store
// and proxies streaming chat completions through the OpenRouter gateway.
type Server struct {
	port    int
	store   store.Store
	llm     *gateway.Client
	auth    *AuthConfig
	limiter *RateLimiter
	mux     *http.ServeMux
	httpSrv *http.Server
}

// New creates a server backed by the given store and gateway client.
func New(st store.Store, llm *gateway.Client) *Server {
	s := &Server{
		port:  DefaultPort,
		store: st,
		llm:   llm,
		mux:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// WithPort sets the listen port.
func (s *Server) WithPort(port int) *Server {
	s.port = port
	return s
}

// WithAuth enables bearer-token authentication for all /api routes.
func (s *Server) WithAuth(token string) *Server {
	s.auth = NewAuthConfig(token)
	return s
}

// WithRateLimit enables per-client rate limiting.
func (s *Server) WithRateLimit(perSecond float64, burst int) *Server {
	s.limiter = NewRateLimiter(perSecond, burst)
	return s
}

// Handler returns the fully wrapped HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	middlewares := []Middleware{
		RecoveryMiddleware,
		LoggingMiddleware,
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter))
	}
	if s.auth != nil {
		middlewares = append(middlewares, AuthMiddleware(s.auth))
	}
	return Chain(s.mux, middlewares...)
}

// ListenAndServe starts the server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on :%d", s.port)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	s.mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	s.mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	s.mux.HandleFunc("PATCH /api/conversations/{id}", s.handleUpdateConversation)
	s.mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	s.mux.HandleFunc("POST /api/messages", s.handleCreateMessage)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// storeError maps store failures onto HTTP statuses.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	log.Printf("[server] store error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"configured": s.llm != nil && s.llm.IsConfigured(),
	})
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	metas, err := s.store.ListConversations(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	if metas == nil {
		metas = []model.ConversationMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": metas})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		Language string `json:"language"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Language == "" {
		req.Language = string(lang.English)
	}

	conv, err := s.store.CreateConversation(r.Context(), req.Title, req.Language)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"conversation": conv})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var patch store.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.Title == nil && patch.Language == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	conv, err := s.store.UpdateConversation(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// =============================================================================
// MESSAGES
// =============================================================================

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		Role           string `json:"role"`
		Content        string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}
	role := model.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg := model.NewMessage(role, req.Content)
	if err := s.store.AppendMessage(r.Context(), req.ConversationID, msg); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// =============================================================================
// CHAT (SSE PROXY)
// =============================================================================

type chatRequest struct {
	Messages []gateway.ChatMessage `json:"messages"`
	Language string                `json:"language,omitempty"`
	System   string                `json:"systemInstruction,omitempty"`
}

// sseChunk mirrors the OpenRouter delta frame so downstream decoders can
// consume proxied streams unchanged.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func newSSEChunk(delta string) sseChunk {
	var c sseChunk
	c.Choices = make([]struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	}, 1)
	c.Choices[0].Delta.Content = delta
	return c
}

// handleChat streams a mentor completion as server-sent events. Each frame
// carries only the delta since the previous frame; the stream ends with a
// [DONE] marker.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil || !s.llm.IsConfigured() {
		writeError(w, http.StatusServiceUnavailable, "gateway not configured")
		return
	}

	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	system := req.System
	if system == "" {
		system = lang.SystemPrompt(lang.Language(req.Language).Or(lang.English))
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// STREAMING: the gateway callback delivers cumulative content; the
	// proxy re-frames it as deltas so each frame stays small.
	sent := 0
	_, err := s.llm.ChatStream(r.Context(), system, req.Messages, func(cumulative string) {
		if len(cumulative) <= sent {
			return
		}
		delta := cumulative[sent:]
		sent = len(cumulative)

		payload, err := json.Marshal(newSSEChunk(delta))
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	})
	if err != nil {
		// Headers are gone; the best we can do is log and cut the stream
		// short of its [DONE] marker.
		if !errors.Is(err, context.Canceled) {
			log.Printf("[server] chat stream failed: %v", err)
		}
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
