// Copyright (c) 2025 Resonance Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultBaseURL is the base URL for the OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "google/gemini-3-pro-preview"

	// Sampling parameters for mentor replies.
	defaultTemperature = 0.7
	defaultTopP        = 0.95
	defaultMaxTokens   = 4096

	// MaxErrorBodySize caps how much of an error response body is read.
	MaxErrorBodySize = 1 * 1024 * 1024
)

// sharedStreamingClient is used for streaming requests. It carries no
// client-level timeout; request lifetime is controlled via context so a
// long reply is never cut off mid-stream.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// Error variables for common gateway failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("OpenRouter API key not configured")

	// ErrAuthFailed indicates authentication failed.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has insufficient credits.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// GatewayError represents an error response from the OpenRouter API.
type GatewayError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openrouter error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("openrouter error (HTTP %d): %s", e.Status, e.Message)
}

// Is maps API status codes onto the package sentinel errors so callers can
// use errors.Is without inspecting HTTP details.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized
	case ErrInsufficientCredits:
		return e.Status == http.StatusPaymentRequired
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// ChatMessage is a single role/content pair in the request payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body sent to the chat completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// apiErrorResponse is the error envelope OpenRouter returns.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client communicates with the OpenRouter chat completions API.
type Client struct {
	mu       sync.RWMutex
	apiKey   string
	baseURL  string
	model    string
	siteURL  string
	siteName string
	http     *http.Client
}

// NewClient creates a client with the given API key. An empty key is
// allowed; streaming requests will fail with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  DefaultBaseURL,
		model:    DefaultModel,
		siteURL:  "https://resonance.local",
		siteName: "resonance",
		http:     sharedStreamingClient,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel sets the model used for completions.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Reconfigure swaps the API key and model at runtime, for config hot
// reload. An empty model keeps the current one. Safe for concurrent use
// with in-flight streams; running requests keep their original settings.
func (c *Client) Reconfigure(apiKey, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(apiKey)
	if model != "" {
		c.model = model
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// setHeaders sets the required headers for OpenRouter requests.
func (c *Client) setHeaders(req *http.Request) {
	c.mu.RLock()
	apiKey := c.apiKey
	c.mu.RUnlock()

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "resonance/0.1.0")

	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// ChatStream performs a streaming chat completion. The system prompt is
// injected ahead of the conversation messages. onContent is invoked after
// every decoded delta with the FULL reply accumulated so far, and the final
// accumulated reply is returned when the stream ends cleanly.
//
// Cancelling the context aborts the request; the context error is returned.
func (c *Client) ChatStream(ctx context.Context, systemPrompt string, messages []ChatMessage, onContent func(cumulative string)) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	payload := make([]ChatMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		payload = append(payload, ChatMessage{Role: "system", Content: systemPrompt})
	}
	payload = append(payload, messages...)

	reqBody := chatRequest{
		Model:       c.Model(),
		Messages:    payload,
		Stream:      true,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		MaxTokens:   defaultMaxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		// Surface the raw context error so callers can distinguish a
		// user abort from a network failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return "", handleErrorResponse(resp.StatusCode, body)
	}

	dec := NewDecoder(onContent)
	if err := dec.Run(ctx, resp.Body); err != nil {
		return dec.Content(), err
	}
	return dec.Content(), nil
}

// handleErrorResponse converts HTTP error responses to GatewayError values.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &GatewayError{
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	log.Printf("[gateway] unparseable error response (HTTP %d)", statusCode)
	return &GatewayError{Message: msg, Status: statusCode}
}
