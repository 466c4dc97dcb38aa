// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package localserver implements the backend for a user-run local model
// server speaking the Ollama wire protocol. Responses stream as
// newline-delimited JSON rather than SSE.
package localserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/catalog"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the local server client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "local model server is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// IsNotRunning checks if an error indicates the server is unreachable.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return errors.Is(err, ErrNotRunning)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the local server client.
type ClientConfig struct {
	// BaseURL is the server base URL (default: http://127.0.0.1:11434).
	// Explicit IPv4 avoids IPv6 resolution issues with localhost on Windows.
	BaseURL string

	// Timeout for non-streaming requests (default: 30s).
	Timeout time.Duration

	// DefaultModel used when a request names no model (default: "llama3.2").
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      30 * time.Second,
		DefaultModel: "llama3.2",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the local model server.
// It is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "llama3.2"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// CheckRunning verifies that the server is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from local server: " + resp.Status,
		}
	}
	return nil
}

// ModelInfo describes one locally installed model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type listModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ListModels retrieves the installed models, for the model picker.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "failed to list models: " + resp.Status,
		}
	}

	var result listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return result.Models, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// wireMessage is one chat turn in Ollama wire form. Images are raw base64
// strings without a data-URL prefix.
type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// wireOptions carries the sampling knobs; pointers so unset values are
// omitted and the server defaults apply.
type wireOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

type wireChatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *wireOptions  `json:"options,omitempty"`
}

type wireErrorResponse struct {
	Error string `json:"error"`
}

// StreamChat implements backend.ChatStreamer. The request's ModelName
// overrides the configured default, and Settings pass through as sampling
// options; both only exist for local generation.
func (c *Client) StreamChat(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	model := req.ModelName
	if model == "" {
		model = c.config.DefaultModel
	}

	messages := make([]wireMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		wm := wireMessage{Role: role, Content: m.Text}
		if m.ImageData != "" {
			wm.Images = []string{m.ImageData}
		}
		messages = append(messages, wm)
	}
	current := wireMessage{Role: "user", Content: req.Prompt}
	if req.Attachment != nil {
		current.Images = []string{req.Attachment.Data}
	}
	messages = append(messages, current)

	body := wireChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if req.Settings != nil {
		body.Options = &wireOptions{
			Temperature: &req.Settings.Temperature,
			TopP:        &req.Settings.TopP,
		}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	// Streaming uses a client without timeout; the context bounds it.
	// Plain HTTP is fine here, the server is loopback-only.
	streamClient := &http.Client{}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var wireErr wireErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&wireErr); err == nil && wireErr.Error != "" {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: wireErr.Error}
		}
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "stream request failed: " + resp.Status,
		}
	}

	chunks := make(chan backend.Chunk, 64)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := newStreamReader(resp.Body)
		err := reader.process(ctx, func(delta string) bool {
			select {
			case chunks <- backend.Chunk{TextDelta: delta}:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			select {
			case chunks <- backend.Chunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// Provider returns the catalog identity this client serves.
func (c *Client) Provider() catalog.Provider {
	return catalog.ProviderLocalServer
}
