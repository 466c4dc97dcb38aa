// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anthropic implements the Anthropic backend over the streaming
// messages API. Chat and reasoning only.
package anthropic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/catalog"
)

const (
	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// apiVersion is the required anthropic-version header value.
	apiVersion = "2023-06-01"

	// MaxResponseSize caps error response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

const (
	ModelChat      = "claude-sonnet-4-5"
	ModelReasoning = "claude-opus-4-1"
)

// Streaming requests carry no client timeout; cancelled via context.
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

// Client talks to the Anthropic messages API.
type Client struct {
	apiKey  string
	baseURL string
}

// NewClient creates an Anthropic client.
func NewClient(apiKey string) *Client {
	return &Client{apiKey: strings.TrimSpace(apiKey), baseURL: DefaultBaseURL}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// IsConfigured returns true if an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []wireMessage `json:"messages"`
	Stream    bool          `json:"stream"`
}

// wireStreamEvent covers the event payloads we care about. The messages
// stream interleaves several event types; only content_block_delta carries
// text.
type wireStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements backend.ChatStreamer.
func (c *Client) StreamChat(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	if !c.IsConfigured() {
		return nil, backend.ErrNotConfigured
	}

	model := ModelChat
	if req.Mode == catalog.ModeReasoning {
		model = ModelReasoning
	}

	messages := make([]wireMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		messages = append(messages, wireMessage{Role: role, Content: m.Text})
	}
	messages = append(messages, wireMessage{Role: "user", Content: req.Prompt})

	bodyBytes, err := json.Marshal(wireRequest{
		Model:     model,
		MaxTokens: 8192,
		Messages:  messages,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, raw)
	}

	chunks := make(chan backend.Chunk, 64)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := backend.NewSSEReader(resp.Body)
		for {
			select {
			case <-ctx.Done():
				chunks <- backend.Chunk{Err: ctx.Err()}
				return
			default:
			}

			data, err := reader.ReadEvent()
			if err != nil {
				if err == io.EOF {
					return
				}
				chunks <- backend.Chunk{Err: fmt.Errorf("read error: %w", err)}
				return
			}

			var ev wireStreamEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Text != "" {
					select {
					case chunks <- backend.Chunk{TextDelta: ev.Delta.Text}:
					case <-ctx.Done():
						return
					}
				}
			case "error":
				chunks <- backend.Chunk{Err: &backend.APIError{
					Provider: catalog.ProviderAnthropic,
					Code:     ev.Error.Type,
					Message:  ev.Error.Message,
				}}
				return
			case "message_stop":
				return
			}
		}
	}()

	return chunks, nil
}

func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &backend.APIError{
		Provider: catalog.ProviderAnthropic,
		Status:   statusCode,
	}
	var wireErr wireErrorResponse
	if err := json.Unmarshal(body, &wireErr); err == nil && wireErr.Error.Message != "" {
		apiErr.Code = wireErr.Error.Type
		apiErr.Message = wireErr.Error.Message
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}
