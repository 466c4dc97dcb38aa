// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cohere implements the Cohere backend over the v2 chat API.
// Chat and web-grounded search; citations surface as links.
package cohere

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
	// DefaultBaseURL is the Cohere API endpoint.
	DefaultBaseURL = "https://api.cohere.com/v2"

	// MaxResponseSize caps error response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

// ModelChat is the default Cohere model.
const ModelChat = "command-a-03-2025"

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

// Client talks to the Cohere chat API.
type Client struct {
	apiKey  string
	baseURL string
}

// NewClient creates a Cohere client.
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

type wireTool struct {
	Type string `json:"type"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type wireStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Message struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
			Citations struct {
				Sources []struct {
					Type string `json:"type"`
					Tool struct {
						URL   string `json:"url"`
						Title string `json:"title"`
					} `json:"tool_output"`
				} `json:"sources"`
			} `json:"citations"`
		} `json:"message"`
	} `json:"delta"`
}

type wireErrorResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements backend.ChatStreamer. Search mode enables the web
// search tool; its citations come through as link chunks.
func (c *Client) StreamChat(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	if !c.IsConfigured() {
		return nil, backend.ErrNotConfigured
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

	body := wireRequest{
		Model:    ModelChat,
		Messages: messages,
		Stream:   true,
	}
	if req.Mode == catalog.ModeSearch {
		body.Tools = []wireTool{{Type: "web_search"}}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
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

		var links []backend.Link
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
			case "content-delta":
				if text := ev.Delta.Message.Content.Text; text != "" {
					select {
					case chunks <- backend.Chunk{TextDelta: text}:
					case <-ctx.Done():
						return
					}
				}
			case "citation-start":
				for _, src := range ev.Delta.Message.Citations.Sources {
					if src.Tool.URL == "" {
						continue
					}
					links = append(links, backend.Link{URI: src.Tool.URL, Title: src.Tool.Title})
				}
				if len(links) > 0 {
					// Send the full set each time so later sets supersede.
					out := make([]backend.Link, len(links))
					copy(out, links)
					select {
					case chunks <- backend.Chunk{Links: out}:
					case <-ctx.Done():
						return
					}
				}
			case "message-end":
				return
			}
		}
	}()

	return chunks, nil
}

func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &backend.APIError{
		Provider: catalog.ProviderCohere,
		Status:   statusCode,
	}
	var wireErr wireErrorResponse
	if err := json.Unmarshal(body, &wireErr); err == nil && wireErr.Message != "" {
		apiErr.Message = wireErr.Message
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}
