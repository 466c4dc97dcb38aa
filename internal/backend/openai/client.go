// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai implements the OpenAI backend over the chat completions
// and image generation endpoints. The same client also serves any
// OpenAI-compatible host (Hugging Face inference routes through here with a
// different base URL and model).
package openai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/catalog"
)

const (
	// DefaultBaseURL is the OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// HuggingFaceBaseURL is the OpenAI-compatible Hugging Face router.
	HuggingFaceBaseURL = "https://router.huggingface.co/v1"

	// DefaultTimeout bounds one-shot requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps one-shot response bodies; image responses carry
	// inline base64.
	MaxResponseSize = 64 * 1024 * 1024
)

const (
	ModelChat      = "gpt-4o"
	ModelReasoning = "o4-mini"
	ModelImage     = "gpt-image-1"
)

var (
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// Streaming requests carry no client timeout; cancelled via context.
	sharedStreamingClient = &http.Client{
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
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	apiKey    string
	baseURL   string
	provider  catalog.Provider
	chatModel string
	reasoning string
	imageDir  string
}

// NewClient creates a client against the OpenAI endpoint.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:    strings.TrimSpace(apiKey),
		baseURL:   DefaultBaseURL,
		provider:  catalog.ProviderOpenAI,
		chatModel: ModelChat,
		reasoning: ModelReasoning,
	}
}

// NewHuggingFaceClient creates a client against the Hugging Face router.
// Reasoning is not offered there, so both modes map to the chat model.
func NewHuggingFaceClient(apiKey, model string) *Client {
	if model == "" {
		model = "meta-llama/Llama-3.3-70B-Instruct"
	}
	return &Client{
		apiKey:    strings.TrimSpace(apiKey),
		baseURL:   HuggingFaceBaseURL,
		provider:  catalog.ProviderHuggingFace,
		chatModel: model,
		reasoning: model,
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithImageDir sets the directory generated images are written to.
func (c *Client) WithImageDir(dir string) *Client {
	c.imageDir = dir
	return c
}

// IsConfigured returns true if an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"` // data URL for inline images
}

// wireMessage content is either a plain string or a part list; multimodal
// turns use the part form.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wireChatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type wireStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type wireImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
}

type wireImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

type wireErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

func (c *Client) modelFor(mode catalog.Mode) string {
	if mode == catalog.ModeReasoning {
		return c.reasoning
	}
	return c.chatModel
}

// buildMessages converts dispatch history plus the current turn into chat
// completion messages. The assistant role name differs from the internal
// "model" role, so it is remapped here.
func buildMessages(req backend.Request) []wireMessage {
	msgs := make([]wireMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		if m.ImageData != "" {
			msgs = append(msgs, wireMessage{Role: role, Content: []wireContentPart{
				{Type: "image_url", ImageURL: &wireImageURL{
					URL: "data:" + m.MIMEType + ";base64," + m.ImageData,
				}},
				{Type: "text", Text: m.Text},
			}})
			continue
		}
		msgs = append(msgs, wireMessage{Role: role, Content: m.Text})
	}

	if req.Attachment != nil {
		msgs = append(msgs, wireMessage{Role: "user", Content: []wireContentPart{
			{Type: "image_url", ImageURL: &wireImageURL{
				URL: "data:" + req.Attachment.MIMEType + ";base64," + req.Attachment.Data,
			}},
			{Type: "text", Text: req.Prompt},
		}})
	} else {
		msgs = append(msgs, wireMessage{Role: "user", Content: req.Prompt})
	}
	return msgs
}

// StreamChat implements backend.ChatStreamer.
func (c *Client) StreamChat(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	if !c.IsConfigured() {
		return nil, backend.ErrNotConfigured
	}

	body := wireChatRequest{
		Model:    c.modelFor(req.Mode),
		Messages: buildMessages(req),
		Stream:   true,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

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
			if bytes.Equal(data, []byte("[DONE]")) {
				return
			}

			var wc wireStreamChunk
			if err := json.Unmarshal(data, &wc); err != nil {
				continue
			}
			for _, choice := range wc.Choices {
				if choice.Delta.Content != "" {
					select {
					case chunks <- backend.Chunk{TextDelta: choice.Delta.Content}:
					case <-ctx.Done():
						return
					}
				}
				if choice.FinishReason != "" {
					return
				}
			}
		}
	}()

	return chunks, nil
}

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// GenerateImage implements backend.ImageGenerator.
func (c *Client) GenerateImage(ctx context.Context, prompt string, mode catalog.Mode) (*backend.Result, error) {
	if !c.IsConfigured() {
		return nil, backend.ErrNotConfigured
	}
	if mode == catalog.ModeArtisticGen {
		prompt = "In a highly artistic, expressive style: " + prompt
	}

	bodyBytes, err := json.Marshal(wireImageRequest{Model: ModelImage, Prompt: prompt, N: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/images/generations", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, raw)
	}

	var ir wireImageResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(ir.Data) == 0 {
		return nil, fmt.Errorf("model returned no image")
	}

	if ir.Data[0].URL != "" {
		return &backend.Result{ImageURL: ir.Data[0].URL}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(ir.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	dir := c.imageDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "omnichat_"+uuid.NewString()+".png")
	if err := os.WriteFile(path, decoded, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	return &backend.Result{ImageURL: path}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &backend.APIError{
		Provider: c.provider,
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
