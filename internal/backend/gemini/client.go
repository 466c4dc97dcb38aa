// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements the Google Gemini backend. It is the most
// capable backend: streaming chat with search and maps grounding, image
// generation and editing, video understanding, speech synthesis, and the
// bidirectional live voice session.
package gemini

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/catalog"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL is the Gemini REST endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultTimeout bounds one-shot requests. Streaming requests carry no
	// client timeout; they are cancelled through their context.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps one-shot response bodies. Generated images come
	// back inline as base64, so this is deliberately generous.
	MaxResponseSize = 64 * 1024 * 1024
)

// Model identifiers per capability.
const (
	ModelChat      = "gemini-2.5-flash"
	ModelReasoning = "gemini-2.5-pro"
	ModelImage     = "gemini-2.5-flash-image-preview"
	ModelTTS       = "gemini-2.5-flash-preview-tts"
	ModelLive      = "gemini-2.5-flash-native-audio-preview"
)

var (
	// Shared clients with connection pooling for all Gemini requests.
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

	// sharedStreamingClient has no timeout; streams are context-controlled.
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

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the Gemini API. The zero API key is allowed; every call
// then fails with backend.ErrNotConfigured so the failure stays visible in
// the conversation rather than at construction time.
type Client struct {
	apiKey   string
	baseURL  string
	imageDir string // where generated images are written
	voice    string // prebuilt voice for speech synthesis
}

// NewClient creates a Gemini client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  DefaultBaseURL,
		imageDir: "",
		voice:    "Zephyr",
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithImageDir sets the directory generated images are written to.
// Defaults to the OS temp directory when empty.
func (c *Client) WithImageDir(dir string) *Client {
	c.imageDir = dir
	return c
}

// WithVoice sets the prebuilt voice used for speech synthesis.
func (c *Client) WithVoice(name string) *Client {
	c.voice = name
	return c
}

// IsConfigured returns true if an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// endpoint builds the URL for a model method, e.g.
// endpoint("gemini-2.5-flash", "streamGenerateContent") with the key in the
// query string the way the Gemini REST API expects.
func (c *Client) endpoint(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", c.baseURL, model, method, c.apiKey)
}

// modelFor maps a request to the model that serves it.
func modelFor(req backend.Request) string {
	if req.Mode == catalog.ModeReasoning {
		return ModelReasoning
	}
	return ModelChat
}
