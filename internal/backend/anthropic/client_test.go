// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/catalog"
)

func TestStreamChatDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	c := NewClient("test-key").WithBaseURL(srv.URL)
	stream, err := c.StreamChat(context.Background(), backend.Request{
		Provider: catalog.ProviderAnthropic,
		Mode:     catalog.ModeChat,
		Prompt:   "hi",
	})
	if err != nil {
		t.Fatal(err)
	}

	var out string
	for ch := range stream {
		if ch.Err != nil {
			t.Fatalf("stream error: %v", ch.Err)
		}
		out += ch.TextDelta
	}
	if out != "Hello" {
		t.Fatalf("accumulated = %q", out)
	}
}

func TestStreamChatMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"partial\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	c := NewClient("test-key").WithBaseURL(srv.URL)
	stream, err := c.StreamChat(context.Background(), backend.Request{Mode: catalog.ModeChat, Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	var sawText, sawErr bool
	for ch := range stream {
		if ch.TextDelta != "" {
			sawText = true
		}
		if ch.Err != nil {
			sawErr = true
		}
	}
	if !sawText || !sawErr {
		t.Fatalf("text=%v err=%v", sawText, sawErr)
	}
}

func TestStreamChatAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	c := NewClient("bad").WithBaseURL(srv.URL)
	_, err := c.StreamChat(context.Background(), backend.Request{Mode: catalog.ModeChat, Prompt: "hi"})
	if !errors.Is(err, backend.ErrAuthFailed) {
		t.Fatalf("want ErrAuthFailed, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("")
	if _, err := c.StreamChat(context.Background(), backend.Request{Mode: catalog.ModeChat}); !errors.Is(err, backend.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}
