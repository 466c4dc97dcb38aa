// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package localserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/catalog"
)

func newTestClient(url string) *Client {
	return NewClientWithConfig(&ClientConfig{BaseURL: url})
}

func TestStreamChatNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3.2" {
			t.Errorf("model = %q", req.Model)
		}
		if !req.Stream {
			t.Error("stream not requested")
		}

		fmt.Fprint(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`+"\n")
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`+"\n")
		fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	stream, err := c.StreamChat(context.Background(), backend.Request{
		Provider: catalog.ProviderLocalServer,
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

func TestStreamChatModelAndSettingsPassthrough(t *testing.T) {
	var got wireChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`+"\n")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	stream, err := c.StreamChat(context.Background(), backend.Request{
		Mode:      catalog.ModeChat,
		Prompt:    "hi",
		ModelName: "mistral:7b",
		Settings:  &backend.Settings{Temperature: 0.3, TopP: 0.9},
	})
	if err != nil {
		t.Fatal(err)
	}
	for range stream {
	}

	if got.Model != "mistral:7b" {
		t.Fatalf("model override lost: %q", got.Model)
	}
	if got.Options == nil || *got.Options.Temperature != 0.3 || *got.Options.TopP != 0.9 {
		t.Fatalf("options = %+v", got.Options)
	}
}

func TestStreamChatInlineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"part"},"done":false}`+"\n")
		fmt.Fprint(w, `{"error":"model ran out of memory"}`+"\n")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	stream, err := c.StreamChat(context.Background(), backend.Request{Mode: catalog.ModeChat, Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	var sawErr bool
	for ch := range stream {
		if ch.Err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatal("inline error not surfaced")
	}
}

func TestStreamChatModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.StreamChat(context.Background(), backend.Request{Mode: catalog.ModeChat, Prompt: "hi"})
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("want ErrModelNotFound, got %v", err)
	}
}

func TestCheckRunningAndNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "server is running")
	}))

	c := newTestClient(srv.URL)
	if err := c.CheckRunning(context.Background()); err != nil {
		t.Fatalf("running check: %v", err)
	}

	srv.Close()
	if err := c.CheckRunning(context.Background()); !IsNotRunning(err) {
		t.Fatalf("want not-running, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"llama3.2","size":123},{"name":"mistral:7b","size":456}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].Name != "llama3.2" {
		t.Fatalf("models = %+v", models)
	}
}
