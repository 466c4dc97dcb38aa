// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/backend/localserver"
	"github.com/omnichat/omnichat-tui/internal/catalog"
)

func newTestEngine(url string) *Engine {
	return NewEngineWithConfig(&localserver.ClientConfig{BaseURL: url}, "test-model")
}

func TestInitReusesRunningRuntime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "running")
	}))
	defer srv.Close()

	e := newTestEngine(srv.URL)
	if e.State() != StateUninitialized {
		t.Fatalf("initial state = %s", e.State())
	}
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !e.Ready() {
		t.Fatalf("state = %s", e.State())
	}
	// Second Init is a no-op.
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestInitConcurrentCallersSettleTogether(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "running")
	}))
	defer srv.Close()

	e := newTestEngine(srv.URL)
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.Init(context.Background())
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if !e.Ready() {
		t.Fatalf("state = %s", e.State())
	}
}

func TestStreamChatBeforeInitRejected(t *testing.T) {
	e := newTestEngine("http://127.0.0.1:1")
	_, err := e.StreamChat(context.Background(), backend.Request{
		Provider: catalog.ProviderDevice,
		Mode:     catalog.ModeChat,
		Prompt:   "hi",
	})
	if !errors.Is(err, ErrInitializing) {
		t.Fatalf("want ErrInitializing, got %v", err)
	}
}

func TestStreamChatPinsEngineModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/chat" {
			var req struct {
				Model string `json:"model"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			gotModel = req.Model
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`+"\n")
			return
		}
		fmt.Fprint(w, "running")
	}))
	defer srv.Close()

	e := newTestEngine(srv.URL)
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	stream, err := e.StreamChat(context.Background(), backend.Request{
		Provider:  catalog.ProviderDevice,
		Mode:      catalog.ModeChat,
		Prompt:    "hi",
		ModelName: "something-else", // must not leak through
	})
	if err != nil {
		t.Fatal(err)
	}
	for range stream {
	}
	if gotModel != "test-model" {
		t.Fatalf("model = %q", gotModel)
	}
}

func TestInitStateString(t *testing.T) {
	for state, want := range map[InitState]string{
		StateUninitialized: "uninitialized",
		StateInitializing:  "initializing",
		StateReady:         "ready",
		StateFailed:        "failed",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
