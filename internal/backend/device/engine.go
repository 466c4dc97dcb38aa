// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package device implements the on-device backend: a small model served by
// a local runtime process the app manages itself. The free tier routes here
// too, pinned to the same engine. Generation works without any network
// account; the only requirement is the runtime binary being installed.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/backend/localserver"
)

// DefaultModel is the small model the engine serves.
const DefaultModel = "gemma3:1b"

// InitState tracks engine readiness. Submissions are rejected until the
// engine reaches StateReady; a failed init is terminal for the session.
type InitState int

const (
	StateUninitialized InitState = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s InitState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrInitializing is returned for requests that arrive before the engine
// finished starting.
var ErrInitializing = errors.New("on-device engine is still initializing")

// ErrInitFailed is returned when the engine could not start.
var ErrInitFailed = errors.New("on-device engine failed to initialize")

// Engine manages the local runtime process and serves chat through it.
// Init runs once; every later call observes its outcome.
type Engine struct {
	client *localserver.Client
	model  string

	mu       sync.Mutex
	state    InitState
	initErr  error
	initDone chan struct{}
}

// NewEngine creates an engine against the default runtime address.
func NewEngine() *Engine {
	return NewEngineWithConfig(&localserver.ClientConfig{}, DefaultModel)
}

// NewEngineWithConfig creates an engine with a custom runtime address and
// model. Used by tests and for the free tier's pinned model.
func NewEngineWithConfig(config *localserver.ClientConfig, model string) *Engine {
	if model == "" {
		model = DefaultModel
	}
	return &Engine{
		client:   localserver.NewClientWithConfig(config),
		model:    model,
		state:    StateUninitialized,
		initDone: make(chan struct{}),
	}
}

// State returns the current init state.
func (e *Engine) State() InitState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ready reports whether the engine accepts requests.
func (e *Engine) Ready() bool {
	return e.State() == StateReady
}

// Init brings the engine up: reuse a running runtime if one is reachable,
// otherwise start the process and wait for it to answer. Only the first
// call does work; concurrent callers block until it settles.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateReady:
		e.mu.Unlock()
		return nil
	case StateFailed:
		err := e.initErr
		e.mu.Unlock()
		return err
	case StateInitializing:
		done := e.initDone
		e.mu.Unlock()
		select {
		case <-done:
			return e.initResult()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.state = StateInitializing
	e.mu.Unlock()

	err := e.bringUp(ctx)

	e.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.initErr = fmt.Errorf("%w: %v", ErrInitFailed, err)
	} else {
		e.state = StateReady
	}
	close(e.initDone)
	err = e.initErr
	e.mu.Unlock()
	return err
}

func (e *Engine) initResult() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

func (e *Engine) bringUp(ctx context.Context) error {
	if err := e.client.CheckRunning(ctx); err == nil {
		return nil
	}
	return e.startRuntimeProcess(ctx)
}

// StreamChat implements backend.ChatStreamer by delegating to the runtime
// with the engine's pinned model. Requests before Init completes fail with
// ErrInitializing so the caller can keep the composer disabled instead of
// queuing work.
func (e *Engine) StreamChat(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	switch e.State() {
	case StateReady:
	case StateFailed:
		return nil, e.initResult()
	default:
		return nil, ErrInitializing
	}

	req.ModelName = e.model
	return e.client.StreamChat(ctx, req)
}
