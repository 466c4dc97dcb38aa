// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the bubbletea chat view. It is a thin rendering
// layer: all turn logic lives in internal/controller, and the view reacts to
// controller notifications relayed into the event loop.
package chat

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/controller"
)

// =============================================================================
// EVENT LOOP MESSAGES
// =============================================================================

// LogChangedMsg signals that the conversation log or composer state changed
// and the view should re-render.
type LogChangedMsg struct{}

// ModeChangedMsg signals that inference switched the effective mode.
type ModeChangedMsg struct {
	Mode catalog.Mode
}

// CredentialErrorMsg signals that a dispatch failed on a missing or rejected
// API key, so the view can point the user at the config file.
type CredentialErrorMsg struct {
	Provider catalog.Provider
}

// statusExpireMsg clears a transient status line. Seq guards against an old
// expiry clearing a newer status.
type statusExpireMsg struct {
	Seq int
}

// ttsDoneMsg reports the outcome of a speech synthesis request.
type ttsDoneMsg struct {
	Path string
	Err  error
}

// liveStartedMsg reports the outcome of opening a live session.
type liveStartedMsg struct {
	Err error
}

// =============================================================================
// CONTROLLER RELAY
// =============================================================================

// Relay forwards controller callbacks into the bubbletea event loop. The
// controller is constructed before the program exists, so the program is
// attached late; callbacks that fire before attachment are dropped, which is
// safe because the first render paints current state anyway.
type Relay struct {
	program atomic.Pointer[tea.Program]
}

// NewRelay creates an unattached relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Attach binds the running program. Callbacks forward from this point on.
func (r *Relay) Attach(p *tea.Program) {
	r.program.Store(p)
}

// Handlers returns controller handlers that forward into the event loop.
func (r *Relay) Handlers() controller.Handlers {
	return controller.Handlers{
		OnChange: func() {
			r.send(LogChangedMsg{})
		},
		OnModeChange: func(m catalog.Mode) {
			r.send(ModeChangedMsg{Mode: m})
		},
		OnCredentialError: func(p catalog.Provider) {
			r.send(CredentialErrorMsg{Provider: p})
		},
	}
}

func (r *Relay) send(msg tea.Msg) {
	if p := r.program.Load(); p != nil {
		p.Send(msg)
	}
}
