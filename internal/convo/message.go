// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package convo owns the ordered conversation log and the per-message state
// machine: pending -> streaming -> terminal (success or error).
package convo

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/omnichat/omnichat-tui/internal/media"
	"github.com/omnichat/omnichat-tui/internal/util"
)

// ============================================================================
// ROLE TYPE
// ============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Model"
	default:
		return string(r)
	}
}

// ============================================================================
// MESSAGE STATE
// ============================================================================

// State is the lifecycle state of a model message. User messages are born
// terminal.
type State int

const (
	// StatePending means the turn is dispatched but no content has arrived.
	StatePending State = iota
	// StateStreaming means at least one chunk has been applied.
	StateStreaming
	// StateDone is terminal success.
	StateDone
	// StateError is terminal failure with a human-readable Text.
	StateError
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// ============================================================================
// GROUNDING LINK
// ============================================================================

// Link is a citation source returned alongside a search-grounded response.
type Link struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ============================================================================
// MESSAGE TYPE
// ============================================================================

// Message is a single entry in the conversation log. It is owned exclusively
// by the Reducer and mutated only through Reducer transitions.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`

	// Links replaces wholesale on each chunk that carries a non-empty set;
	// sources are not merged across chunks.
	Links []Link `json:"links,omitempty"`

	// Attachment wire data carried on user messages so history replays can
	// resend the file.
	Base64Data string `json:"base64_data,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`

	state State
	// streamed accumulates chunk deltas without quadratic reallocation.
	streamed strings.Builder
	// handles are preview/audio resources this message owns; released on
	// reset, replace, and teardown.
	handles []*media.Handle
}

// newUserMessage creates a terminal user message.
func newUserMessage(text string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleUser,
		Timestamp: time.Now(),
		Text:      text,
		state:     StateDone,
	}
}

// newModelMessage creates a pending model message.
func newModelMessage() *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleModel,
		Timestamp: time.Now(),
		state:     StatePending,
	}
}

// Restored rebuilds a terminal message from a persisted session snapshot.
// The caller fills the content fields before handing the log to Replace.
func Restored(id string, role Role, timestamp time.Time) *Message {
	return &Message{
		ID:        id,
		Role:      role,
		Timestamp: timestamp,
		state:     StateDone,
	}
}

// State returns the lifecycle state.
func (m *Message) State() State { return m.state }

// Loading reports whether the message is still awaiting its first content.
func (m *Message) Loading() bool { return m.state == StatePending }

// Errored reports whether the message terminated in error.
func (m *Message) Errored() bool { return m.state == StateError }

// DisplayText returns the text to render, live for streaming messages.
func (m *Message) DisplayText() string {
	if m.state == StateStreaming {
		return m.streamed.String()
	}
	return m.Text
}

// OwnHandle transfers ownership of a media handle to this message.
func (m *Message) OwnHandle(h *media.Handle) {
	if h != nil {
		m.handles = append(m.handles, h)
	}
}

// releaseHandles frees every owned media resource.
func (m *Message) releaseHandles() {
	for _, h := range m.handles {
		h.Release()
	}
	m.handles = nil
}

// Preview returns the message text truncated to maxWidth display cells, so
// wide characters count double.
func (m *Message) Preview(maxWidth int) string {
	return util.TruncateWidth(m.DisplayText(), maxWidth)
}

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
