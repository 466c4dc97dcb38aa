// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convo

import (
	"errors"
	"fmt"
	"sync"
)

// Reducer errors.
var (
	// ErrTurnInFlight is returned by BeginTurn while a model message is
	// still non-terminal. Overlapping turns are rejected, not queued.
	ErrTurnInFlight = errors.New("turn already in progress")

	// ErrNoSuchMessage indicates a transition referenced an unknown ID.
	ErrNoSuchMessage = errors.New("no such message")

	// ErrAlreadyTerminal indicates a transition was applied to a message
	// that already settled.
	ErrAlreadyTerminal = errors.New("message already terminal")
)

// ============================================================================
// REDUCER
// ============================================================================

// Reducer owns the ordered message log. Messages are appended by turn and
// never reordered; chunks apply in arrival order only. At most one model
// message is non-terminal at any time, enforced structurally rather than by
// the submit button alone.
//
// The streaming goroutine and the render loop both touch the log, so every
// operation locks.
type Reducer struct {
	mu       sync.Mutex
	messages []*Message
	inFlight string // ID of the pending/streaming model message, "" if none
}

// NewReducer creates an empty conversation log.
func NewReducer() *Reducer {
	return &Reducer{}
}

// ============================================================================
// TURN TRANSITIONS
// ============================================================================

// UserTurn describes the user half of a turn.
type UserTurn struct {
	Text       string
	ImageURL   string
	VideoURL   string
	Base64Data string
	MIMEType   string
}

// BeginTurn atomically appends a terminal user message and a pending model
// message, and returns the model message ID. Fails with ErrTurnInFlight if a
// model message is still non-terminal.
func (r *Reducer) BeginTurn(turn UserTurn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight != "" {
		return "", ErrTurnInFlight
	}

	user := newUserMessage(turn.Text)
	user.ImageURL = turn.ImageURL
	user.VideoURL = turn.VideoURL
	user.Base64Data = turn.Base64Data
	user.MIMEType = turn.MIMEType

	model := newModelMessage()

	r.messages = append(r.messages, user, model)
	r.inFlight = model.ID
	return model.ID, nil
}

// FirstChunk transitions pending -> streaming and seeds the content.
func (r *Reducer) FirstChunk(id, text string, links []Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.nonTerminal(id)
	if err != nil {
		return err
	}
	msg.state = StateStreaming
	msg.streamed.Reset()
	msg.streamed.WriteString(text)
	if len(links) > 0 {
		msg.Links = links
	}
	return nil
}

// AppendChunk concatenates a delta onto a streaming message. A chunk that
// carries links replaces the previous set; the last non-empty set wins.
func (r *Reducer) AppendChunk(id, delta string, links []Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.nonTerminal(id)
	if err != nil {
		return err
	}
	if msg.state == StatePending {
		msg.state = StateStreaming
	}
	msg.streamed.WriteString(delta)
	if len(links) > 0 {
		msg.Links = links
	}
	return nil
}

// ImmediateResult carries the payload of a non-streaming response.
type ImmediateResult struct {
	Text     string
	ImageURL string
	Links    []Link
}

// FinishImmediate transitions pending -> terminal success with the full
// payload, for the one-shot modes.
func (r *Reducer) FinishImmediate(id string, res ImmediateResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.nonTerminal(id)
	if err != nil {
		return err
	}
	msg.Text = res.Text
	msg.ImageURL = res.ImageURL
	if len(res.Links) > 0 {
		msg.Links = res.Links
	}
	msg.state = StateDone
	r.inFlight = ""
	return nil
}

// FinishStream seals a streaming message: the accumulated chunks become the
// final text and the message settles successfully.
func (r *Reducer) FinishStream(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.nonTerminal(id)
	if err != nil {
		return err
	}
	msg.Text = msg.streamed.String()
	msg.streamed.Reset()
	msg.state = StateDone
	r.inFlight = ""
	return nil
}

// Fail transitions any non-terminal message to terminal error carrying a
// human-readable explanation.
func (r *Reducer) Fail(id, humanMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.nonTerminal(id)
	if err != nil {
		return err
	}
	// Keep whatever partial content arrived before the failure out of the
	// final text; the error message is what the log records.
	msg.streamed.Reset()
	msg.Text = humanMessage
	msg.state = StateError
	r.inFlight = ""
	return nil
}

// AppendPair appends an already-terminal user/model message pair in one log
// update. Used by the live session coordinator on turn-complete.
func (r *Reducer) AppendPair(userText, modelText string) (userID, modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := newUserMessage(userText)
	model := newModelMessage()
	model.Text = modelText
	model.state = StateDone

	r.messages = append(r.messages, user, model)
	return user.ID, model.ID
}

// SetAudio attaches a synthesized audio handle to a terminal message so
// replays reuse it instead of re-synthesizing.
func (r *Reducer) SetAudio(id, audioURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.byID(id)
	if msg == nil {
		return fmt.Errorf("%w: %s", ErrNoSuchMessage, id)
	}
	msg.AudioURL = audioURL
	return nil
}

// ============================================================================
// WHOLE-LOG OPERATIONS
// ============================================================================

// Reset clears the conversation and releases every owned media resource.
// An in-flight dispatch keeps running but its transitions will fail with
// ErrNoSuchMessage and are discarded by the caller.
func (r *Reducer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseAllLocked()
	r.messages = nil
	r.inFlight = ""
}

// Replace swaps in a loaded session snapshot, releasing the previous log.
// Snapshot messages are terminal by construction.
func (r *Reducer) Replace(msgs []*Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseAllLocked()
	r.messages = msgs
	r.inFlight = ""
}

// Teardown releases all resources. The reducer must not be used afterward.
func (r *Reducer) Teardown() {
	r.Reset()
}

// ============================================================================
// ACCESSORS
// ============================================================================

// Messages returns a snapshot copy of the log, in turn order.
func (r *Reducer) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Len returns the number of messages.
func (r *Reducer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Busy reports whether a model message is still non-terminal.
func (r *Reducer) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight != ""
}

// History returns the terminal, non-errored messages: the context a backend
// should see when a new turn is dispatched.
func (r *Reducer) History() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Message, 0, len(r.messages))
	for _, m := range r.messages {
		if m.state.Terminal() && m.state != StateError {
			out = append(out, m)
		}
	}
	return out
}

// Title derives a session title from the first user message with text.
func (r *Reducer) Title() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.Role == RoleUser && m.Text != "" {
			return m.Preview(50)
		}
	}
	return ""
}

// Get returns the message with the given ID, or nil.
func (r *Reducer) Get(id string) *Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID(id)
}

// ============================================================================
// INTERNAL
// ============================================================================

func (r *Reducer) byID(id string) *Message {
	for _, m := range r.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// nonTerminal resolves an ID to a message that can still transition.
func (r *Reducer) nonTerminal(id string) (*Message, error) {
	msg := r.byID(id)
	if msg == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchMessage, id)
	}
	if msg.state.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyTerminal, id)
	}
	return msg, nil
}

func (r *Reducer) releaseAllLocked() {
	for _, m := range r.messages {
		m.releaseHandles()
	}
}
