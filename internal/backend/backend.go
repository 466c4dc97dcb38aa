// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the uniform capability surface over every AI provider:
// text streaming, image generation and editing, video analysis, speech
// synthesis, and live voice sessions.
//
// A backend implements whichever capability interfaces its provider offers;
// the Registry routes a request to the backend by provider identity and
// picks the capability by mode. The facade holds no conversation state.
package backend

import (
	"context"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/media"
)

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// TurnMessage is one history entry in backend wire form.
type TurnMessage struct {
	Role      string // "user" or "model"
	Text      string
	ImageData string // base64, set when the turn carried an image
	MIMEType  string
}

// Location is an optional hint for maps-grounded chat.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Settings are the sampling knobs passed through to on-device and local
// generation only.
type Settings struct {
	Temperature float64
	TopP        float64
}

// Request describes one dispatch: a user turn plus the context it runs in.
type Request struct {
	Provider catalog.Provider
	Mode     catalog.Mode
	Prompt   string
	History  []TurnMessage

	// Attachment is set for image editing; Frames for video understanding
	// (already sampled and capped by internal/media).
	Attachment *media.Attachment
	Frames     []media.Frame

	Location *Location
	Settings *Settings
	// ModelName overrides the backend's default model (local server).
	ModelName string
}

// Link is a grounding citation attached to a search-augmented response.
type Link struct {
	URI   string
	Title string
}

// Chunk is one incremental unit of a streamed response. A chunk carrying a
// non-empty Links set supersedes all earlier sets. Err terminates the
// stream; the channel closes after it.
type Chunk struct {
	TextDelta string
	Links     []Link
	Err       error
}

// Result is the payload of a one-shot response.
type Result struct {
	Text     string
	ImageURL string // path of the generated/edited image on disk
	Links    []Link
}

// Response is the outcome of a dispatch; exactly one field is set,
// determined by the request mode.
type Response struct {
	// Immediate is set for the one-shot modes.
	Immediate *Result
	// Stream is set for the chat-family modes: a finite channel the caller
	// drives to exhaustion. It is not restartable; retry means re-dispatch.
	Stream <-chan Chunk
	// Live is set for live-conversation mode.
	Live LiveConn
}

// ============================================================================
// CAPABILITY INTERFACES
// ============================================================================

// ChatStreamer produces an incremental token stream for chat-family modes.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req Request) (<-chan Chunk, error)
}

// ImageGenerator produces an image from a text prompt. The mode selects the
// standard or artistic model.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, mode catalog.Mode) (*Result, error)
}

// ImageInput is the uploaded image an edit applies to.
type ImageInput struct {
	MIMEType string
	Data     string // base64
}

// ImageEditor applies a prompt to an uploaded image.
type ImageEditor interface {
	EditImage(ctx context.Context, prompt string, image ImageInput) (*Result, error)
}

// VideoAnalyzer answers a prompt about sampled video frames.
type VideoAnalyzer interface {
	AnalyzeVideo(ctx context.Context, prompt string, frames []media.Frame) (*Result, error)
}

// SpeechSynthesizer converts text to spoken audio bytes.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// LiveOpener starts a bidirectional low-latency voice session.
type LiveOpener interface {
	OpenLive(ctx context.Context) (LiveConn, error)
}

// ============================================================================
// LIVE CONNECTION
// ============================================================================

// LiveEvent is one inbound event on a live session. Exactly one of the
// payload groups is meaningful per event.
type LiveEvent struct {
	// Audio is a decoded PCM chunk ready for playback scheduling.
	Audio      []byte
	SampleRate int

	// InputText / OutputText are transcript deltas.
	InputText  string
	OutputText string

	// TurnComplete marks the speaker-turn boundary.
	TurnComplete bool

	// Err reports a session failure; the session is closed afterward.
	Err error
}

// LiveConn is an open live session. Events delivers inbound events until the
// session ends, then closes. Close is idempotent.
type LiveConn interface {
	Events() <-chan LiveEvent
	// SendAudio streams captured microphone audio to the model.
	SendAudio(pcm []byte) error
	Close() error
}
