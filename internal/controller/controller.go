// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller orchestrates a turn end to end: composer state, mode
// inference, backend dispatch, and conversation transitions. The UI layers
// (TUI and plain REPL) drive it through a small method surface and observe
// it through callbacks; the controller itself renders nothing.
package controller

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/backend/device"
	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/convo"
	"github.com/omnichat/omnichat-tui/internal/infer"
	"github.com/omnichat/omnichat-tui/internal/live"
	"github.com/omnichat/omnichat-tui/internal/media"
	"github.com/omnichat/omnichat-tui/internal/storage"
)

// =============================================================================
// HANDLERS
// =============================================================================

// Handlers receive controller notifications. All callbacks may fire from
// background goroutines; implementations hand off to their own loop.
type Handlers struct {
	// OnChange fires when the conversation log or composer state changed.
	OnChange func()
	// OnModeChange fires when inference switches the effective mode.
	OnModeChange func(catalog.Mode)
	// OnCredentialError fires when a dispatch failed because the provider's
	// key is missing or rejected, so the UI can prompt for re-entry.
	OnCredentialError func(catalog.Provider)
}

// Locator supplies an optional location hint for maps-grounded chat.
type Locator interface {
	Locate() (backend.Location, bool)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the composer and drives turns through the dispatch
// registry into the reducer. At most one turn is in flight; Submit during a
// turn is a no-op. There is no mid-stream cancellation: Reset abandons the
// conversation without stopping in-flight work, whose transitions then land
// on a missing message and are discarded.
type Controller struct {
	mu sync.Mutex

	registry *backend.Registry
	reducer  *convo.Reducer
	sessions *storage.SessionStore
	handlers Handlers

	// Composer state.
	prompt     string
	attachment *media.Attachment
	settings   backend.Settings

	provider catalog.Provider
	// effective mode vs the user's last explicit pick; inference falls back
	// to the explicit pick when no rule fires.
	mode     catalog.Mode
	userMode catalog.Mode

	busy bool

	debouncer *infer.Debouncer
	engine    *device.Engine
	extractor media.FrameExtractor
	locator   Locator

	// Live conversation, exclusive with turn dispatch while active.
	liveSession *live.Session
	sink        live.Sink
}

// Option configures optional controller collaborators.
type Option func(*Controller)

// WithEngine wires the on-device runtime so its init gate can hold Submit.
func WithEngine(e *device.Engine) Option {
	return func(c *Controller) { c.engine = e }
}

// WithFrameExtractor wires video frame extraction for video understanding.
func WithFrameExtractor(ex media.FrameExtractor) Option {
	return func(c *Controller) { c.extractor = ex }
}

// WithLocator wires the location hint source for maps mode.
func WithLocator(l Locator) Option {
	return func(c *Controller) { c.locator = l }
}

// WithAudioSink wires the playback device for live conversation.
func WithAudioSink(s live.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// New creates a controller for the given provider.
func New(registry *backend.Registry, reducer *convo.Reducer, sessions *storage.SessionStore, provider catalog.Provider, handlers Handlers, opts ...Option) *Controller {
	c := &Controller{
		registry:  registry,
		reducer:   reducer,
		sessions:  sessions,
		handlers:  handlers,
		provider:  provider,
		mode:      catalog.DefaultMode(provider),
		userMode:  catalog.DefaultMode(provider),
		debouncer: infer.NewDebouncer(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// COMPOSER STATE
// =============================================================================

// SetPrompt updates the composer text and schedules a debounced mode
// re-inference. Each keystroke supersedes the previous pending evaluation.
func (c *Controller) SetPrompt(text string) {
	c.mu.Lock()
	c.prompt = text
	liveActive := c.liveSession != nil
	c.mu.Unlock()

	// Inference stays quiet during live conversation; the composer is not
	// dispatching turns then.
	if !liveActive {
		c.debouncer.Schedule(c.evaluateMode)
	}
}

// Prompt returns the current composer text.
func (c *Controller) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// SelectMode records an explicit mode choice. Explicit choices win until a
// later inference rule fires.
func (c *Controller) SelectMode(m catalog.Mode) {
	c.mu.Lock()
	c.mode = m
	c.userMode = m
	c.mu.Unlock()
	c.notifyChange()
}

// Mode returns the effective mode for the turn being composed.
func (c *Controller) Mode() catalog.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Provider returns the active provider.
func (c *Controller) Provider() catalog.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

// SetProvider switches the active provider. A mode the new provider does not
// support falls back to its default mode.
func (c *Controller) SetProvider(p catalog.Provider) {
	c.mu.Lock()
	c.provider = p
	if !catalog.Supports(p, c.mode) {
		c.mode = catalog.DefaultMode(p)
		c.userMode = c.mode
	}
	c.mu.Unlock()
	c.notifyChange()
}

// SetSettings updates the sampling knobs passed to on-device and local
// generation.
func (c *Controller) SetSettings(s backend.Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// Attach replaces the composer attachment, releasing any previous one, and
// re-infers the mode immediately: an upload is a deliberate act, not a
// keystroke.
func (c *Controller) Attach(a *media.Attachment) {
	c.mu.Lock()
	prev := c.attachment
	c.attachment = a
	c.mu.Unlock()

	prev.Release()
	c.evaluateMode()
}

// Attachment returns the current composer attachment, or nil.
func (c *Controller) Attachment() *media.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// ClearAttachment releases the composer attachment and re-infers.
func (c *Controller) ClearAttachment() {
	c.mu.Lock()
	prev := c.attachment
	c.attachment = nil
	c.mu.Unlock()

	prev.Release()
	c.evaluateMode()
}

// Messages returns the conversation log for rendering.
func (c *Controller) Messages() []*convo.Message {
	return c.reducer.Messages()
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// DeviceInitializing reports whether the active provider runs on-device and
// its engine has not finished loading weights yet.
func (c *Controller) DeviceInitializing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider.IsOnDevice() && c.engine != nil && !c.engine.Ready()
}

// evaluateMode runs inference over the current composer state and applies
// the result.
func (c *Controller) evaluateMode() {
	c.mu.Lock()
	inferred := infer.Infer(c.prompt, c.attachment, c.provider, c.userMode)
	changed := inferred != c.mode
	c.mode = inferred
	c.mu.Unlock()

	if changed {
		if c.handlers.OnModeChange != nil {
			c.handlers.OnModeChange(inferred)
		}
		c.notifyChange()
	}
}

// =============================================================================
// TURN SUBMISSION
// =============================================================================

// Submit dispatches the composed turn. It is a no-op while a turn is in
// flight, while a live session is active, while the composer is empty, and
// while the on-device runtime is still initializing.
func (c *Controller) Submit(ctx context.Context) {
	c.debouncer.Stop()
	// Apply any inference the debounce would have delivered; the submitted
	// turn uses the mode the full prompt implies.
	c.evaluateMode()

	c.mu.Lock()
	if c.busy || c.liveSession != nil {
		c.mu.Unlock()
		return
	}
	prompt := strings.TrimSpace(c.prompt)
	att := c.attachment
	if prompt == "" && att == nil {
		c.mu.Unlock()
		return
	}
	if c.provider.IsOnDevice() && c.engine != nil && !c.engine.Ready() {
		c.mu.Unlock()
		return
	}
	provider, mode, settings := c.provider, c.mode, c.settings
	c.mu.Unlock()

	// History is captured before the new turn is appended.
	history := wireHistory(c.reducer.History())

	turn := convo.UserTurn{Text: prompt}
	if att != nil {
		turn.Base64Data = att.Data
		turn.MIMEType = att.MIMEType
	}
	modelID, err := c.reducer.BeginTurn(turn)
	if err != nil {
		// A non-terminal message still exists; the reducer already enforces
		// single-flight.
		return
	}

	c.mu.Lock()
	c.busy = true
	c.prompt = ""
	c.attachment = nil
	c.mu.Unlock()
	c.notifyChange()

	req := backend.Request{
		Provider: provider,
		Mode:     mode,
		Prompt:   prompt,
		History:  history,
		Settings: &settings,
	}
	if att != nil && att.Kind == media.KindImage {
		req.Attachment = att
	}
	if mode == catalog.ModeMaps && c.locator != nil {
		if loc, ok := c.locator.Locate(); ok {
			req.Location = &loc
		}
	}

	go c.run(ctx, modelID, req, att)
}

// run executes one dispatched turn to its terminal transition.
func (c *Controller) run(ctx context.Context, modelID string, req backend.Request, att *media.Attachment) {
	defer c.settle(att)

	if req.Mode == catalog.ModeVideoUnderstand {
		if c.extractor == nil || att == nil {
			c.fail(modelID, req.Provider, media.ErrNoFrames)
			return
		}
		frames, err := media.ExtractSampled(ctx, c.extractor, att)
		if err != nil {
			c.fail(modelID, req.Provider, err)
			return
		}
		req.Frames = frames
	}

	resp, err := c.registry.Dispatch(ctx, req)
	if err != nil {
		c.fail(modelID, req.Provider, err)
		return
	}

	switch {
	case resp.Stream != nil:
		c.drainStream(modelID, req.Provider, resp.Stream)
	case resp.Immediate != nil:
		c.reducer.FinishImmediate(modelID, convo.ImmediateResult{
			Text:     resp.Immediate.Text,
			ImageURL: resp.Immediate.ImageURL,
			Links:    convoLinks(resp.Immediate.Links),
		})
		c.notifyChange()
	default:
		c.fail(modelID, req.Provider, errors.New("backend returned an empty response"))
	}
}

// drainStream applies a chunk stream to the model message in arrival order.
func (c *Controller) drainStream(modelID string, provider catalog.Provider, stream <-chan backend.Chunk) {
	first := true
	for chunk := range stream {
		if chunk.Err != nil {
			c.fail(modelID, provider, chunk.Err)
			// The channel closes after an error chunk; drain defensively.
			for range stream {
			}
			return
		}
		links := convoLinks(chunk.Links)
		if first {
			c.reducer.FirstChunk(modelID, chunk.TextDelta, links)
			first = false
		} else {
			c.reducer.AppendChunk(modelID, chunk.TextDelta, links)
		}
		c.notifyChange()
	}

	if first {
		// Stream closed without a single chunk.
		c.fail(modelID, provider, errors.New("the model returned an empty response"))
		return
	}
	c.reducer.FinishStream(modelID)
	c.notifyChange()
}

// fail settles the model message as a terminal error with a human-readable
// explanation. Every dispatch failure lands here; nothing propagates uncaught.
func (c *Controller) fail(modelID string, provider catalog.Provider, err error) {
	c.reducer.Fail(modelID, friendlyMessage(provider, err))
	if backend.IsCredentialError(err) && c.handlers.OnCredentialError != nil {
		c.handlers.OnCredentialError(provider)
	}
	c.notifyChange()
}

// settle ends the turn: the busy token clears and the attachment that rode
// the turn is released on every path.
func (c *Controller) settle(att *media.Attachment) {
	att.Release()
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
	c.notifyChange()
}

// friendlyMessage converts a dispatch error into the text the log records.
func friendlyMessage(provider catalog.Provider, err error) string {
	switch {
	case backend.IsCredentialError(err):
		return "Your " + provider.String() + " API key is missing or was rejected. Update it in settings and try again."
	case errors.Is(err, backend.ErrRateLimited):
		return provider.String() + " is rate limiting requests. Wait a moment and try again."
	case errors.Is(err, device.ErrInitializing):
		return "The on-device model is still initializing. Try again in a moment."
	default:
		var unsupported *backend.UnsupportedModeError
		if errors.As(err, &unsupported) {
			return unsupported.Error() + "."
		}
		return "Something went wrong: " + err.Error()
	}
}

// =============================================================================
// SPEECH REPLAY
// =============================================================================

// PlayTTS synthesizes speech for a terminal message and returns the audio
// file path. The synthesized audio is cached on the message, so replays
// reuse it instead of calling the provider again.
func (c *Controller) PlayTTS(ctx context.Context, messageID string) (string, error) {
	msg := c.reducer.Get(messageID)
	if msg == nil {
		return "", convo.ErrNoSuchMessage
	}
	if msg.AudioURL != "" {
		return msg.AudioURL, nil
	}
	text := msg.DisplayText()
	if text == "" {
		return "", errors.New("nothing to speak")
	}

	pcm, err := c.registry.Speak(ctx, c.Provider(), text)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "omnichat-tts-*.pcm")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(pcm); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	msg.OwnHandle(media.HandleFor(f.Name()))
	c.reducer.SetAudio(messageID, f.Name())
	return f.Name(), nil
}

// =============================================================================
// LIVE CONVERSATION
// =============================================================================

// ErrLiveUnsupported is returned by StartLive for providers without live
// capability.
var ErrLiveUnsupported = errors.New("live conversation is not supported by this provider")

// StartLive opens a live voice session on the active provider. Completed
// turns land in the conversation log as user/model pairs.
func (c *Controller) StartLive(ctx context.Context) error {
	c.mu.Lock()
	if c.liveSession != nil {
		c.mu.Unlock()
		return live.ErrNotIdle
	}
	provider := c.provider
	if !catalog.Supports(provider, catalog.ModeLive) {
		c.mu.Unlock()
		return ErrLiveUnsupported
	}
	opener, ok := c.registry.Backend(provider).(backend.LiveOpener)
	if !ok {
		c.mu.Unlock()
		return ErrLiveUnsupported
	}

	session := live.NewSession(c.sink, live.Handlers{
		OnTurn: func(user, model string) {
			c.reducer.AppendPair(user, model)
			c.notifyChange()
		},
		OnClosed: func() {
			c.mu.Lock()
			c.liveSession = nil
			c.mu.Unlock()
			c.notifyChange()
		},
	})
	c.liveSession = session
	c.mu.Unlock()

	if err := session.Connect(ctx, opener); err != nil {
		c.mu.Lock()
		c.liveSession = nil
		c.mu.Unlock()
		return err
	}

	// A live conversation starts from a clean log; completed voice turns are
	// the only entries while it runs.
	c.reducer.Reset()
	c.notifyChange()
	return nil
}

// SendLiveAudio forwards captured microphone audio to the live session.
// Dropped silently when no session is active.
func (c *Controller) SendLiveAudio(pcm []byte) {
	c.mu.Lock()
	session := c.liveSession
	c.mu.Unlock()
	if session != nil {
		session.SendAudio(pcm)
	}
}

// StopLive ends the live session. Idempotent.
func (c *Controller) StopLive() {
	c.mu.Lock()
	session := c.liveSession
	c.mu.Unlock()
	if session != nil {
		session.Disconnect()
	}
}

// LiveActive reports whether a live session is open.
func (c *Controller) LiveActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveSession != nil
}

// =============================================================================
// SESSION PERSISTENCE
// =============================================================================

// SaveSession snapshots the current conversation.
func (c *Controller) SaveSession() (*storage.SavedSession, error) {
	c.mu.Lock()
	provider, mode := c.provider, c.mode
	c.mu.Unlock()
	return c.sessions.Save(provider, mode, c.reducer.Messages())
}

// Sessions lists saved sessions, newest first.
func (c *Controller) Sessions() []storage.SavedSession {
	return c.sessions.List()
}

// LoadSession replaces the conversation log with a saved snapshot and
// restores its provider and mode.
func (c *Controller) LoadSession(id string) error {
	sess, err := c.sessions.Load(id)
	if err != nil {
		return err
	}

	c.reducer.Replace(sess.Restore())

	c.mu.Lock()
	c.provider = sess.ProviderValue()
	c.mode = sess.ModeValue()
	c.userMode = c.mode
	c.busy = false
	c.mu.Unlock()

	c.notifyChange()
	return nil
}

// DeleteSession removes a saved session.
func (c *Controller) DeleteSession(id string) error {
	return c.sessions.Delete(id)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Reset clears the conversation and the composer. In-flight work keeps
// running; its transitions land on missing messages and are discarded.
func (c *Controller) Reset() {
	c.debouncer.Stop()

	c.mu.Lock()
	att := c.attachment
	c.attachment = nil
	c.prompt = ""
	c.busy = false
	c.mu.Unlock()

	att.Release()
	c.reducer.Reset()
	c.notifyChange()
}

// Teardown releases every owned resource. The controller must not be used
// afterward.
func (c *Controller) Teardown() {
	c.debouncer.Stop()
	c.StopLive()

	c.mu.Lock()
	att := c.attachment
	c.attachment = nil
	c.mu.Unlock()

	att.Release()
	c.reducer.Teardown()
}

// notifyChange fires OnChange outside the lock.
func (c *Controller) notifyChange() {
	if c.handlers.OnChange != nil {
		c.handlers.OnChange()
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// wireHistory converts terminal log messages to backend wire form.
func wireHistory(msgs []*convo.Message) []backend.TurnMessage {
	out := make([]backend.TurnMessage, 0, len(msgs))
	for _, m := range msgs {
		tm := backend.TurnMessage{
			Role: string(m.Role),
			Text: m.Text,
		}
		if m.Base64Data != "" {
			tm.ImageData = m.Base64Data
			tm.MIMEType = m.MIMEType
		}
		out = append(out, tm)
	}
	return out
}

func convoLinks(links []backend.Link) []convo.Link {
	if len(links) == 0 {
		return nil
	}
	out := make([]convo.Link, len(links))
	for i, l := range links {
		out[i] = convo.Link{URI: l.URI, Title: l.Title}
	}
	return out
}
