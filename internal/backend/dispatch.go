// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/omnichat/omnichat-tui/internal/catalog"
)

// ============================================================================
// REGISTRY
// ============================================================================

// Registry maps provider identity to a backend implementation and routes
// dispatches. Backends are registered at startup and re-registered when a
// config reload changes credentials.
type Registry struct {
	mu       sync.RWMutex
	backends map[catalog.Provider]any
	limiter  *rate.Limiter
}

// NewRegistry creates an empty registry. Outbound calls are paced to avoid
// hammering a provider when the user resubmits rapidly after failures.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[catalog.Provider]any),
		limiter:  rate.NewLimiter(rate.Limit(2), 4),
	}
}

// Register installs a backend for a provider. The backend implements
// whichever capability interfaces the provider offers.
func (r *Registry) Register(p catalog.Provider, b any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[p] = b
}

// Backend returns the raw backend for a provider, or nil.
func (r *Registry) Backend(p catalog.Provider) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[p]
}

// ============================================================================
// DISPATCH
// ============================================================================

// Dispatch routes a request to the backend selected by req.Provider and
// invokes the capability selected by req.Mode. Exactly one field of the
// returned Response is set. The registry holds no conversation state, so
// the same request can be re-dispatched for a user-initiated retry.
func (r *Registry) Dispatch(ctx context.Context, req Request) (*Response, error) {
	r.mu.RLock()
	b, ok := r.backends[req.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	switch {
	case req.Mode == catalog.ModeLive:
		opener, ok := b.(LiveOpener)
		if !ok {
			return nil, &UnsupportedModeError{Provider: req.Provider, Mode: req.Mode}
		}
		conn, err := opener.OpenLive(ctx)
		if err != nil {
			return nil, err
		}
		return &Response{Live: conn}, nil

	case req.Mode.IsStreaming():
		streamer, ok := b.(ChatStreamer)
		if !ok {
			return nil, &UnsupportedModeError{Provider: req.Provider, Mode: req.Mode}
		}
		stream, err := streamer.StreamChat(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Response{Stream: stream}, nil

	case req.Mode == catalog.ModeImageGen || req.Mode == catalog.ModeArtisticGen:
		gen, ok := b.(ImageGenerator)
		if !ok {
			return nil, &UnsupportedModeError{Provider: req.Provider, Mode: req.Mode}
		}
		res, err := gen.GenerateImage(ctx, req.Prompt, req.Mode)
		if err != nil {
			return nil, err
		}
		return &Response{Immediate: res}, nil

	case req.Mode == catalog.ModeImageEdit:
		editor, ok := b.(ImageEditor)
		if !ok {
			return nil, &UnsupportedModeError{Provider: req.Provider, Mode: req.Mode}
		}
		if req.Attachment == nil {
			return nil, fmt.Errorf("image editing requires an attached image")
		}
		res, err := editor.EditImage(ctx, req.Prompt, ImageInput{
			MIMEType: req.Attachment.MIMEType,
			Data:     req.Attachment.Data,
		})
		if err != nil {
			return nil, err
		}
		return &Response{Immediate: res}, nil

	case req.Mode == catalog.ModeVideoUnderstand:
		analyzer, ok := b.(VideoAnalyzer)
		if !ok {
			return nil, &UnsupportedModeError{Provider: req.Provider, Mode: req.Mode}
		}
		res, err := analyzer.AnalyzeVideo(ctx, req.Prompt, req.Frames)
		if err != nil {
			return nil, err
		}
		return &Response{Immediate: res}, nil

	default:
		return nil, &UnsupportedModeError{Provider: req.Provider, Mode: req.Mode}
	}
}

// Speak synthesizes speech for a message via the provider's speech
// capability, outside the turn flow (message replay).
func (r *Registry) Speak(ctx context.Context, p catalog.Provider, text string) ([]byte, error) {
	r.mu.RLock()
	b, ok := r.backends[p]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	synth, ok := b.(SpeechSynthesizer)
	if !ok {
		return nil, &UnsupportedModeError{Provider: p, Mode: catalog.ModeLive}
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return synth.Speak(ctx, text)
}
