// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog defines the providers and operational modes of omnichat,
// and the static capability table mapping each provider to the ordered set
// of modes it supports.
//
// The catalog is pure data. Mode selection logic lives in internal/infer,
// backend routing in internal/backend.
package catalog

import "fmt"

// ============================================================================
// MODE TYPE
// ============================================================================

// Mode represents the task category governing which backend capability is
// invoked for a user turn.
type Mode int

const (
	// ModeChat is plain conversational chat.
	ModeChat Mode = iota
	// ModeReasoning is chat tuned for multi-step problem solving and code.
	ModeReasoning
	// ModeImageGen generates an image from a text prompt.
	ModeImageGen
	// ModeArtisticGen generates an image with an artistic/stylized model.
	ModeArtisticGen
	// ModeImageEdit edits an uploaded image according to the prompt.
	ModeImageEdit
	// ModeImageUnderstand answers questions about an uploaded image.
	ModeImageUnderstand
	// ModeVideoUnderstand answers questions about an uploaded video.
	ModeVideoUnderstand
	// ModeLive is a bidirectional low-latency voice conversation.
	ModeLive
	// ModeSearch is chat grounded in web search results.
	ModeSearch
	// ModeMaps is chat grounded in place/location search.
	ModeMaps
)

// String returns the display name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeChat:
		return "Chat"
	case ModeReasoning:
		return "Advanced Reasoning"
	case ModeImageGen:
		return "Image Generation"
	case ModeArtisticGen:
		return "Artistic Generation"
	case ModeImageEdit:
		return "Image Editing"
	case ModeImageUnderstand:
		return "Image Understanding"
	case ModeVideoUnderstand:
		return "Video Understanding"
	case ModeLive:
		return "Live Conversation"
	case ModeSearch:
		return "Web Search"
	case ModeMaps:
		return "Maps Search"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Key returns the stable lowercase identifier used in config files and the
// persistence layer.
func (m Mode) Key() string {
	switch m {
	case ModeChat:
		return "chat"
	case ModeReasoning:
		return "reasoning"
	case ModeImageGen:
		return "imagegen"
	case ModeArtisticGen:
		return "artisticgen"
	case ModeImageEdit:
		return "imageedit"
	case ModeImageUnderstand:
		return "imageunderstand"
	case ModeVideoUnderstand:
		return "videounderstand"
	case ModeLive:
		return "live"
	case ModeSearch:
		return "search"
	case ModeMaps:
		return "maps"
	default:
		return "unknown"
	}
}

// ParseMode resolves a persistence/config identifier to a Mode.
func ParseMode(s string) (Mode, error) {
	for m := ModeChat; m <= ModeMaps; m++ {
		if m.Key() == s {
			return m, nil
		}
	}
	return ModeChat, fmt.Errorf("unknown mode %q", s)
}

// IsStreaming returns true for the chat-family modes whose responses arrive
// as an incremental token stream rather than a single value. Image
// understanding rides the chat path with the attachment carried in history.
func (m Mode) IsStreaming() bool {
	switch m {
	case ModeChat, ModeReasoning, ModeSearch, ModeMaps, ModeImageUnderstand:
		return true
	default:
		return false
	}
}

// IsImmediate returns true for modes whose responses arrive as one value.
func (m Mode) IsImmediate() bool {
	switch m {
	case ModeImageGen, ModeArtisticGen, ModeImageEdit, ModeVideoUnderstand:
		return true
	default:
		return false
	}
}

// NeedsAttachment returns true for modes that only make sense with an
// uploaded file.
func (m Mode) NeedsAttachment() bool {
	switch m {
	case ModeImageEdit, ModeImageUnderstand, ModeVideoUnderstand:
		return true
	default:
		return false
	}
}
