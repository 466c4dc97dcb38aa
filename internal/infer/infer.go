// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package infer decides which operational mode applies to the turn being
// composed, from the prompt text, any attached file, and the active
// provider's capability set.
//
// Inference is a pure function over its inputs. Keyword families are checked
// in priority order; the first family that matches AND whose mode the
// provider supports wins. When nothing matches, the user's last explicit
// mode choice stands.
package infer

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/media"
)

// ============================================================================
// KEYWORD FAMILIES
// ============================================================================

// editKeywords route an image attachment to editing instead of
// understanding when the prompt asks for a change.
var editKeywords = []string{"edit", "change", "add", "remove", "make", "turn", "apply"}

// imagePrefixes open prompts that ask for a generated image.
var imagePrefixes = []string{
	"image of", "picture of", "photo of", "drawing of", "illustration of",
	"logo for", "generate an image", "create an image", "draw a", "render a",
	"a painting of",
}

// imageInfixes match anywhere: "surreal painting of a cat" is an image
// request even though no generation verb opens the prompt.
var imageInfixes = []string{"painting of"}

// artisticKeywords refine image generation to the artistic model.
var artisticKeywords = []string{"artistic", "surreal", "abstract", "masterpiece", "creative interpretation"}

// searchPrefixes open prompts that need web grounding.
var searchPrefixes = []string{"search for", "what is the latest", "news about", "who won"}

// mapsKeywords appear anywhere in prompts about places.
var mapsKeywords = []string{"near me", "nearby", "find places", "directions to", "where is"}

// reasoningKeywords appear anywhere in prompts that want the reasoning model.
var reasoningKeywords = []string{
	"solve", "code for", "python script", "javascript function",
	"what are the implications", "debug this", "write a function",
}

// ============================================================================
// INFERENCE
// ============================================================================

// Infer returns the mode that should be active for the given composer state.
// lastSelected is the user's most recent explicit mode choice; it is the
// fallback whenever no rule fires.
func Infer(text string, attachment *media.Attachment, provider catalog.Provider, lastSelected catalog.Mode) catalog.Mode {
	prompt := normalize(text)

	// Empty composer reverts to the explicit choice.
	if prompt == "" && attachment == nil {
		return lastSelected
	}

	// Attachment presence beats every text rule.
	if attachment != nil {
		return inferForAttachment(prompt, attachment, provider, lastSelected)
	}

	if mode, ok := inferFromText(prompt, provider); ok {
		return mode
	}
	return lastSelected
}

// inferForAttachment applies the attachment rules: videos always go to video
// understanding; images go to editing when the prompt contains an edit verb,
// otherwise to understanding.
func inferForAttachment(prompt string, attachment *media.Attachment, provider catalog.Provider, lastSelected catalog.Mode) catalog.Mode {
	switch attachment.Kind {
	case media.KindVideo:
		if catalog.Supports(provider, catalog.ModeVideoUnderstand) {
			return catalog.ModeVideoUnderstand
		}
	case media.KindImage:
		if containsAny(prompt, editKeywords) && catalog.Supports(provider, catalog.ModeImageEdit) {
			return catalog.ModeImageEdit
		}
		if catalog.Supports(provider, catalog.ModeImageUnderstand) {
			return catalog.ModeImageUnderstand
		}
	}
	return lastSelected
}

// inferFromText walks the keyword families in priority order.
func inferFromText(prompt string, provider catalog.Provider) (catalog.Mode, bool) {
	if hasAnyPrefix(prompt, imagePrefixes) || containsAny(prompt, imageInfixes) {
		if containsAny(prompt, artisticKeywords) && catalog.Supports(provider, catalog.ModeArtisticGen) {
			return catalog.ModeArtisticGen, true
		}
		if catalog.Supports(provider, catalog.ModeImageGen) {
			return catalog.ModeImageGen, true
		}
		return 0, false
	}
	if hasAnyPrefix(prompt, searchPrefixes) && catalog.Supports(provider, catalog.ModeSearch) {
		return catalog.ModeSearch, true
	}
	if containsAny(prompt, mapsKeywords) && catalog.Supports(provider, catalog.ModeMaps) {
		return catalog.ModeMaps, true
	}
	if containsAny(prompt, reasoningKeywords) && catalog.Supports(provider, catalog.ModeReasoning) {
		return catalog.ModeReasoning, true
	}
	return 0, false
}

// ============================================================================
// HELPERS
// ============================================================================

// normalize lowercases and trims the prompt after NFC normalization so
// composed and decomposed input match the same keywords.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
