// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"fmt"
	"strings"
)

// ============================================================================
// PROVIDER TYPE
// ============================================================================

// Provider identifies which AI backend handles a request.
type Provider int

const (
	// ProviderDevice is the on-device model runtime (no network).
	ProviderDevice Provider = iota
	// ProviderLocalServer is a model server on the local network (Ollama API).
	ProviderLocalServer
	// ProviderGemini is the Google Gemini API.
	ProviderGemini
	// ProviderOpenAI is the OpenAI API.
	ProviderOpenAI
	// ProviderAnthropic is the Anthropic API.
	ProviderAnthropic
	// ProviderCohere is the Cohere API.
	ProviderCohere
	// ProviderFree is the anonymous free-model tier (on-device weights).
	ProviderFree
	// ProviderHuggingFace is the Hugging Face hosted inference tier.
	ProviderHuggingFace
)

// String returns the display name of the provider.
func (p Provider) String() string {
	switch p {
	case ProviderDevice:
		return "On-Device"
	case ProviderLocalServer:
		return "Local Server"
	case ProviderGemini:
		return "Gemini"
	case ProviderOpenAI:
		return "ChatGPT"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderCohere:
		return "Cohere"
	case ProviderFree:
		return "Free Models"
	case ProviderHuggingFace:
		return "Hugging Face"
	default:
		return fmt.Sprintf("Provider(%d)", p)
	}
}

// Key returns the stable lowercase identifier used in config files and the
// persistence layer.
func (p Provider) Key() string {
	switch p {
	case ProviderDevice:
		return "device"
	case ProviderLocalServer:
		return "localserver"
	case ProviderGemini:
		return "gemini"
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderCohere:
		return "cohere"
	case ProviderFree:
		return "free"
	case ProviderHuggingFace:
		return "huggingface"
	default:
		return "unknown"
	}
}

// IsOnDevice returns true for providers that run model weights in-process
// and need an initialization phase before the first turn.
func (p Provider) IsOnDevice() bool {
	return p == ProviderDevice || p == ProviderFree
}

// ParseProvider resolves a config/CLI identifier to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "device", "on-device", "local":
		return ProviderDevice, nil
	case "localserver", "ollama":
		return ProviderLocalServer, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "openai", "chatgpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "cohere":
		return ProviderCohere, nil
	case "free":
		return ProviderFree, nil
	case "huggingface", "hf":
		return ProviderHuggingFace, nil
	default:
		return ProviderDevice, fmt.Errorf("unknown provider %q", s)
	}
}

// Providers returns every provider in selector order.
func Providers() []Provider {
	return []Provider{
		ProviderGemini,
		ProviderOpenAI,
		ProviderAnthropic,
		ProviderCohere,
		ProviderHuggingFace,
		ProviderLocalServer,
		ProviderDevice,
		ProviderFree,
	}
}

// ============================================================================
// CAPABILITY TABLE
// ============================================================================

// ModeEntry pairs a supported mode with its suggested prompts.
type ModeEntry struct {
	Mode    Mode
	Prompts []string
}

// providerModes is the static capability table. Order matters: it drives the
// mode selector layout and the inference fallback order.
var providerModes = map[Provider][]ModeEntry{
	ProviderGemini: {
		{ModeChat, []string{
			"Tell me a story about a robot who learns to paint",
			"What are three interesting facts about the deep sea?",
		}},
		{ModeReasoning, []string{
			"Write a function that merges two sorted lists",
			"Solve this step by step: if a train leaves at 3pm...",
		}},
		{ModeImageGen, []string{
			"A photo of a lighthouse at dawn, volumetric light",
			"Draw a city skyline made of circuit boards",
		}},
		{ModeArtisticGen, []string{
			"Surreal painting of a clock melting over a forest",
			"Abstract interpretation of the sound of rain",
		}},
		{ModeImageEdit, []string{
			"Change the background to a sunset",
			"Remove the people from this photo",
		}},
		{ModeImageUnderstand, []string{
			"What is happening in this picture?",
			"Describe the architecture in this photo",
		}},
		{ModeVideoUnderstand, []string{
			"Summarize what happens in this clip",
			"What sport is being played here?",
		}},
		{ModeLive, []string{
			"Start a voice conversation",
		}},
		{ModeSearch, []string{
			"Search for the latest developments in fusion energy",
			"Who won the most recent world chess championship?",
		}},
		{ModeMaps, []string{
			"Find coffee shops near me",
			"Directions to the closest train station",
		}},
	},
	ProviderOpenAI: {
		{ModeChat, []string{
			"Explain quantum entanglement like I'm twelve",
			"Draft a friendly reminder email about an overdue invoice",
		}},
		{ModeReasoning, []string{
			"Debug this recursive function that overflows the stack",
			"What are the implications of quantum computing for RSA?",
		}},
		{ModeImageGen, []string{
			"Picture of a cottage on a floating island",
			"Logo for a bicycle courier company",
		}},
		{ModeImageUnderstand, []string{
			"What breed of dog is in this photo?",
		}},
	},
	ProviderAnthropic: {
		{ModeChat, []string{
			"Compare the plot structures of two classic novels",
			"Help me plan a week of vegetarian dinners",
		}},
		{ModeReasoning, []string{
			"Write a function to detect cycles in a linked list",
			"Walk through the trade-offs of eventual consistency",
		}},
	},
	ProviderCohere: {
		{ModeChat, []string{
			"Summarize the key points of the attached article",
			"Brainstorm names for a hiking club",
		}},
		{ModeSearch, []string{
			"Search for recent news about semiconductor supply chains",
		}},
	},
	ProviderLocalServer: {
		{ModeChat, []string{
			"Write a haiku about off-grid computing",
			"What can you tell me about yourself?",
		}},
		{ModeReasoning, []string{
			"Write a function that reverses a string in place",
		}},
	},
	ProviderDevice: {
		{ModeChat, []string{
			"Tell me a joke about browsers",
			"What is the capital of Australia?",
		}},
	},
	ProviderFree: {
		{ModeChat, []string{
			"Write a limerick about free software",
		}},
	},
	ProviderHuggingFace: {
		{ModeChat, []string{
			"Explain how transformers process a sentence",
		}},
		{ModeImageGen, []string{
			"Illustration of a fox reading a newspaper",
		}},
	},
}

// Modes returns the ordered modes supported by a provider.
func Modes(p Provider) []Mode {
	entries := providerModes[p]
	modes := make([]Mode, 0, len(entries))
	for _, e := range entries {
		modes = append(modes, e.Mode)
	}
	return modes
}

// Supports reports whether a provider supports a mode.
func Supports(p Provider, m Mode) bool {
	for _, e := range providerModes[p] {
		if e.Mode == m {
			return true
		}
	}
	return false
}

// Prompts returns the suggested prompts for a provider/mode pair. Falls back
// to the provider's first mode when the mode is unsupported, mirroring the
// prompt library behavior.
func Prompts(p Provider, m Mode) []string {
	entries := providerModes[p]
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Mode == m {
			return e.Prompts
		}
	}
	return entries[0].Prompts
}

// DefaultMode returns the provider's first supported mode.
func DefaultMode(p Provider) Mode {
	modes := Modes(p)
	if len(modes) == 0 {
		return ModeChat
	}
	return modes[0]
}
