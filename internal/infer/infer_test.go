// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package infer

import (
	"testing"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/media"
)

func imageAttachment() *media.Attachment {
	return &media.Attachment{Name: "photo.png", Kind: media.KindImage, MIMEType: "image/png"}
}

func videoAttachment() *media.Attachment {
	return &media.Attachment{Name: "clip.mp4", Kind: media.KindVideo, MIMEType: "video/mp4"}
}

func TestInferTextFamilies(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		provider catalog.Provider
		last     catalog.Mode
		want     catalog.Mode
	}{
		{
			name:     "image prefix without artistic qualifier",
			text:     "draw a cat wearing a hat",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeImageGen,
		},
		{
			name:     "artistic qualifier refines image generation",
			text:     "a painting of a cat, surreal style",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeArtisticGen,
		},
		{
			name:     "painting-of matches mid-prompt",
			text:     "surreal painting of a cat",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeArtisticGen,
		},
		{
			name:     "search prefix",
			text:     "search for the latest go release",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeSearch,
		},
		{
			name:     "maps keyword anywhere",
			text:     "good ramen near me please",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeMaps,
		},
		{
			name:     "reasoning keyword",
			text:     "please debug this panic in my server",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeReasoning,
		},
		{
			name:     "no match reverts to last selection",
			text:     "tell me about whales",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeSearch,
			want:     catalog.ModeSearch,
		},
		{
			name:     "empty input reverts to last selection",
			text:     "   ",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeReasoning,
			want:     catalog.ModeReasoning,
		},
		{
			name:     "unsupported mode falls through to last selection",
			text:     "draw a cat wearing a hat",
			provider: catalog.ProviderAnthropic, // no image generation
			last:     catalog.ModeChat,
			want:     catalog.ModeChat,
		},
		{
			name:     "search unsupported falls back to last",
			text:     "search for rain forecasts",
			provider: catalog.ProviderOpenAI,
			last:     catalog.ModeChat,
			want:     catalog.ModeChat,
		},
		{
			name:     "image prefix must be a prefix",
			text:     "I would like a picture of a dog",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeChat,
		},
		{
			name:     "case insensitive",
			text:     "DRAW A dragon",
			provider: catalog.ProviderGemini,
			last:     catalog.ModeChat,
			want:     catalog.ModeImageGen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Infer(tt.text, nil, tt.provider, tt.last)
			if got != tt.want {
				t.Errorf("Infer(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestInferAttachmentRules(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		attachment *media.Attachment
		provider   catalog.Provider
		last       catalog.Mode
		want       catalog.Mode
	}{
		{
			name:       "image with edit verb",
			text:       "edit the background to be blue",
			attachment: imageAttachment(),
			provider:   catalog.ProviderGemini,
			last:       catalog.ModeChat,
			want:       catalog.ModeImageEdit,
		},
		{
			name:       "image without edit verb",
			text:       "what is in this photo?",
			attachment: imageAttachment(),
			provider:   catalog.ProviderGemini,
			last:       catalog.ModeChat,
			want:       catalog.ModeImageUnderstand,
		},
		{
			name:       "image with no prompt at all",
			text:       "",
			attachment: imageAttachment(),
			provider:   catalog.ProviderGemini,
			last:       catalog.ModeChat,
			want:       catalog.ModeImageUnderstand,
		},
		{
			name:       "video always routes to video understanding",
			text:       "draw a cat", // attachment beats text keywords
			attachment: videoAttachment(),
			provider:   catalog.ProviderGemini,
			last:       catalog.ModeChat,
			want:       catalog.ModeVideoUnderstand,
		},
		{
			name:       "edit verb but provider lacks editing",
			text:       "remove the car",
			attachment: imageAttachment(),
			provider:   catalog.ProviderOpenAI, // understanding only
			last:       catalog.ModeChat,
			want:       catalog.ModeImageUnderstand,
		},
		{
			name:       "provider supports neither falls back",
			text:       "describe this",
			attachment: imageAttachment(),
			provider:   catalog.ProviderAnthropic,
			last:       catalog.ModeReasoning,
			want:       catalog.ModeReasoning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Infer(tt.text, tt.attachment, tt.provider, tt.last)
			if got != tt.want {
				t.Errorf("Infer(%q, %s) = %s, want %s", tt.text, tt.attachment.Kind, got, tt.want)
			}
		})
	}
}

func TestInferIsPure(t *testing.T) {
	// Same inputs, same output, every time.
	for i := 0; i < 100; i++ {
		got := Infer("draw a cat wearing a hat", nil, catalog.ProviderGemini, catalog.ModeChat)
		if got != catalog.ModeImageGen {
			t.Fatalf("iteration %d: got %s", i, got)
		}
	}
}
