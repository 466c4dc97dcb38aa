// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/media"
)

// fakeChat implements ChatStreamer only.
type fakeChat struct {
	lastReq Request
}

func (f *fakeChat) StreamChat(_ context.Context, req Request) (<-chan Chunk, error) {
	f.lastReq = req
	ch := make(chan Chunk, 2)
	ch <- Chunk{TextDelta: "hello"}
	ch <- Chunk{TextDelta: " world"}
	close(ch)
	return ch, nil
}

// fakeFull implements every capability.
type fakeFull struct {
	fakeChat
	genMode catalog.Mode
	edited  ImageInput
	frames  int
}

func (f *fakeFull) GenerateImage(_ context.Context, prompt string, mode catalog.Mode) (*Result, error) {
	f.genMode = mode
	return &Result{ImageURL: "/tmp/out.png"}, nil
}

func (f *fakeFull) EditImage(_ context.Context, prompt string, image ImageInput) (*Result, error) {
	f.edited = image
	return &Result{ImageURL: "/tmp/edited.png"}, nil
}

func (f *fakeFull) AnalyzeVideo(_ context.Context, prompt string, frames []media.Frame) (*Result, error) {
	f.frames = len(frames)
	return &Result{Text: "a video"}, nil
}

func (f *fakeFull) Speak(_ context.Context, text string) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}

func (f *fakeFull) OpenLive(_ context.Context) (LiveConn, error) {
	return &fakeLiveConn{events: make(chan LiveEvent)}, nil
}

type fakeLiveConn struct {
	events chan LiveEvent
	closed bool
}

func (c *fakeLiveConn) Events() <-chan LiveEvent { return c.events }
func (c *fakeLiveConn) SendAudio([]byte) error   { return nil }
func (c *fakeLiveConn) Close() error             { c.closed = true; return nil }

func drain(t *testing.T, stream <-chan Chunk) string {
	t.Helper()
	var out string
	for ch := range stream {
		if ch.Err != nil {
			t.Fatalf("unexpected stream error: %v", ch.Err)
		}
		out += ch.TextDelta
	}
	return out
}

func TestDispatchUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), Request{
		Provider: catalog.ProviderGemini,
		Mode:     catalog.ModeChat,
	})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("want ErrUnknownProvider, got %v", err)
	}
}

func TestDispatchStreamingModes(t *testing.T) {
	fake := &fakeChat{}
	r := NewRegistry()
	r.Register(catalog.ProviderGemini, fake)

	for _, mode := range []catalog.Mode{
		catalog.ModeChat,
		catalog.ModeReasoning,
		catalog.ModeSearch,
		catalog.ModeMaps,
		catalog.ModeImageUnderstand,
	} {
		resp, err := r.Dispatch(context.Background(), Request{
			Provider: catalog.ProviderGemini,
			Mode:     mode,
			Prompt:   "hi",
		})
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if resp.Stream == nil || resp.Immediate != nil || resp.Live != nil {
			t.Fatalf("%s: want only Stream set", mode)
		}
		if got := drain(t, resp.Stream); got != "hello world" {
			t.Fatalf("%s: stream text = %q", mode, got)
		}
	}
}

func TestDispatchImageGeneration(t *testing.T) {
	fake := &fakeFull{}
	r := NewRegistry()
	r.Register(catalog.ProviderGemini, fake)

	resp, err := r.Dispatch(context.Background(), Request{
		Provider: catalog.ProviderGemini,
		Mode:     catalog.ModeArtisticGen,
		Prompt:   "a painting of a cat",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Immediate == nil || resp.Stream != nil || resp.Live != nil {
		t.Fatal("want only Immediate set")
	}
	if resp.Immediate.ImageURL == "" {
		t.Fatal("want image URL")
	}
	if fake.genMode != catalog.ModeArtisticGen {
		t.Fatalf("mode not forwarded, got %s", fake.genMode)
	}
}

func TestDispatchImageEditRequiresAttachment(t *testing.T) {
	fake := &fakeFull{}
	r := NewRegistry()
	r.Register(catalog.ProviderGemini, fake)

	_, err := r.Dispatch(context.Background(), Request{
		Provider: catalog.ProviderGemini,
		Mode:     catalog.ModeImageEdit,
		Prompt:   "make it blue",
	})
	if err == nil {
		t.Fatal("want error without attachment")
	}

	resp, err := r.Dispatch(context.Background(), Request{
		Provider: catalog.ProviderGemini,
		Mode:     catalog.ModeImageEdit,
		Prompt:   "make it blue",
		Attachment: &media.Attachment{
			MIMEType: "image/png",
			Data:     "aGk=",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Immediate == nil {
		t.Fatal("want Immediate result")
	}
	if fake.edited.MIMEType != "image/png" || fake.edited.Data != "aGk=" {
		t.Fatalf("attachment not forwarded: %+v", fake.edited)
	}
}

func TestDispatchVideoAnalysis(t *testing.T) {
	fake := &fakeFull{}
	r := NewRegistry()
	r.Register(catalog.ProviderGemini, fake)

	resp, err := r.Dispatch(context.Background(), Request{
		Provider: catalog.ProviderGemini,
		Mode:     catalog.ModeVideoUnderstand,
		Prompt:   "what happens here",
		Frames:   []media.Frame{{MIMEType: "image/jpeg"}, {MIMEType: "image/jpeg"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Immediate == nil || resp.Immediate.Text != "a video" {
		t.Fatalf("unexpected result: %+v", resp.Immediate)
	}
	if fake.frames != 2 {
		t.Fatalf("frames not forwarded, got %d", fake.frames)
	}
}

func TestDispatchLive(t *testing.T) {
	fake := &fakeFull{}
	r := NewRegistry()
	r.Register(catalog.ProviderGemini, fake)

	resp, err := r.Dispatch(context.Background(), Request{
		Provider: catalog.ProviderGemini,
		Mode:     catalog.ModeLive,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Live == nil || resp.Stream != nil || resp.Immediate != nil {
		t.Fatal("want only Live set")
	}
	if err := resp.Live.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchUnsupportedMode(t *testing.T) {
	// A chat-only backend asked for image generation must fail loudly,
	// never silently fall back to chat.
	r := NewRegistry()
	r.Register(catalog.ProviderAnthropic, &fakeChat{})

	_, err := r.Dispatch(context.Background(), Request{
		Provider: catalog.ProviderAnthropic,
		Mode:     catalog.ModeImageGen,
		Prompt:   "draw a cat",
	})
	var unsup *UnsupportedModeError
	if !errors.As(err, &unsup) {
		t.Fatalf("want UnsupportedModeError, got %v", err)
	}
	if unsup.Provider != catalog.ProviderAnthropic || unsup.Mode != catalog.ModeImageGen {
		t.Fatalf("wrong error fields: %+v", unsup)
	}
}

func TestSpeak(t *testing.T) {
	fake := &fakeFull{}
	r := NewRegistry()
	r.Register(catalog.ProviderGemini, fake)

	audio, err := r.Speak(context.Background(), catalog.ProviderGemini, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(audio) == 0 {
		t.Fatal("want audio bytes")
	}

	_, err = r.Speak(context.Background(), catalog.ProviderAnthropic, "hello")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("want ErrUnknownProvider, got %v", err)
	}
}
