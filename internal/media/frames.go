// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package media

import (
	"context"
	"errors"
)

// MaxVideoFrames caps how many sampled frames are sent for video
// understanding, regardless of clip length.
const MaxVideoFrames = 10

// Frame is a single still sampled from a video, in the wire form backends
// expect.
type Frame struct {
	MIMEType string
	Data     string // base64-encoded image bytes
}

// FrameExtractor decodes stills from a video attachment. Implementations
// wrap whatever decoder is available; tests use a canned extractor.
type FrameExtractor interface {
	// ExtractFrames returns decoded stills from the video in play order.
	ExtractFrames(ctx context.Context, a *Attachment) ([]Frame, error)
}

// ErrNoFrames indicates the extractor produced nothing usable.
var ErrNoFrames = errors.New("no frames could be extracted from video")

// SampleFrames selects at most max frames, evenly spaced across the clip so
// short and long videos get comparable coverage. Order is preserved.
func SampleFrames(frames []Frame, max int) []Frame {
	if max <= 0 || len(frames) == 0 {
		return nil
	}
	if len(frames) <= max {
		return frames
	}

	sampled := make([]Frame, 0, max)
	step := float64(len(frames)) / float64(max)
	for i := 0; i < max; i++ {
		sampled = append(sampled, frames[int(float64(i)*step)])
	}
	return sampled
}

// ExtractSampled runs the extractor and applies the MaxVideoFrames cap.
func ExtractSampled(ctx context.Context, ex FrameExtractor, a *Attachment) ([]Frame, error) {
	frames, err := ex.ExtractFrames(ctx, a)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	return SampleFrames(frames, MaxVideoFrames), nil
}
