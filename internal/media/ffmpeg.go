// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// FFmpegExtractor samples video frames by shelling out to ffmpeg. It decodes
// one frame per second; the sampling cap in ExtractSampled keeps the upload
// bounded for long clips.
type FFmpegExtractor struct {
	binary string
}

// NewFFmpegExtractor locates ffmpeg on PATH. Returns an error when the
// binary is missing so callers can run without video understanding instead
// of failing at dispatch time.
func NewFFmpegExtractor() (*FFmpegExtractor, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &FFmpegExtractor{binary: path}, nil
}

// ExtractFrames decodes stills from the attachment in play order.
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, a *Attachment) ([]Frame, error) {
	if a.Kind != KindVideo {
		return nil, ErrUnsupportedFile
	}

	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode video data: %w", err)
	}

	workDir, err := os.MkdirTemp("", "omnichat-frames-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input"+filepath.Ext(a.Name))
	if err := os.WriteFile(input, raw, 0600); err != nil {
		return nil, err
	}

	// One frame per second, scaled down so a frame stays well under typical
	// inline-image limits.
	cmd := exec.CommandContext(ctx, e.binary,
		"-i", input,
		"-vf", "fps=1,scale=640:-1",
		"-f", "image2",
		filepath.Join(workDir, "frame-%04d.jpg"),
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(workDir, "frame-*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	frames := make([]Frame, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		frames = append(frames, Frame{
			MIMEType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	return frames, nil
}
