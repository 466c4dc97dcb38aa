// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package media handles uploaded attachments: type sniffing, size limits,
// preview handles, and bounded video frame sampling.
//
// Preview handles are owned resources. The browser original leaked object
// URLs on some replacement paths; here every path that drops an attachment
// must call Release, and Release is idempotent so teardown can sweep
// everything without tracking which handles were already dropped.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MaxAttachmentSize is the upload size cap in bytes.
const MaxAttachmentSize = 20 * 1024 * 1024

// Kind is the attachment media class.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Resource errors surfaced on upload.
var (
	// ErrUnsupportedFile indicates the file is neither an image nor a video.
	ErrUnsupportedFile = errors.New("unsupported file type: upload an image or video")

	// ErrFileTooLarge indicates the file exceeds MaxAttachmentSize.
	ErrFileTooLarge = errors.New("file too large")
)

// ============================================================================
// PREVIEW HANDLE
// ============================================================================

// Handle is an owned preview resource backed by a temp file. The owner must
// call Release on every exit path: replacement, clear, and teardown.
type Handle struct {
	mu       sync.Mutex
	path     string
	released bool
}

// Path returns the preview file path, or "" after release.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ""
	}
	return h.path
}

// Release removes the backing file. Safe to call more than once.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	if h.path != "" {
		os.Remove(h.path)
	}
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// HandleFor adopts an existing file as an owned handle. Used for synthesized
// audio and other derived resources that share the preview lifecycle.
func HandleFor(path string) *Handle {
	return &Handle{path: path}
}

// newHandle writes raw bytes to a temp file for external preview viewers.
func newHandle(name string, raw []byte) (*Handle, error) {
	ext := filepath.Ext(name)
	f, err := os.CreateTemp("", "omnichat-preview-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create preview: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write preview: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close preview: %w", err)
	}
	return &Handle{path: f.Name()}, nil
}

// ============================================================================
// ATTACHMENT
// ============================================================================

// Attachment is a file attached to the turn being composed. It is owned by
// the composer until the turn settles, then released.
type Attachment struct {
	Name     string
	Kind     Kind
	MIMEType string
	Data     string // base64-encoded raw bytes, the wire form backends expect

	// Preview is the display handle. May be nil in tests.
	Preview *Handle
}

// Load reads a file from disk into an Attachment, sniffing its type and
// enforcing the size cap.
func Load(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxAttachmentSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromBytes(filepath.Base(path), raw)
}

// FromBytes builds an Attachment from raw bytes.
func FromBytes(name string, raw []byte) (*Attachment, error) {
	if len(raw) > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(raw), MaxAttachmentSize)
	}

	mimeType := sniff(name, raw)
	kind, err := kindOf(mimeType)
	if err != nil {
		return nil, err
	}

	preview, err := newHandle(name, raw)
	if err != nil {
		return nil, err
	}

	return &Attachment{
		Name:     name,
		Kind:     kind,
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(raw),
		Preview:  preview,
	}, nil
}

// Release frees the preview handle. Safe on nil attachments.
func (a *Attachment) Release() {
	if a == nil || a.Preview == nil {
		return
	}
	a.Preview.Release()
}

// kindOf maps a MIME type to an attachment kind.
func kindOf(mimeType string) (Kind, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage, nil
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo, nil
	default:
		return "", fmt.Errorf("%w (got %s)", ErrUnsupportedFile, mimeType)
	}
}

// sniff determines the MIME type from content, falling back to the file
// extension for container formats DetectContentType cannot see into.
func sniff(name string, raw []byte) string {
	detected := http.DetectContentType(raw)
	if detected != "application/octet-stream" {
		return detected
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".heic":
		return "image/heic"
	default:
		return detected
	}
}
