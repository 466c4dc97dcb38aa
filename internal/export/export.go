// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved conversations to shareable files.
package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/omnichat/omnichat-tui/internal/storage"
	"github.com/omnichat/omnichat-tui/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a saved session to one output format.
type Exporter interface {
	// Export renders the session to the target format.
	Export(sess *storage.SavedSession) ([]byte, error)

	// FileExtension returns the output extension (".md", ".json").
	FileExtension() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata adds a header with provider, mode, and timestamps.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool
}

// DefaultOptions returns the default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// ForFormat resolves a format name to an exporter.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (md, json)", format)
	}
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// ExportToFile renders the session and writes it under opts.OutputDir.
// Returns the output path.
func ExportToFile(sess *storage.SavedSession, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(sess)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(sess.Title),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(opts.OutputDir, filename)

	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// sanitizeFilename reduces a title to a safe, short filename fragment.
func sanitizeFilename(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "untitled"
	}
	if runes := []rune(name); len(runes) > 40 {
		name = string(runes[:40])
	}
	return name
}
