// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/omnichat/omnichat-tui/internal/config"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineReader provides input history and line editing for the plain REPL.
// Supports arrow keys for history navigation.
type LineReader struct {
	line        *liner.State
	historyFile string
}

// NewLineReader creates a reader with history loaded from the config dir.
func NewLineReader() *LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	r := &LineReader{
		line:        line,
		historyFile: filepath.Join(configDir, "repl_history"),
	}
	r.loadHistory()
	return r
}

func (r *LineReader) loadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads one line with the given prompt. Non-empty input is added
// to history.
func (r *LineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists history with owner-only permissions.
func (r *LineReader) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (r *LineReader) Close() {
	r.saveHistory()
	r.line.Close()
}
