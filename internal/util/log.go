// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Background failures cannot be printed while a full-screen TUI owns the
// terminal, so they append to a log file in the app dir instead.

var (
	logMu   sync.Mutex
	logger  *log.Logger
	logFile *os.File
)

// LogPath returns the path of the application log file.
func LogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "omnichat.log"
	}
	return filepath.Join(home, ".omnichat", "omnichat.log")
}

// Logf appends a formatted line to the application log. The file is opened
// lazily on first use; failures to open are swallowed because logging must
// never take the application down.
func Logf(format string, args ...any) {
	logMu.Lock()
	defer logMu.Unlock()

	if logger == nil {
		path := LogPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return
		}
		logFile = f
		logger = log.New(f, "", log.LstdFlags)
	}
	logger.Output(2, fmt.Sprintf(format, args...))
}

// CloseLog closes the log file if one was opened.
func CloseLog() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		logger = nil
	}
}
