// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package device

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// findRuntimeExecutable searches for the model runtime in common
// installation paths on Unix.
func findRuntimeExecutable() (string, error) {
	if path, err := exec.LookPath("ollama"); err == nil {
		return path, nil
	}

	possiblePaths := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/ollama/ollama",
	}

	if home := os.Getenv("HOME"); home != "" {
		possiblePaths = append(possiblePaths,
			filepath.Join(home, ".local", "bin", "ollama"),
			filepath.Join(home, "bin", "ollama"),
		)
	}

	// macOS application bundle location
	possiblePaths = append(possiblePaths,
		"/Applications/Ollama.app/Contents/Resources/ollama",
	)

	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("model runtime not found in PATH or common installation directories. " +
		"Checked: PATH, /usr/local/bin, /usr/bin, ~/.local/bin")
}

// startRuntimeProcess starts the model runtime on Unix/macOS and waits for
// it to answer.
func (e *Engine) startRuntimeProcess(ctx context.Context) error {
	runtimePath, err := findRuntimeExecutable()
	if err != nil {
		return err
	}

	cmd := exec.Command(runtimePath, "serve")

	// Pass the environment through so GPU-related vars reach the runtime.
	cmd.Env = os.Environ()

	// New process group: the runtime outlives us and terminates independently.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start model runtime (path: %s): %w", runtimePath, err)
	}

	// Release the process so it keeps running after we exit.
	if cmd.Process != nil {
		cmd.Process.Release()
	}

	// Poll until the runtime answers, up to 10 seconds.
	deadline := time.Now().Add(10 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		checkCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		lastErr = e.client.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("model runtime started but not responding after 10 seconds (path: %s): %w",
		runtimePath, lastErr)
}
