// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

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

// Windows-specific creation flags.
const (
	// CREATE_NO_WINDOW prevents a console window from being created.
	CREATE_NO_WINDOW = 0x08000000
	// DETACHED_PROCESS detaches the new process from the console.
	DETACHED_PROCESS = 0x00000008
)

// findRuntimeExecutable searches for the model runtime in common
// installation paths on Windows.
func findRuntimeExecutable() (string, error) {
	if path, err := exec.LookPath("ollama.exe"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("ollama"); err == nil {
		return path, nil
	}

	possiblePaths := []string{}

	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		possiblePaths = append(possiblePaths, filepath.Join(localAppData, "Programs", "Ollama", "ollama.exe"))
	}

	possiblePaths = append(possiblePaths,
		`C:\Program Files\Ollama\ollama.exe`,
		`C:\Program Files (x86)\Ollama\ollama.exe`,
	)

	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		possiblePaths = append(possiblePaths,
			filepath.Join(userProfile, "Ollama", "ollama.exe"),
			filepath.Join(userProfile, ".ollama", "ollama.exe"),
		)
	}

	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("model runtime not found in PATH or common installation directories. " +
		"Checked: PATH, %%LOCALAPPDATA%%\\Programs\\Ollama, C:\\Program Files\\Ollama")
}

// startRuntimeProcess starts the model runtime on Windows and waits for it
// to answer. Startup is slower there, especially on first launch.
func (e *Engine) startRuntimeProcess(ctx context.Context) error {
	runtimePath, err := findRuntimeExecutable()
	if err != nil {
		return err
	}

	cmd := exec.Command(runtimePath, "serve")

	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | CREATE_NO_WINDOW | DETACHED_PROCESS,
	}

	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start model runtime (path: %s): %w", runtimePath, err)
	}

	if cmd.Process != nil {
		cmd.Process.Release()
	}

	deadline := time.Now().Add(15 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		checkCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		lastErr = e.client.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("model runtime started but not responding after 15 seconds (path: %s): %w",
		runtimePath, lastErr)
}
