// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "time"

// SpinnerConfig holds the configuration for a spinner animation.
type SpinnerConfig struct {
	Frames []string
	FPS    int
}

// Duration returns the duration for each frame.
func (s SpinnerConfig) Duration() time.Duration {
	return time.Second / time.Duration(s.FPS)
}

// LineSpinner - simple line rotation, shown while a turn is in flight.
var LineSpinner = SpinnerConfig{
	Frames: []string{"|", "/", "-", "\\"},
	FPS:    10,
}

// DotsSpinner - classic three-dot animation for device initialization.
var DotsSpinner = SpinnerConfig{
	Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
	FPS:    6,
}

// PulseSpinner - pulsing indicator for the live session badge.
var PulseSpinner = SpinnerConfig{
	Frames: []string{"( )", "(.)", "(o)", "(O)", "(o)", "(.)"},
	FPS:    8,
}
