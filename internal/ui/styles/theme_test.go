// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
	"time"
)

func TestNewThemeHonorsSetting(t *testing.T) {
	dark := NewTheme("dark")
	if !dark.IsDark {
		t.Error("dark setting did not pin a dark palette")
	}

	light := NewTheme("light")
	if light.IsDark {
		t.Error("light setting did not pin a light palette")
	}
}

func TestLayoutModeBreakpoints(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
		{200, LayoutWide},
	}

	theme := NewTheme("dark")
	for _, tt := range tests {
		theme.SetSize(tt.width, 40)
		if got := theme.GetLayoutMode(); got != tt.want {
			t.Errorf("width %d: layout = %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestSpinnerDuration(t *testing.T) {
	if d := LineSpinner.Duration(); d != 100*time.Millisecond {
		t.Errorf("LineSpinner frame duration = %v", d)
	}
	if len(PulseSpinner.Frames) == 0 {
		t.Error("PulseSpinner has no frames")
	}
}

func TestStatusRenderersIncludeIndicator(t *testing.T) {
	if out := RenderError("boom"); !strings.Contains(out, StatusIndicators.Error) {
		t.Errorf("RenderError output %q missing indicator", out)
	}
	if out := RenderWarning("careful"); !strings.Contains(out, StatusIndicators.Warning) {
		t.Errorf("RenderWarning output %q missing indicator", out)
	}
	if out := RenderInfo("fyi"); !strings.Contains(out, "fyi") {
		t.Errorf("RenderInfo output %q missing message", out)
	}
}
