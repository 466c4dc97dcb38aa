// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the omnichat TUI.
//
// The Theme type bundles every lipgloss style the chat view renders with,
// configured from an adaptive color palette that follows the terminal's
// light or dark background. The config file's ui.theme setting ("dark",
// "light", "auto") can pin the palette instead of detecting it.
package styles
