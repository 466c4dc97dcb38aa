// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application. It detects the
// terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header        lipgloss.Style
	HeaderTitle   lipgloss.Style
	ProviderBadge lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLES
	// ==========================================================================

	UserBubble  lipgloss.Style
	ModelBubble lipgloss.Style
	ErrorBubble lipgloss.Style
	RoleLabel   lipgloss.Style
	Timestamp   lipgloss.Style
	LinkList    lipgloss.Style
	MediaNote   lipgloss.Style

	// ==========================================================================
	// INPUT AREA
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
	AttachmentChip   lipgloss.Style

	// ==========================================================================
	// MODE SELECTOR
	// ==========================================================================

	ModeBadge       lipgloss.Style
	ModeBadgeActive lipgloss.Style
	ExamplePrompt   lipgloss.Style

	// ==========================================================================
	// STATUS BAR
	// ==========================================================================

	StatusBar    lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	LiveBadge    lipgloss.Style
	InitBadge    lipgloss.Style

	// ==========================================================================
	// SPINNER AND LOADING
	// ==========================================================================

	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style

	// ==========================================================================
	// SESSION LIST
	// ==========================================================================

	SessionList         lipgloss.Style
	SessionItem         lipgloss.Style
	SessionItemSelected lipgloss.Style
	SessionMeta         lipgloss.Style

	// ==========================================================================
	// WELCOME SCREEN
	// ==========================================================================

	WelcomeBox  lipgloss.Style
	WelcomeLogo lipgloss.Style
	WelcomeInfo lipgloss.Style
}

// NewTheme creates a theme. setting is "dark", "light", or "auto"; auto uses
// the terminal's detected background.
func NewTheme(setting string) *Theme {
	colorProfile := termenv.ColorProfile()

	isDark := termenv.HasDarkBackground()
	switch setting {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 2)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.ProviderBadge = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Cyan).
		Bold(true).
		Padding(0, 1)

	// Message bubbles
	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 2).
		MarginLeft(4)

	t.ModelBubble = lipgloss.NewStyle().
		Foreground(ModelBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ModelBubbleBorder).
		Padding(0, 2).
		MarginRight(4)

	t.ErrorBubble = lipgloss.NewStyle().
		Foreground(Rose).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(Rose).
		Padding(0, 2).
		MarginRight(4)

	t.RoleLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.LinkList = lipgloss.NewStyle().
		Foreground(LinkColor).
		PaddingLeft(2)

	t.MediaNote = lipgloss.NewStyle().
		Foreground(Amber).
		Italic(true)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.InputPlaceholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.AttachmentChip = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Amber).
		Padding(0, 1)

	// Mode selector
	t.ModeBadge = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ModeBadgeActive = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Purple).
		Bold(true).
		Padding(0, 1)

	t.ExamplePrompt = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		PaddingLeft(2)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.LiveBadge = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(LiveColor).
		Bold(true).
		Padding(0, 1)

	t.InitBadge = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Amber).
		Padding(0, 1)

	// Spinner and loading
	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.ThinkingText = lipgloss.NewStyle().
		Foreground(TextSecondary)

	// Session list
	t.SessionList = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 2)

	t.SessionItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(0, 1)

	t.SessionItemSelected = lipgloss.NewStyle().
		Background(Purple).
		Foreground(TextInverse).
		Bold(true).
		Padding(0, 1)

	t.SessionMeta = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	// Welcome screen
	t.WelcomeBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(Purple).
		Padding(2, 4).
		Align(lipgloss.Center)

	t.WelcomeLogo = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.WelcomeInfo = lipgloss.NewStyle().
		Foreground(TextSecondary)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}
