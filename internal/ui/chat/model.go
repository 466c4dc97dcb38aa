// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/config"
	"github.com/omnichat/omnichat-tui/internal/controller"
	"github.com/omnichat/omnichat-tui/internal/storage"
	"github.com/omnichat/omnichat-tui/internal/ui/styles"
)

// statusTTL is how long a transient status line stays visible.
const statusTTL = 4 * time.Second

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the bubbletea model for the chat view.
type Model struct {
	theme *styles.Theme
	ctrl  *controller.Controller

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	md       *markdownRenderer

	width  int
	height int
	ready  bool

	// Transient status line; seq guards stale expiries.
	status    string
	statusSeq int

	// Session picker overlay
	showSessions  bool
	sessions      []storage.SavedSession
	sessionCursor int

	spinning bool
}

// New creates the chat view over a controller.
func New(theme *styles.Theme, ctrl *controller.Controller) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, or /help for commands..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: styles.LineSpinner.Frames,
		FPS:    styles.LineSpinner.Duration(),
	}
	sp.Style = theme.Spinner

	return Model{
		theme:    theme,
		ctrl:     ctrl,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		md:       newMarkdownRenderer(76),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case LogChangedMsg:
		m.refreshLog()
		if m.ctrl.Busy() && !m.spinning {
			m.spinning = true
			return m, m.spinner.Tick
		}
		return m, nil

	case ModeChangedMsg:
		return m.setStatus("Mode: " + msg.Mode.String())

	case CredentialErrorMsg:
		return m.setStatus(styles.RenderError(
			msg.Provider.String() + " key missing or rejected. Set it in " + configPathHint()))

	case spinner.TickMsg:
		if !m.ctrl.Busy() {
			m.spinning = false
			m.refreshLog()
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshLog()
		return m, cmd

	case statusExpireMsg:
		if msg.Seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case ttsDoneMsg:
		if msg.Err != nil {
			return m.setStatus(styles.RenderError("Speech failed: " + msg.Err.Error()))
		}
		return m.setStatus("Audio saved to " + msg.Path)

	case liveStartedMsg:
		if msg.Err != nil {
			return m.setStatus(styles.RenderError("Live session failed: " + msg.Err.Error()))
		}
		m.refreshLog()
		return m.setStatus("Live conversation started. /stop to end it.")
	}

	return m, nil
}

// handleResize recomputes the layout for a new terminal size.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// Header, mode line, input border block, and status bar surround the log.
	chromeHeight := 6
	vpHeight := msg.Height - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight
	m.input.Width = msg.Width - 6
	m.md.SetWidth(msg.Width - 8)

	m.ready = true
	m.refreshLog()
	return m, nil
}

// handleKey routes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showSessions {
		return m.handleSessionKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		m.ctrl.Teardown()
		return m, tea.Quit

	case "enter":
		return m.handleSubmit()

	case "tab":
		return m.cycleMode()

	case "ctrl+l":
		return m.openSessions()

	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctrl.SetPrompt(m.input.Value())
	return m, cmd
}

// handleSubmit dispatches the composed text: slash commands run locally,
// everything else goes to the controller.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		m.ctrl.SetPrompt("")
		return m.runCommand(text)
	}

	m.ctrl.SetPrompt(text)
	m.ctrl.Submit(context.Background())

	// The controller clears its composer only when it accepted the turn.
	if m.ctrl.Prompt() == "" {
		m.input.Reset()
		return m, nil
	}
	if m.ctrl.DeviceInitializing() {
		return m.setStatus("Model is still loading, try again shortly")
	}
	return m, nil
}

// cycleMode selects the next mode the active provider supports.
func (m Model) cycleMode() (tea.Model, tea.Cmd) {
	modes := catalog.Modes(m.ctrl.Provider())
	if len(modes) == 0 {
		return m, nil
	}
	current := m.ctrl.Mode()
	next := modes[0]
	for i, mode := range modes {
		if mode == current {
			next = modes[(i+1)%len(modes)]
			break
		}
	}
	m.ctrl.SelectMode(next)
	return m.setStatus("Mode: " + next.String())
}

// =============================================================================
// SESSION PICKER
// =============================================================================

func (m Model) openSessions() (tea.Model, tea.Cmd) {
	m.sessions = m.ctrl.Sessions()
	if len(m.sessions) == 0 {
		return m.setStatus("No saved sessions. /save stores the current conversation.")
	}
	m.showSessions = true
	m.sessionCursor = 0
	return m, nil
}

func (m Model) handleSessionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "ctrl+l":
		m.showSessions = false
		return m, nil

	case "up", "k":
		if m.sessionCursor > 0 {
			m.sessionCursor--
		}
		return m, nil

	case "down", "j":
		if m.sessionCursor < len(m.sessions)-1 {
			m.sessionCursor++
		}
		return m, nil

	case "enter":
		sess := m.sessions[m.sessionCursor]
		m.showSessions = false
		if err := m.ctrl.LoadSession(sess.ID); err != nil {
			return m.setStatus(styles.RenderError("Load failed: " + err.Error()))
		}
		m.refreshLog()
		return m.setStatus("Loaded: " + sess.Title)

	case "d":
		sess := m.sessions[m.sessionCursor]
		if err := m.ctrl.DeleteSession(sess.ID); err != nil {
			return m.setStatus(styles.RenderError("Delete failed: " + err.Error()))
		}
		m.sessions = m.ctrl.Sessions()
		if len(m.sessions) == 0 {
			m.showSessions = false
		} else if m.sessionCursor >= len(m.sessions) {
			m.sessionCursor = len(m.sessions) - 1
		}
		return m, nil

	case "ctrl+c":
		m.ctrl.Teardown()
		return m, tea.Quit
	}
	return m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// setStatus shows a transient status line and schedules its expiry.
func (m Model) setStatus(text string) (tea.Model, tea.Cmd) {
	m.status = text
	m.statusSeq++
	seq := m.statusSeq
	return m, tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return statusExpireMsg{Seq: seq}
	})
}

// refreshLog re-renders the conversation into the viewport and follows the
// tail.
func (m *Model) refreshLog() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// configPathHint returns the config file path for error statuses.
func configPathHint() string {
	if path, err := config.ConfigPath(); err == nil {
		return path
	}
	return "~/.omnichat/config.toml"
}
