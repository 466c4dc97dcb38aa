// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/convo"
	"github.com/omnichat/omnichat-tui/internal/export"
	"github.com/omnichat/omnichat-tui/internal/media"
	"github.com/omnichat/omnichat-tui/internal/ui/styles"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// parseCommand splits "/name arg..." into the command name and its argument.
// The argument keeps internal whitespace so file paths with spaces survive.
func parseCommand(input string) (name, arg string) {
	input = strings.TrimSpace(strings.TrimPrefix(input, "/"))
	if input == "" {
		return "", ""
	}
	if i := strings.IndexAny(input, " \t"); i >= 0 {
		return strings.ToLower(input[:i]), strings.TrimSpace(input[i+1:])
	}
	return strings.ToLower(input), ""
}

const helpText = `Commands:
  /provider <name>   switch provider (gemini, openai, anthropic, cohere, ...)
  /mode <name>       pin a mode (chat, search, imagegen, ...)
  /attach <path>     attach an image or video file
  /clear             drop the current attachment
  /new               start a fresh conversation
  /save              save the conversation
  /sessions          browse saved sessions (also ctrl+l)
  /load <id>         load a saved session by id
  /export [md|json]  export the conversation to a file
  /tts               speak the last reply aloud
  /live              start a live voice conversation
  /stop              end the live conversation
  /quit              exit

Keys: tab cycles modes, pgup/pgdn scrolls, ctrl+c quits.`

// runCommand executes a parsed slash command.
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	name, arg := parseCommand(input)

	switch name {
	case "help", "h", "?":
		return m.setStatus(helpText)

	case "quit", "exit", "q":
		m.ctrl.Teardown()
		return m, tea.Quit

	case "provider", "p":
		return m.cmdProvider(arg)

	case "mode":
		return m.cmdMode(arg)

	case "attach", "a":
		return m.cmdAttach(arg)

	case "clear":
		m.ctrl.ClearAttachment()
		return m.setStatus("Attachment removed")

	case "new":
		m.ctrl.Reset()
		m.refreshLog()
		return m.setStatus("New conversation")

	case "save":
		sess, err := m.ctrl.SaveSession()
		if err != nil {
			return m.setStatus(styles.RenderError("Save failed: " + err.Error()))
		}
		return m.setStatus("Saved: " + sess.Title)

	case "sessions", "ls":
		return m.openSessions()

	case "load":
		if arg == "" {
			return m.openSessions()
		}
		if err := m.ctrl.LoadSession(arg); err != nil {
			return m.setStatus(styles.RenderError("Load failed: " + err.Error()))
		}
		m.refreshLog()
		return m.setStatus("Session loaded")

	case "delete", "rm":
		if arg == "" {
			return m.setStatus(styles.RenderError("Usage: /delete <session-id>"))
		}
		if err := m.ctrl.DeleteSession(arg); err != nil {
			return m.setStatus(styles.RenderError("Delete failed: " + err.Error()))
		}
		return m.setStatus("Session deleted")

	case "export":
		return m.cmdExport(arg)

	case "tts", "speak":
		return m.cmdSpeak()

	case "live":
		return m, func() tea.Msg {
			return liveStartedMsg{Err: m.ctrl.StartLive(context.Background())}
		}

	case "stop":
		m.ctrl.StopLive()
		m.refreshLog()
		return m.setStatus("Live conversation ended")

	default:
		return m.setStatus(styles.RenderError("Unknown command /" + name + ". Try /help."))
	}
}

func (m Model) cmdProvider(arg string) (tea.Model, tea.Cmd) {
	if arg == "" {
		names := make([]string, 0, len(catalog.Providers()))
		for _, p := range catalog.Providers() {
			names = append(names, p.String())
		}
		return m.setStatus("Providers: " + strings.Join(names, ", "))
	}
	p, err := catalog.ParseProvider(arg)
	if err != nil {
		return m.setStatus(styles.RenderError(err.Error()))
	}
	m.ctrl.SetProvider(p)
	m.refreshLog()
	return m.setStatus("Provider: " + p.String())
}

func (m Model) cmdMode(arg string) (tea.Model, tea.Cmd) {
	if arg == "" {
		names := make([]string, 0, 8)
		for _, mode := range catalog.Modes(m.ctrl.Provider()) {
			names = append(names, mode.Key())
		}
		return m.setStatus("Modes for " + m.ctrl.Provider().String() + ": " + strings.Join(names, ", "))
	}
	mode, err := catalog.ParseMode(arg)
	if err != nil {
		return m.setStatus(styles.RenderError(err.Error()))
	}
	if !catalog.Supports(m.ctrl.Provider(), mode) {
		return m.setStatus(styles.RenderError(
			m.ctrl.Provider().String() + " does not support " + mode.String()))
	}
	m.ctrl.SelectMode(mode)
	return m.setStatus("Mode: " + mode.String())
}

func (m Model) cmdAttach(arg string) (tea.Model, tea.Cmd) {
	if arg == "" {
		return m.setStatus(styles.RenderError("Usage: /attach <path-to-image-or-video>"))
	}
	att, err := media.Load(arg)
	if err != nil {
		return m.setStatus(styles.RenderError("Attach failed: " + err.Error()))
	}
	m.ctrl.Attach(att)
	return m.setStatus("Attached " + att.Name)
}

// cmdExport snapshots the conversation and writes it to a file.
func (m Model) cmdExport(arg string) (tea.Model, tea.Cmd) {
	exporter, err := export.ForFormat(arg, nil)
	if err != nil {
		return m.setStatus(styles.RenderError(err.Error()))
	}
	sess, err := m.ctrl.SaveSession()
	if err != nil {
		return m.setStatus(styles.RenderError("Export failed: " + err.Error()))
	}
	path, err := export.ExportToFile(sess, exporter, nil)
	if err != nil {
		return m.setStatus(styles.RenderError("Export failed: " + err.Error()))
	}
	return m.setStatus("Exported to " + path)
}

// cmdSpeak synthesizes audio for the most recent model reply.
func (m Model) cmdSpeak() (tea.Model, tea.Cmd) {
	msgs := m.ctrl.Messages()
	var target *convo.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == convo.RoleModel && !msgs[i].Errored() && msgs[i].Text != "" {
			target = msgs[i]
			break
		}
	}
	if target == nil {
		return m.setStatus(styles.RenderError("Nothing to speak yet"))
	}
	id := target.ID
	return m, func() tea.Msg {
		path, err := m.ctrl.PlayTTS(context.Background(), id)
		return ttsDoneMsg{Path: path, Err: err}
	}
}
