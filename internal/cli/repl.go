// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the plain-terminal REPL, used when the full-screen
// UI cannot run: piped output, dumb terminals, or an explicit flag. It
// drives the same controller as the UI, so both front ends share turn
// semantics exactly.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/config"
	"github.com/omnichat/omnichat-tui/internal/controller"
	"github.com/omnichat/omnichat-tui/internal/convo"
	"github.com/omnichat/omnichat-tui/internal/export"
	"github.com/omnichat/omnichat-tui/internal/media"
	"github.com/omnichat/omnichat-tui/internal/ui/chat"
	"github.com/omnichat/omnichat-tui/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	linkStyle = lipgloss.NewStyle().
			Foreground(styles.LinkColor)

	mediaStyle = lipgloss.NewStyle().
			Foreground(styles.Amber).
			Italic(true)
)

// =============================================================================
// REPL
// =============================================================================

// REPL is the line-oriented chat loop.
type REPL struct {
	ctrl    *controller.Controller
	reader  *LineReader
	changes chan struct{}
	quiet   bool
}

// NewREPL creates a REPL. The controller arrives in Run; Handlers() can be
// wired into the controller's constructor first.
func NewREPL(quiet bool) *REPL {
	return &REPL{
		changes: make(chan struct{}, 16),
		quiet:   quiet,
	}
}

// Handlers returns controller callbacks for the REPL. Change notifications
// feed the turn-completion wait; a full channel drops the signal because a
// pending one already wakes the waiter.
func (r *REPL) Handlers() controller.Handlers {
	return controller.Handlers{
		OnChange: func() {
			select {
			case r.changes <- struct{}{}:
			default:
			}
		},
		OnCredentialError: func(p catalog.Provider) {
			path, err := config.ConfigPath()
			if err != nil {
				path = "the config file"
			}
			fmt.Fprintf(os.Stderr, "%s %s key missing or rejected. Set it in %s\n",
				errorStyle.Render("[auth]"), p.String(), path)
		},
	}
}

// Run executes the read-eval-print loop until the user exits.
func (r *REPL) Run(ctx context.Context, ctrl *controller.Controller) error {
	r.ctrl = ctrl
	r.reader = NewLineReader()
	defer r.reader.Close()

	if !r.quiet {
		r.printWelcome()
	}

	for {
		input, err := r.reader.ReadInput(promptStyle.Render(r.prompt()))
		if err != nil {
			// Ctrl+C or Ctrl+D both end the loop.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			quit := r.runCommand(input)
			if quit {
				return nil
			}
			continue
		}

		r.submit(ctx, input)
	}
}

// prompt renders "provider:mode> ".
func (r *REPL) prompt() string {
	return r.ctrl.Provider().Key() + ":" + r.ctrl.Mode().Key() + "> "
}

func (r *REPL) printWelcome() {
	fmt.Println(welcomeStyle.Render("omnichat"))
	fmt.Println(infoStyle.Render(
		r.ctrl.Provider().String() + " / " + r.ctrl.Mode().String() +
			" - /help for commands, /quit to exit"))
	fmt.Println()
}

// =============================================================================
// TURN DISPATCH
// =============================================================================

// submit dispatches one turn and blocks until it settles.
func (r *REPL) submit(ctx context.Context, input string) {
	r.ctrl.SetPrompt(input)
	r.ctrl.Submit(ctx)

	// The controller keeps the composer text when it refused the turn.
	if r.ctrl.Prompt() != "" {
		if r.ctrl.DeviceInitializing() {
			fmt.Fprintln(os.Stderr, infoStyle.Render("model still loading, try again shortly"))
		} else {
			fmt.Fprintln(os.Stderr, errorStyle.Render("[busy]")+" previous turn still running")
		}
		return
	}

	r.waitForTurn(ctx)
	r.printLastReply()
}

// waitForTurn blocks until the in-flight turn reaches a terminal state. The
// ticker covers notifications that raced the channel drain.
func (r *REPL) waitForTurn(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for r.ctrl.Busy() {
		select {
		case <-r.changes:
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// printLastReply renders the newest model message.
func (r *REPL) printLastReply() {
	msgs := r.ctrl.Messages()
	if len(msgs) == 0 {
		return
	}
	msg := msgs[len(msgs)-1]
	if msg.Role != convo.RoleModel {
		return
	}

	fmt.Println()
	if msg.Errored() {
		fmt.Println(errorStyle.Render("[error]") + " " + msg.Text)
		fmt.Println()
		return
	}

	text := msg.Text
	if IsStdoutTTY() {
		text = chat.HighlightFences(text)
	}
	if text != "" {
		fmt.Println(text)
	}

	if msg.ImageURL != "" {
		fmt.Println(mediaStyle.Render("[image] " + msg.ImageURL))
	}
	if msg.VideoURL != "" {
		fmt.Println(mediaStyle.Render("[video] " + msg.VideoURL))
	}
	if msg.AudioURL != "" {
		fmt.Println(mediaStyle.Render("[audio] " + msg.AudioURL))
	}
	for _, link := range msg.Links {
		title := link.Title
		if title == "" {
			title = link.URI
		}
		fmt.Println(linkStyle.Render("  - " + title + " <" + link.URI + ">"))
	}
	fmt.Println()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const replHelp = `Commands:
  /provider [name]   show or switch provider
  /mode [name]       show or pin a mode
  /attach <path>     attach an image or video file
  /clear             drop the current attachment
  /new               start a fresh conversation
  /save              save the conversation
  /sessions          list saved sessions
  /load <id>         load a saved session
  /delete <id>       delete a saved session
  /export [md|json]  export the conversation to a file
  /tts               speak the last reply into an audio file
  /quit              exit`

// runCommand executes one slash command; returns true to exit the loop.
func (r *REPL) runCommand(input string) bool {
	parts := strings.SplitN(strings.TrimPrefix(input, "/"), " ", 2)
	name := strings.ToLower(strings.TrimSpace(parts[0]))
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch name {
	case "help", "h", "?":
		fmt.Println(replHelp)

	case "quit", "exit", "q":
		return true

	case "provider", "p":
		r.cmdProvider(arg)

	case "mode":
		r.cmdMode(arg)

	case "attach", "a":
		r.cmdAttach(arg)

	case "clear":
		r.ctrl.ClearAttachment()
		fmt.Println(infoStyle.Render("attachment removed"))

	case "new":
		r.ctrl.Reset()
		fmt.Println(infoStyle.Render("new conversation"))

	case "save":
		sess, err := r.ctrl.SaveSession()
		if err != nil {
			r.printErr(err)
			return false
		}
		fmt.Println(infoStyle.Render("saved: " + sess.Title + " (" + sess.ID + ")"))

	case "sessions", "ls":
		r.cmdSessions()

	case "load":
		if arg == "" {
			fmt.Println(errorStyle.Render("usage: /load <id>"))
			return false
		}
		if err := r.ctrl.LoadSession(arg); err != nil {
			r.printErr(err)
			return false
		}
		fmt.Println(infoStyle.Render("session loaded"))

	case "delete", "rm":
		if arg == "" {
			fmt.Println(errorStyle.Render("usage: /delete <id>"))
			return false
		}
		if err := r.ctrl.DeleteSession(arg); err != nil {
			r.printErr(err)
			return false
		}
		fmt.Println(infoStyle.Render("session deleted"))

	case "export":
		r.cmdExport(arg)

	case "tts", "speak":
		r.cmdSpeak()

	default:
		fmt.Println(errorStyle.Render("unknown command /" + name + ", try /help"))
	}
	return false
}

func (r *REPL) cmdProvider(arg string) {
	if arg == "" {
		var names []string
		for _, p := range catalog.Providers() {
			names = append(names, p.Key())
		}
		fmt.Println(infoStyle.Render("providers: " + strings.Join(names, ", ")))
		return
	}
	p, err := catalog.ParseProvider(arg)
	if err != nil {
		r.printErr(err)
		return
	}
	r.ctrl.SetProvider(p)
	fmt.Println(infoStyle.Render("provider: " + p.String()))
}

func (r *REPL) cmdMode(arg string) {
	if arg == "" {
		var names []string
		for _, mode := range catalog.Modes(r.ctrl.Provider()) {
			names = append(names, mode.Key())
		}
		fmt.Println(infoStyle.Render("modes: " + strings.Join(names, ", ")))
		return
	}
	mode, err := catalog.ParseMode(arg)
	if err != nil {
		r.printErr(err)
		return
	}
	if !catalog.Supports(r.ctrl.Provider(), mode) {
		fmt.Println(errorStyle.Render(
			r.ctrl.Provider().String() + " does not support " + mode.String()))
		return
	}
	r.ctrl.SelectMode(mode)
	fmt.Println(infoStyle.Render("mode: " + mode.String()))
}

func (r *REPL) cmdAttach(arg string) {
	if arg == "" {
		fmt.Println(errorStyle.Render("usage: /attach <path>"))
		return
	}
	att, err := media.Load(arg)
	if err != nil {
		r.printErr(err)
		return
	}
	r.ctrl.Attach(att)
	fmt.Println(infoStyle.Render("attached " + att.Name))
}

func (r *REPL) cmdSessions() {
	sessions := r.ctrl.Sessions()
	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("no saved sessions"))
		return
	}
	for _, sess := range sessions {
		fmt.Printf("  %s  %s (%s/%s, %d messages, %s)\n",
			sess.ID, sess.Title, sess.Provider, sess.Mode,
			len(sess.Messages), sess.SavedAt.Format("2006-01-02 15:04"))
	}
}

func (r *REPL) cmdExport(arg string) {
	exporter, err := export.ForFormat(arg, nil)
	if err != nil {
		r.printErr(err)
		return
	}
	sess, err := r.ctrl.SaveSession()
	if err != nil {
		r.printErr(err)
		return
	}
	path, err := export.ExportToFile(sess, exporter, nil)
	if err != nil {
		r.printErr(err)
		return
	}
	fmt.Println(infoStyle.Render("exported to " + path))
}

func (r *REPL) cmdSpeak() {
	msgs := r.ctrl.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == convo.RoleModel && !msgs[i].Errored() && msgs[i].Text != "" {
			path, err := r.ctrl.PlayTTS(context.Background(), msgs[i].ID)
			if err != nil {
				r.printErr(err)
				return
			}
			fmt.Println(infoStyle.Render("audio saved to " + path))
			return
		}
	}
	fmt.Println(errorStyle.Render("nothing to speak yet"))
}

func (r *REPL) printErr(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("[error]")+" "+err.Error())
}
