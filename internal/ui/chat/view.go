// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/convo"
	"github.com/omnichat/omnichat-tui/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the full chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Starting omnichat..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.showSessions {
		b.WriteString(m.renderSessionPicker())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	b.WriteString(m.renderModeLine())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// renderHeader draws the title line with provider and live/init badges.
func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("omnichat")
	badge := m.theme.ProviderBadge.Render(m.ctrl.Provider().String())

	parts := []string{title, " ", badge}
	if m.ctrl.LiveActive() {
		parts = append(parts, " ", m.theme.LiveBadge.Render("LIVE"))
	}
	if m.ctrl.DeviceInitializing() {
		parts = append(parts, " ", m.theme.InitBadge.Render("loading model"))
	}

	line := lipgloss.JoinHorizontal(lipgloss.Center, parts...)
	return m.theme.Header.Width(m.width).Render(line)
}

// renderModeLine draws one badge per mode the provider supports.
func (m Model) renderModeLine() string {
	current := m.ctrl.Mode()
	var badges []string
	for _, mode := range catalog.Modes(m.ctrl.Provider()) {
		if mode == current {
			badges = append(badges, m.theme.ModeBadgeActive.Render(mode.String()))
		} else {
			badges = append(badges, m.theme.ModeBadge.Render(mode.String()))
		}
	}
	line := strings.Join(badges, " ")
	return util.TruncateWidth(line, m.width)
}

// renderInput draws the attachment chip (if any) and the composer.
func (m Model) renderInput() string {
	var b strings.Builder
	if att := m.ctrl.Attachment(); att != nil {
		chip := m.theme.AttachmentChip.Render(
			fmt.Sprintf("%s %s", att.Kind, util.TruncateRunes(att.Name, 40)))
		b.WriteString(chip)
		b.WriteString("\n")
	}
	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	return b.String()
}

// renderStatusBar shows the transient status when set, shortcuts otherwise.
func (m Model) renderStatusBar() string {
	if m.status != "" {
		return m.theme.StatusBar.Width(m.width).Render(m.status)
	}
	shortcuts := []string{
		m.theme.ShortcutKey.Render("tab") + m.theme.ShortcutDesc.Render(" mode"),
		m.theme.ShortcutKey.Render("ctrl+l") + m.theme.ShortcutDesc.Render(" sessions"),
		m.theme.ShortcutKey.Render("/help") + m.theme.ShortcutDesc.Render(" commands"),
		m.theme.ShortcutKey.Render("ctrl+c") + m.theme.ShortcutDesc.Render(" quit"),
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(shortcuts, "  "))
}

// =============================================================================
// CONVERSATION LOG
// =============================================================================

// renderMessages renders the conversation log, or the welcome screen when the
// log is empty.
func (m Model) renderMessages() string {
	msgs := m.ctrl.Messages()
	if len(msgs) == 0 {
		return m.renderWelcome()
	}

	var blocks []string
	for _, msg := range msgs {
		blocks = append(blocks, m.renderMessage(msg))
	}
	return strings.Join(blocks, "\n")
}

// renderMessage renders a single message bubble.
func (m Model) renderMessage(msg *convo.Message) string {
	bubbleWidth := m.width - 8
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	label := m.theme.RoleLabel.Render(msg.Role.DisplayName()) + " " +
		m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))

	if msg.Loading() {
		body := m.spinner.View() + " " + m.theme.ThinkingText.Render("Thinking...")
		return label + "\n" + m.theme.ModelBubble.MaxWidth(bubbleWidth).Render(body)
	}

	if msg.Errored() {
		return label + "\n" + m.theme.ErrorBubble.MaxWidth(bubbleWidth).Render(msg.Text)
	}

	var body string
	switch msg.Role {
	case convo.RoleUser:
		body = msg.Text
	default:
		body = m.md.Render(msg.DisplayText())
	}

	var extras []string
	if msg.ImageURL != "" {
		extras = append(extras, m.theme.MediaNote.Render("[image] "+msg.ImageURL))
	}
	if msg.VideoURL != "" {
		extras = append(extras, m.theme.MediaNote.Render("[video] "+msg.VideoURL))
	}
	if msg.AudioURL != "" {
		extras = append(extras, m.theme.MediaNote.Render("[audio] "+msg.AudioURL))
	}
	for _, link := range msg.Links {
		title := link.Title
		if title == "" {
			title = link.URI
		}
		extras = append(extras, m.theme.LinkList.Render("- "+title+" <"+link.URI+">"))
	}
	if len(extras) > 0 {
		body = strings.TrimRight(body, "\n") + "\n" + strings.Join(extras, "\n")
	}

	style := m.theme.ModelBubble
	if msg.Role == convo.RoleUser {
		style = m.theme.UserBubble
	}
	return label + "\n" + style.MaxWidth(bubbleWidth).Render(body)
}

// renderWelcome shows the logo and example prompts for the active mode.
func (m Model) renderWelcome() string {
	var b strings.Builder
	b.WriteString(m.theme.WelcomeLogo.Render("omnichat"))
	b.WriteString("\n")
	b.WriteString(m.theme.WelcomeInfo.Render(
		m.ctrl.Provider().String() + " / " + m.ctrl.Mode().String()))
	b.WriteString("\n\n")

	prompts := catalog.Prompts(m.ctrl.Provider(), m.ctrl.Mode())
	if len(prompts) > 0 {
		b.WriteString(m.theme.WelcomeInfo.Render("Try:"))
		b.WriteString("\n")
		for _, p := range prompts {
			b.WriteString(m.theme.ExamplePrompt.Render(p))
			b.WriteString("\n")
		}
	}

	box := m.theme.WelcomeBox.Render(b.String())
	return lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// SESSION PICKER
// =============================================================================

// renderSessionPicker draws the saved-session overlay in place of the log.
func (m Model) renderSessionPicker() string {
	var b strings.Builder
	b.WriteString(m.theme.RoleLabel.Render("Saved sessions"))
	b.WriteString("  ")
	b.WriteString(m.theme.SessionMeta.Render("enter load / d delete / esc close"))
	b.WriteString("\n\n")

	for i, sess := range m.sessions {
		line := fmt.Sprintf("%s  %s / %s",
			util.TruncateRunes(sess.Title, 48), sess.Provider, sess.Mode)
		if i == m.sessionCursor {
			b.WriteString(m.theme.SessionItemSelected.Render(line))
		} else {
			b.WriteString(m.theme.SessionItem.Render(line))
		}
		b.WriteString("\n")
		b.WriteString(m.theme.SessionMeta.Render(
			"   " + sess.SavedAt.Format("2006-01-02 15:04") + " - " +
				fmt.Sprintf("%d messages", len(sess.Messages))))
		b.WriteString("\n")
	}

	box := m.theme.SessionList.Render(b.String())
	return lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, box)
}
