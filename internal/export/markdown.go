// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/omnichat/omnichat-tui/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a session as a Markdown document with YAML
// frontmatter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders the session to Markdown.
func (e *MarkdownExporter) Export(sess *storage.SavedSession) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if len(sess.Messages) == 0 {
		return nil, fmt.Errorf("session has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(sess.Title)))
		sb.WriteString(fmt.Sprintf("provider: %s\n", sess.Provider))
		sb.WriteString(fmt.Sprintf("mode: %s\n", sess.Mode))
		sb.WriteString(fmt.Sprintf("saved: %s\n", sess.SavedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("messages: %d\n", len(sess.Messages)))
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("---\n\n")
	}

	sb.WriteString("# " + sess.Title + "\n\n")

	for _, msg := range sess.Messages {
		label := "Model"
		if msg.Role == "user" {
			label = "You"
		}
		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("## %s (%s)\n\n", label, msg.Timestamp.Format("2006-01-02 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("## %s\n\n", label))
		}

		if msg.Text != "" {
			sb.WriteString(msg.Text)
			sb.WriteString("\n\n")
		}
		if msg.ImageURL != "" {
			sb.WriteString(fmt.Sprintf("![generated image](%s)\n\n", msg.ImageURL))
		}
		if msg.VideoURL != "" {
			sb.WriteString(fmt.Sprintf("[video](%s)\n\n", msg.VideoURL))
		}
		if len(msg.Links) > 0 {
			sb.WriteString("Sources:\n\n")
			for _, link := range msg.Links {
				title := link.Title
				if title == "" {
					title = link.URI
				}
				sb.WriteString(fmt.Sprintf("- [%s](%s)\n", title, link.URI))
			}
			sb.WriteString("\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// escapeYAML quotes a value when it would break frontmatter parsing.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#\"'\n") {
		return fmt.Sprintf("%q", strings.ReplaceAll(s, "\n", " "))
	}
	return s
}
