// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer wraps glamour with width-aware re-initialization. Model
// messages render as markdown; rendering failures fall back to the raw text
// so a malformed response never blanks the view.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

func newMarkdownRenderer(width int) *markdownRenderer {
	m := &markdownRenderer{}
	m.SetWidth(width)
	return m
}

// SetWidth rebuilds the renderer when the word-wrap width changes.
func (m *markdownRenderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	if m.renderer != nil && m.width == width {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
	m.width = width
}

// Render renders markdown for terminal display, falling back to the input.
func (m *markdownRenderer) Render(content string) string {
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlightCode applies chroma highlighting to a code snippet. Used for the
// plain REPL path where glamour's full markdown pipeline is not wanted.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// HighlightFences renders fenced code blocks in text with chroma, leaving
// the surrounding prose untouched.
func HighlightFences(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	var codeLines []string
	var language string
	inCode := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if inCode {
				result = append(result, highlightCode(strings.Join(codeLines, "\n"), language))
				codeLines = nil
				language = ""
				inCode = false
			} else {
				language = strings.TrimSpace(strings.TrimPrefix(line, "```"))
				inCode = true
			}
			continue
		}
		if inCode {
			codeLines = append(codeLines, line)
		} else {
			result = append(result, line)
		}
	}
	// Unclosed fence renders as code anyway.
	if inCode && len(codeLines) > 0 {
		result = append(result, highlightCode(strings.Join(codeLines, "\n"), language))
	}

	return strings.Join(result, "\n")
}
