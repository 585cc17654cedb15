// Package highlight renders syntax-highlighted diff lines for the terminal.
package highlight

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/sokinpui/changepipe/model"
)

const DefaultStyle = "monokai"

// Highlighter colours single lines of one file. A nil Highlighter returns
// text unchanged.
type Highlighter struct {
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter chroma.Formatter
}

// New picks a lexer by language name, then by filename, then falls back to
// plain text. An unknown style name uses chroma's fallback style.
func New(language, filename, styleName string) *Highlighter {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Match(filename)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	if styleName == "" {
		styleName = DefaultStyle
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	return &Highlighter{
		lexer:     chroma.Coalesce(lexer),
		style:     styles.Get(styleName),
		formatter: formatter,
	}
}

// Line highlights one line of source. On any error the text is returned
// as is.
func (h *Highlighter) Line(text string) string {
	if h == nil || text == "" {
		return text
	}
	it, err := h.lexer.Tokenise(nil, text)
	if err != nil {
		return text
	}
	var b strings.Builder
	if err := h.formatter.Format(&b, h.style, it); err != nil {
		return text
	}
	// Lexers that ensure a trailing newline add one we never asked for.
	return strings.ReplaceAll(b.String(), "\n", "")
}

// Diff renders diff lines with a +/-/space gutter and highlighted text.
func (h *Highlighter) Diff(lines []model.DiffLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = Gutter(l.Kind) + h.Line(l.Text)
	}
	return out
}

// Gutter returns the two-column prefix for a diff line kind.
func Gutter(kind model.DiffKind) string {
	switch kind {
	case model.DiffAdded:
		return "+ "
	case model.DiffRemoved:
		return "- "
	default:
		return "  "
	}
}
