package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sokinpui/changepipe/internal/diff"
	"github.com/sokinpui/changepipe/model"
)

func TestLine(t *testing.T) {
	h := New("go", "main.go", "")
	out := h.Line("package main")
	assert.Contains(t, out, "package")
	assert.Contains(t, out, "\x1b[")
	assert.NotContains(t, out, "\n")
}

func TestLine_FallbacksKeepText(t *testing.T) {
	h := New("nosuchlang", "file.nosuchext", "nosuchstyle")
	assert.Contains(t, h.Line("just text"), "just text")

	var nilHighlighter *Highlighter
	assert.Equal(t, "raw", nilHighlighter.Line("raw"))
}

func TestDiff(t *testing.T) {
	var h *Highlighter
	lines := diff.Lines("a\nb", "a\nc")
	assert.Equal(t, []string{"  a", "- b", "+ c"}, h.Diff(lines))
	assert.Equal(t, "+ ", Gutter(model.DiffAdded))
}
