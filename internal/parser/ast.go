package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock represents a parsed code block from markdown content.
type CodeBlock struct {
	// Info is the full info string after the opening fence, e.g. "ts:src/a.ts".
	Info string
	// Content is the raw text inside the code block.
	Content string
	// Closed is false when the document ends before the closing fence, which
	// happens while a response is still streaming.
	Closed bool
}

// ExtractCodeBlocks uses a markdown AST to find all fenced code blocks.
func ExtractCodeBlocks(source []byte) ([]CodeBlock, error) {
	var blocks []CodeBlock
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fencedCodeBlock, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var block CodeBlock
		end := -1
		if fencedCodeBlock.Info != nil {
			seg := fencedCodeBlock.Info.Segment
			block.Info = strings.TrimSpace(string(seg.Value(source)))
			end = seg.Stop
		}

		var content bytes.Buffer
		lines := fencedCodeBlock.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
			end = line.Stop
		}
		block.Content = content.String()
		block.Closed = end >= 0 && fenceClosed(source, end)

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}

	return blocks, nil
}

// fenceClosed reports whether the line following offset end is a closing
// fence.
func fenceClosed(source []byte, end int) bool {
	if end > len(source) {
		return false
	}
	rest := source[end:]
	if end > 0 && source[end-1] != '\n' {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			return false
		}
		rest = rest[nl+1:]
	}
	line := rest
	if nl := bytes.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	line = bytes.TrimSpace(line)
	return bytes.HasPrefix(line, []byte("```")) || bytes.HasPrefix(line, []byte("~~~"))
}
