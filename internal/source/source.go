// Package source reads model output from stdin, the clipboard or a file.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// Origin names where content came from.
type Origin string

const (
	OriginStdin     Origin = "stdin"
	OriginClipboard Origin = "clipboard"
	OriginFile      Origin = "file"
)

// Provider determines and retrieves the source content.
type Provider struct {
	Stdin         *os.File
	ReadClipboard func() (string, error)
}

// New creates a Provider over the process stdin and the system clipboard.
func New() *Provider {
	return &Provider{Stdin: os.Stdin, ReadClipboard: clipboard.ReadAll}
}

// Content reads stdin when it is piped and the clipboard otherwise. Empty
// clipboard content is not an error; the caller decides what to do with "".
func (p *Provider) Content() (string, Origin, error) {
	if p.stdinIsPiped() {
		content, err := io.ReadAll(p.Stdin)
		if err != nil {
			return "", OriginStdin, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), OriginStdin, nil
	}

	content, err := p.ReadClipboard()
	if err != nil {
		return "", OriginClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return "", OriginClipboard, nil
	}
	return content, OriginClipboard, nil
}

// File reads the whole file at path.
func (p *Provider) File(path string) (string, Origin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", OriginFile, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), OriginFile, nil
}

func (p *Provider) stdinIsPiped() bool {
	if p.Stdin == nil {
		return false
	}
	stat, err := p.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
