// Package editor shows proposed content to the user in a running editor.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/neovim/go-client/nvim"

	"github.com/sokinpui/changepipe/internal/logging"
)

// ErrNoEditor is returned when no editor instance can be reached.
var ErrNoEditor = errors.New("no running neovim instance (NVIM_LISTEN_ADDRESS unset)")

// Nop discards previews.
type Nop struct{}

func (Nop) Preview(context.Context, string, string) error { return nil }

// Nvim loads previews into buffers of a running Neovim instance.
type Nvim struct {
	v   *nvim.Nvim
	log logging.Logger
}

// Address returns the listen address of the surrounding Neovim, if any.
func Address() string {
	if addr := os.Getenv("NVIM_LISTEN_ADDRESS"); addr != "" {
		return addr
	}
	return os.Getenv("NVIM")
}

// Dial connects to the Neovim listening on addr. An empty addr uses
// Address().
func Dial(addr string, logger logging.Logger) (*Nvim, error) {
	if addr == "" {
		addr = Address()
	}
	if addr == "" {
		return nil, ErrNoEditor
	}
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("connect to neovim at %s: %w", addr, err)
	}
	return &Nvim{v: v, log: logging.OrNop(logger)}, nil
}

// Preview opens path in the current window and replaces the buffer with
// content. The buffer is left modified; nothing is saved. The buffer it
// replaces is hidden, so a run of previews works with 'nohidden' too.
func (n *Nvim) Preview(_ context.Context, path, content string) error {
	b := n.v.NewBatch()
	b.Command(fmt.Sprintf("execute 'hide buffer' bufnr(%s, 1)", vimString(path)))
	b.SetBufferLines(0, 0, -1, true, bufferLines(content))
	if err := b.Execute(); err != nil {
		return fmt.Errorf("update buffer %s: %w", path, err)
	}
	n.log.Debug("previewed file in neovim", "path", path)
	return nil
}

// SaveAll writes every modified buffer.
func (n *Nvim) SaveAll() error {
	return n.v.Command("wa!")
}

// Close disconnects from Neovim.
func (n *Nvim) Close() error {
	return n.v.Close()
}

func bufferLines(content string) [][]byte {
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(strings.TrimSuffix(l, "\r"))
	}
	return out
}

// vimString quotes s as a single-quoted Vim string literal.
func vimString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
