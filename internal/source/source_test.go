package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_Clipboard(t *testing.T) {
	p := &Provider{ReadClipboard: func() (string, error) { return "```go:a.go\nx\n```", nil }}

	content, origin, err := p.Content()
	require.NoError(t, err)
	assert.Equal(t, OriginClipboard, origin)
	assert.Contains(t, content, "a.go")
}

func TestContent_EmptyClipboard(t *testing.T) {
	p := &Provider{ReadClipboard: func() (string, error) { return "  \n", nil }}

	content, _, err := p.Content()
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestContent_ClipboardError(t *testing.T) {
	p := &Provider{ReadClipboard: func() (string, error) { return "", errors.New("no display") }}

	_, _, err := p.Content()
	assert.ErrorContains(t, err, "no display")
}

func TestContent_PipedStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.md")
	require.NoError(t, os.WriteFile(path, []byte("from pipe"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	p := &Provider{Stdin: f}
	content, origin, err := p.Content()
	require.NoError(t, err)
	assert.Equal(t, OriginStdin, origin)
	assert.Equal(t, "from pipe", content)
}

func TestFollower(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"final_answer": "a`), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := make(chan string)
	f := &Follower{Path: path, Idle: 500 * time.Millisecond}
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx, out) }()

	first := <-out
	assert.Equal(t, `{"final_answer": "a`, first)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString(`bc"}`)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	var rest strings.Builder
	for chunk := range out {
		rest.WriteString(chunk)
	}
	assert.Equal(t, `bc"}`, rest.String())
	assert.NoError(t, <-errc)
}

func TestReadFrom_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))

	chunk, next, err := readFrom(path, 100)
	require.NoError(t, err)
	assert.Equal(t, "short", chunk)
	assert.Equal(t, int64(5), next)
}
