package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/changepipe/cli"
	"github.com/sokinpui/changepipe/internal/ui"
)

const response = "Here you go:\n\n```go:pkg/a.go\npackage pkg\n```\n"

type fixture struct {
	dir, input, journal string
}

func newFixture(t *testing.T, markdown string) fixture {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(t.TempDir(), "response.md")
	require.NoError(t, os.WriteFile(input, []byte(markdown), 0o644))

	prev := ui.Out
	ui.Out = io.Discard
	t.Cleanup(func() { ui.Out = prev })

	return fixture{dir: dir, input: input, journal: filepath.Join(t.TempDir(), "journal.db")}
}

func (f fixture) run(t *testing.T, mutate func(*cli.Config)) *App {
	t.Helper()
	cfg := &cli.Config{
		Workspace:   f.dir,
		Input:       f.input,
		JournalPath: f.journal,
		Editor:      "none",
		NoAnimation: true,
	}
	mutate(cfg)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestExecute_YesThenUndoRedo(t *testing.T) {
	f := newFixture(t, response)
	target := filepath.Join(f.dir, "pkg", "a.go")

	a := f.run(t, func(c *cli.Config) { c.Yes = true })
	assert.False(t, a.Interactive())
	summary, err := a.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/a.go"}, summary.Created)
	assert.FileExists(t, target)
	require.NoError(t, a.Close())

	a = f.run(t, func(c *cli.Config) { c.Undo = true })
	summary, err = a.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("pkg", "a.go")}, summary.Modified)
	assert.NoFileExists(t, target)
	require.NoError(t, a.Close())

	a = f.run(t, func(c *cli.Config) { c.Redo = true })
	summary, err = a.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Redid 1 file(s).", summary.Message)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "package pkg", string(data))
}

func TestExecute_NothingToUndo(t *testing.T) {
	f := newFixture(t, response)
	a := f.run(t, func(c *cli.Config) { c.Undo = true })

	summary, err := a.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Nothing to undo.", summary.Message)
}

func TestExecute_RejectAllWritesNothing(t *testing.T) {
	f := newFixture(t, response)
	a := f.run(t, func(c *cli.Config) { c.RejectAll = true })

	summary, err := a.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/a.go"}, summary.Rejected)
	assert.NoDirExists(t, filepath.Join(f.dir, "pkg"))
}

func TestExecute_EmptySource(t *testing.T) {
	f := newFixture(t, "   \n")
	a := f.run(t, func(c *cli.Config) { c.Yes = true })

	summary, err := a.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Source is empty. Nothing to process.", summary.Message)
}

func TestExecute_NoEdits(t *testing.T) {
	f := newFixture(t, "no code here")
	a := f.run(t, func(c *cli.Config) { c.Yes = true })

	summary, err := a.Execute(context.Background())
	require.NoError(t, err)
	assert.Contains(t, summary.Message, "No valid changes")
}

func TestNew_BufferNeedsEditor(t *testing.T) {
	f := newFixture(t, response)
	_, err := New(context.Background(), &cli.Config{Workspace: f.dir, Buffer: true, Editor: "none", NoJournal: true})
	assert.Error(t, err)
}

func TestCollect_Thinking(t *testing.T) {
	f := newFixture(t, response)
	a := f.run(t, func(c *cli.Config) { c.NoJournal = true })

	ch := make(chan string, 2)
	ch <- `{"ui": {"mode": "answering"}, "final_answer": "done`
	ch <- `!"}`
	close(ch)

	got, err := a.Collect(context.Background(), Input{Chunks: ch, Thinking: true})
	require.NoError(t, err)
	assert.Equal(t, "done!", got)
}

func TestDetailedError(t *testing.T) {
	inner := os.ErrClosed
	err := &DetailedError{Err: inner, Stack: []byte("stack")}
	assert.Equal(t, inner.Error(), err.Error())
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestExecute_YesReportsWriteFailure(t *testing.T) {
	f := newFixture(t, response)
	// A file where the directory should be makes the write fail.
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "pkg"), []byte("blocker"), 0o644))
	a := f.run(t, func(c *cli.Config) { c.Yes = true })

	summary, err := a.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pkg/a.go")
	assert.Equal(t, []string{"pkg/a.go"}, summary.Failed)
	assert.Empty(t, summary.Created)
	assert.Equal(t, err.Error(), summary.Message)
}
