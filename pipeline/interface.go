package pipeline

import (
	"context"
	"fmt"

	"github.com/sokinpui/changepipe/internal/fs"
	"github.com/sokinpui/changepipe/model"
)

// Config for using changepipe as a library.
type Config struct {
	// Workspace that relative paths are resolved against. Empty uses the
	// paths as written.
	Workspace string
	// Filter by extension (e.g. ".go", ".ts").
	Extensions []string
}

// Apply extracts the edits in markdown and writes all of them to disk. It
// stops at the first failed write; the summary lists what was written and
// what failed.
func Apply(ctx context.Context, markdown string, config Config) (model.Summary, error) {
	s := NewSession(Options{
		FS:         fs.NewOS(),
		Workspace:  config.Workspace,
		Extensions: config.Extensions,
	})
	s.Propose(ctx, markdown)

	res, err := s.Orchestrator().AcceptAll(ctx)
	summary := res.Summary()
	if err != nil {
		summary.Message = err.Error()
		return summary, fmt.Errorf("apply changes: %w", err)
	}
	return summary, nil
}
