// Package pipeline bundles the extraction, review and apply steps of one AI
// turn behind a single Session.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sokinpui/changepipe/internal/apply"
	"github.com/sokinpui/changepipe/internal/changeset"
	"github.com/sokinpui/changepipe/internal/diff"
	"github.com/sokinpui/changepipe/internal/fs"
	"github.com/sokinpui/changepipe/internal/ingest"
	"github.com/sokinpui/changepipe/internal/logging"
	"github.com/sokinpui/changepipe/internal/parser"
	"github.com/sokinpui/changepipe/model"
)

// Options configures a Session. Only FS is required.
type Options struct {
	FS         fs.FileSystem
	Workspace  string
	Extensions []string
	Previewer  apply.Previewer
	Recorder   apply.Recorder
	Logger     logging.Logger
	// Progress is called after each write of a batch.
	Progress func(done, total int)
}

// Session owns the state of one AI turn: the streamed thinking document,
// the proposed changes and the orchestrator that writes them. Nothing is
// shared between sessions.
type Session struct {
	fsys      fs.FileSystem
	resolver  *fs.PathResolver
	extractor *parser.Extractor
	set       *changeset.Set
	orch      *apply.Orchestrator
	ingestor  *ingest.Ingestor
	log       logging.Logger
}

// NewSession creates a Session.
func NewSession(opts Options) *Session {
	log := logging.OrNop(opts.Logger)
	resolver := fs.NewPathResolver(opts.Workspace)
	set := changeset.New()

	applyOpts := []apply.Option{apply.WithLogger(log)}
	if opts.Previewer != nil {
		applyOpts = append(applyOpts, apply.WithPreviewer(opts.Previewer))
	}
	if opts.Recorder != nil {
		applyOpts = append(applyOpts, apply.WithRecorder(opts.Recorder))
	}
	if opts.Progress != nil {
		applyOpts = append(applyOpts, apply.WithProgress(opts.Progress))
	}

	return &Session{
		fsys:      opts.FS,
		resolver:  resolver,
		extractor: &parser.Extractor{Extensions: opts.Extensions, Logger: log},
		set:       set,
		orch:      apply.New(set, opts.FS, resolver, applyOpts...),
		ingestor:  ingest.New(ingest.WithLogger(log)),
		log:       log,
	}
}

// Proposal is the result of reading one model response.
type Proposal struct {
	Changes []model.FileChange
	// Warnings flags proposals that need a closer look, such as content
	// that still carries merge conflict markers.
	Warnings []string
}

// Propose extracts the edits in markdown, resolves them against the
// filesystem and appends them to the change set as pending.
func (s *Session) Propose(ctx context.Context, markdown string) Proposal {
	intents := s.extractor.Extract(markdown)
	resolved := parser.Resolve(ctx, intents, s.fsys, s.resolver, s.log)
	added := s.set.AddBatch(resolved)

	var warnings []string
	for _, c := range added {
		if n := len(diff.ParseConflicts(c.NewContent)); n > 0 {
			warnings = append(warnings, fmt.Sprintf("%s contains %d unresolved conflict block(s)", c.FilePath, n))
		}
	}
	s.log.Info("proposed changes", "count", len(added), "warnings", len(warnings))
	return Proposal{Changes: added, Warnings: warnings}
}

// Ingest feeds one streamed chunk of a thinking document.
func (s *Session) Ingest(chunk string) model.ThinkingOutput {
	return s.ingestor.Append(chunk)
}

// FinishStream finalizes the thinking document.
func (s *Session) FinishStream() model.ThinkingOutput {
	return s.ingestor.Finish()
}

// Diff returns the rendered diff of one change.
func (s *Session) Diff(id string) ([]model.DiffLine, bool) {
	c, ok := s.set.Get(id)
	if !ok {
		return nil, false
	}
	return diff.Lines(c.OriginalContent, c.NewContent), true
}

// Summary groups the changes by outcome. Pending changes are not listed.
func (s *Session) Summary() model.Summary {
	var sum model.Summary
	for _, c := range s.set.List() {
		switch c.Status {
		case model.StatusAccepted:
			if c.IsNewFile {
				sum.Created = append(sum.Created, c.FilePath)
			} else {
				sum.Modified = append(sum.Modified, c.FilePath)
			}
		case model.StatusRejected:
			sum.Rejected = append(sum.Rejected, c.FilePath)
		}
	}
	return sum
}

// NewTurn discards the changes and the streamed document.
func (s *Session) NewTurn() {
	s.orch.Clear()
	s.ingestor.Reset()
}

func (s *Session) Changes() *changeset.Set            { return s.set }
func (s *Session) Orchestrator() *apply.Orchestrator { return s.orch }
func (s *Session) Ingestor() *ingest.Ingestor        { return s.ingestor }
func (s *Session) Resolver() *fs.PathResolver        { return s.resolver }
