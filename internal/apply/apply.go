// Package apply owns the side-effect boundary of the pipeline: every file
// write and every editor preview goes through an Orchestrator.
package apply

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sokinpui/changepipe/internal/changeset"
	"github.com/sokinpui/changepipe/internal/fs"
	"github.com/sokinpui/changepipe/internal/journal"
	"github.com/sokinpui/changepipe/internal/logging"
	"github.com/sokinpui/changepipe/model"
)

var (
	// ErrNotPending is returned when accepting a change that was rejected.
	ErrNotPending = errors.New("change is not pending")
	// ErrStopped is returned when a batch is requested after Stop.
	ErrStopped = errors.New("apply stopped")
)

// WriteError reports a write that the filesystem capability refused.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Previewer shows new content to the user, typically in an editor buffer.
type Previewer interface {
	Preview(ctx context.Context, path, content string) error
}

// Recorder keeps a history of applied writes for undo.
type Recorder interface {
	Record(ctx context.Context, batchID string, entry journal.Entry) error
}

// Orchestrator writes accepted changes and notifies collaborators.
type Orchestrator struct {
	set      *changeset.Set
	writer   fs.Writer
	resolver *fs.PathResolver

	previewer Previewer
	recorder  Recorder
	log       logging.Logger
	progress  func(done, total int)

	stopped atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPreviewer(p Previewer) Option { return func(o *Orchestrator) { o.previewer = p } }

func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func WithLogger(l logging.Logger) Option { return func(o *Orchestrator) { o.log = logging.OrNop(l) } }

// WithProgress sets a callback invoked after each item of AcceptAll.
func WithProgress(fn func(done, total int)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New returns an Orchestrator over set that writes through w. Relative paths
// are resolved with resolver.
func New(set *changeset.Set, w fs.Writer, resolver *fs.PathResolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		set:      set,
		writer:   w,
		resolver: resolver,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Set returns the change set the orchestrator works on.
func (o *Orchestrator) Set() *changeset.Set { return o.set }

// Accept writes one change. An unknown id reports (false, nil). A failed
// write leaves the change pending and returns a *WriteError.
func (o *Orchestrator) Accept(ctx context.Context, id string) (bool, error) {
	change, ok := o.set.Get(id)
	if !ok {
		return false, nil
	}
	switch change.Status {
	case model.StatusAccepted:
		return true, nil
	case model.StatusRejected:
		return false, fmt.Errorf("%s: %w", change.FilePath, ErrNotPending)
	}

	if err := o.apply(ctx, uuid.NewString(), change); err != nil {
		return false, err
	}
	return true, nil
}

// Result describes how far a batch got.
type Result struct {
	Accepted []model.FileChange
	Failed   []string
	Untried  []string
}

// Summary groups the accepted changes for display.
func (r Result) Summary() model.Summary {
	var s model.Summary
	for _, c := range r.Accepted {
		if c.IsNewFile {
			s.Created = append(s.Created, c.FilePath)
		} else {
			s.Modified = append(s.Modified, c.FilePath)
		}
	}
	s.Failed = append(s.Failed, r.Failed...)
	return s
}

// AcceptAll writes every pending change in order, one at a time, and stops
// at the first failure. Changes written before the failure stay accepted;
// the failing change and the ones after it stay pending. Cancelling ctx does
// not interrupt a batch that has started.
func (o *Orchestrator) AcceptAll(ctx context.Context) (Result, error) {
	if o.stopped.Load() {
		return Result{}, ErrStopped
	}
	ctx = context.WithoutCancel(ctx)

	pending := o.set.Pending()
	batchID := uuid.NewString()
	o.log.Info("applying changes", "batch", batchID, "count", len(pending))

	var res Result
	for i, change := range pending {
		err := o.apply(ctx, batchID, change)
		if errors.Is(err, ErrNotPending) {
			// Rejected while the batch ran; the write was rolled back.
			o.log.Info("change left the batch", "batch", batchID, "path", change.FilePath)
			continue
		}
		if err != nil {
			res.Failed = append(res.Failed, change.FilePath)
			for _, rest := range pending[i+1:] {
				res.Untried = append(res.Untried, rest.FilePath)
			}
			o.log.Warn("batch aborted", "batch", batchID, "path", change.FilePath, "untried", len(res.Untried))
			return res, err
		}
		change.Status = model.StatusAccepted
		res.Accepted = append(res.Accepted, change)
		if o.progress != nil {
			o.progress(i+1, len(pending))
		}
	}
	return res, nil
}

// apply writes one change and, on success, marks it accepted, records it and
// previews it. Journal and preview failures are logged only. A change that
// stopped being pending during the write (rejected or cleared) has its write
// rolled back and is neither recorded nor previewed.
func (o *Orchestrator) apply(ctx context.Context, batchID string, change model.FileChange) error {
	path := o.resolver.Resolve(change.FilePath)
	if err := o.writer.WriteFile(ctx, path, change.NewContent); err != nil {
		o.log.Error("write failed", "path", path, "error", err)
		return &WriteError{Path: change.FilePath, Err: err}
	}
	if !o.set.MarkAccepted(change.ID) {
		o.rollback(ctx, path, change)
		return fmt.Errorf("%s: %w", change.FilePath, ErrNotPending)
	}
	o.log.Debug("wrote file", "path", path, "new", change.IsNewFile)

	if o.recorder != nil {
		entry := journal.Entry{
			Path:      path,
			Original:  change.OriginalContent,
			Content:   change.NewContent,
			IsNewFile: change.IsNewFile,
		}
		if err := o.recorder.Record(ctx, batchID, entry); err != nil {
			o.log.Warn("journal record failed", "path", path, "error", err)
		}
	}
	if o.previewer != nil {
		if err := o.previewer.Preview(ctx, path, change.NewContent); err != nil {
			o.log.Warn("preview failed", "path", path, "error", err)
		}
	}
	return nil
}

// rollback restores what was on disk before a write whose change was
// rejected while it ran.
func (o *Orchestrator) rollback(ctx context.Context, path string, change model.FileChange) {
	var err error
	if remover, ok := o.writer.(fs.Remover); ok && change.IsNewFile {
		err = remover.RemoveFile(ctx, path)
	} else {
		err = o.writer.WriteFile(ctx, path, change.OriginalContent)
	}
	if err != nil {
		o.log.Error("rollback failed", "path", path, "error", err)
		return
	}
	o.log.Info("rolled back write of rejected change", "path", path)
}

// Preview shows a change in the editor without writing it or changing its
// status.
func (o *Orchestrator) Preview(ctx context.Context, id string) error {
	change, ok := o.set.Get(id)
	if !ok {
		return fmt.Errorf("unknown change %q", id)
	}
	if o.previewer == nil {
		return nil
	}
	return o.previewer.Preview(ctx, o.resolver.Resolve(change.FilePath), change.NewContent)
}

// PreviewAll previews every pending change in order and returns the paths
// that could not be shown.
func (o *Orchestrator) PreviewAll(ctx context.Context) (shown, failed []string) {
	pending := o.set.Pending()
	for i, change := range pending {
		if err := o.Preview(ctx, change.ID); err != nil {
			o.log.Warn("preview failed", "path", change.FilePath, "error", err)
			failed = append(failed, change.FilePath)
		} else {
			shown = append(shown, change.FilePath)
		}
		if o.progress != nil {
			o.progress(i+1, len(pending))
		}
	}
	return shown, failed
}

// Reject marks a change rejected. It never touches the filesystem.
func (o *Orchestrator) Reject(id string) bool { return o.set.Reject(id) }

// RejectAll rejects every pending change.
func (o *Orchestrator) RejectAll() int { return o.set.RejectAll() }

// Clear discards all changes.
func (o *Orchestrator) Clear() { o.set.Clear() }

// Stop prevents new batches from starting. A batch already running is not
// interrupted.
func (o *Orchestrator) Stop() { o.stopped.Store(true) }

// Resume allows batches again after Stop.
func (o *Orchestrator) Resume() { o.stopped.Store(false) }
