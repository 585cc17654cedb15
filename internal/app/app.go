package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/sokinpui/changepipe/cli"
	"github.com/sokinpui/changepipe/internal/apply"
	"github.com/sokinpui/changepipe/internal/config"
	"github.com/sokinpui/changepipe/internal/diff"
	"github.com/sokinpui/changepipe/internal/editor"
	"github.com/sokinpui/changepipe/internal/fs"
	"github.com/sokinpui/changepipe/internal/highlight"
	"github.com/sokinpui/changepipe/internal/hostfs"
	"github.com/sokinpui/changepipe/internal/journal"
	"github.com/sokinpui/changepipe/internal/logging"
	"github.com/sokinpui/changepipe/internal/source"
	"github.com/sokinpui/changepipe/internal/ui"
	"github.com/sokinpui/changepipe/model"
	"github.com/sokinpui/changepipe/pipeline"
)

// followIdle ends a followed response once the writer has been quiet this long.
const followIdle = 3 * time.Second

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	log              logging.Logger
	fsys             fs.FileSystem
	editor           *editor.Nvim
	journal          *journal.Journal
	session          *pipeline.Session
	sourceProvider   *source.Provider
	progressCallback ProgressUpdate
	closers          []io.Closer
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// Input is the model response to review. One-shot sources set Content;
// followed files deliver Chunks until the writer goes idle.
type Input struct {
	Content string
	Chunks  <-chan string
	// Thinking reports that Chunks carry a thinking JSON document whose
	// final_answer holds the markdown.
	Thinking bool
}

// New creates a new App instance and connects its collaborators.
func New(ctx context.Context, cfg *cli.Config) (*App, error) {
	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	log, logCloser, err := logging.Open(cfg.LogFile, level)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:            cfg,
		log:            log,
		sourceProvider: source.New(),
		closers:        []io.Closer{logCloser},
	}

	workspace := cfg.Workspace
	if workspace == "" {
		if workspace, err = os.Getwd(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to determine workspace: %w", err)
		}
	}

	if err := a.connectFS(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.connectEditor(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openJournal(workspace); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	opts := pipeline.Options{
		FS:         a.fsys,
		Workspace:  workspace,
		Extensions: cfg.Extensions,
		Logger:     log,
		Progress:   a.reportProgress,
	}
	if a.editor != nil {
		opts.Previewer = a.editor
	}
	if a.journal != nil {
		opts.Recorder = a.journal
	}
	a.session = pipeline.NewSession(opts)
	return a, nil
}

func (a *App) connectFS(ctx context.Context) error {
	if a.cfg.HostRPC == "" {
		a.fsys = fs.NewOS()
		return nil
	}
	client, err := hostfs.Dial(ctx, a.cfg.HostRPC)
	if err != nil {
		return err
	}
	a.log.Info("using host filesystem", "addr", a.cfg.HostRPC)
	a.fsys = client
	a.closers = append(a.closers, client)
	return nil
}

func (a *App) connectEditor() error {
	if a.cfg.Editor == config.EditorNone {
		if a.cfg.Buffer {
			return errors.New("--buffer needs an editor, but editor is set to none")
		}
		return nil
	}
	nv, err := editor.Dial("", a.log)
	if err != nil {
		// Only an explicit choice, or buffer mode, requires neovim.
		if a.cfg.Editor == config.EditorNvim || a.cfg.Buffer {
			return err
		}
		a.log.Debug("no editor preview", "reason", err)
		return nil
	}
	a.editor = nv
	a.closers = append(a.closers, nv)
	return nil
}

func (a *App) openJournal(workspace string) error {
	if a.cfg.NoJournal {
		return nil
	}
	path := a.cfg.JournalPath
	if path == "" {
		path = journal.DefaultPath(workspace)
	}
	j, err := journal.Open(path, journal.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.journal = j
	a.closers = append(a.closers, j)
	return nil
}

// Close releases every connection in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

func (a *App) reportProgress(done, total int) {
	if a.progressCallback != nil {
		a.progressCallback(done, total)
	}
}

// Session exposes the review session for interactive front ends.
func (a *App) Session() *pipeline.Session { return a.session }

// Config returns the parsed configuration.
func (a *App) Config() *cli.Config { return a.cfg }

// Interactive reports whether the changes should be reviewed in the
// terminal UI rather than decided by flags.
func (a *App) Interactive() bool {
	c := a.cfg
	if c.Undo || c.Redo || c.Yes || c.RejectAll || c.Buffer {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Open determines the input. A followed file is tailed in the background
// until it goes idle or ctx ends.
func (a *App) Open(ctx context.Context) (Input, error) {
	path, thinking := a.cfg.Follow, false
	if a.cfg.Stream != "" {
		path, thinking = a.cfg.Stream, true
	}
	if path != "" {
		ch := make(chan string)
		f := &source.Follower{Path: path, Idle: followIdle, Logger: a.log}
		go func() {
			if err := f.Run(ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("follow failed", "path", path, "error", err)
			}
		}()
		return Input{Chunks: ch, Thinking: thinking}, nil
	}

	var (
		content string
		origin  source.Origin
		err     error
	)
	if a.cfg.Input != "" {
		content, origin, err = a.sourceProvider.File(a.cfg.Input)
	} else {
		content, origin, err = a.sourceProvider.Content()
	}
	if err != nil {
		return Input{}, err
	}
	a.log.Debug("read input", "origin", origin, "bytes", len(content))
	return Input{Content: content}, nil
}

// Collect drains a streamed input and returns its markdown.
func (a *App) Collect(ctx context.Context, in Input) (string, error) {
	if in.Chunks == nil {
		return in.Content, nil
	}
	if in.Thinking {
		out, err := a.session.Ingestor().Follow(ctx, in.Chunks, func(o model.ThinkingOutput) {
			a.log.Debug("thinking", "mode", o.UI.Mode, "trace", len(o.Trace))
		})
		return out.FinalAnswer, err
	}
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case chunk, ok := <-in.Chunks:
			if !ok {
				return b.String(), nil
			}
			b.WriteString(chunk)
		}
	}
}

// Execute runs the flag-driven, non-interactive path. When a batch write
// fails, the returned summary still lists what was written and what failed
// alongside the error.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Undo:
		return a.undoLastOperation(ctx)
	case a.cfg.Redo:
		return a.redoLastOperation(ctx)
	default:
		return a.processContent(ctx)
	}
}

func (a *App) processContent(ctx context.Context) (model.Summary, error) {
	in, err := a.Open(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	content, err := a.Collect(ctx, in)
	if err != nil {
		return model.Summary{}, err
	}
	if strings.TrimSpace(content) == "" {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}

	proposal := a.session.Propose(ctx, content)
	for _, w := range proposal.Warnings {
		ui.Warning("Warning: %s", w)
	}
	if len(proposal.Changes) == 0 {
		return model.Summary{Message: "No valid changes were generated. Nothing to do."}, nil
	}

	orch := a.session.Orchestrator()
	switch {
	case a.cfg.Yes:
		return a.acceptAll(ctx)
	case a.cfg.Buffer:
		shown, failed := orch.PreviewAll(ctx)
		return a.relative(model.Summary{
			Modified: shown,
			Failed:   failed,
			Message:  fmt.Sprintf("Loaded %d buffer(s) into Neovim. Nothing was written.", len(shown)),
		}), nil
	case a.cfg.RejectAll:
		a.printDiffs(proposal.Changes)
		orch.RejectAll()
		return a.relative(a.session.Summary()), nil
	default:
		ui.PrintChanges(proposal.Changes)
		return model.Summary{Message: "No terminal to review in. Re-run with --yes to apply or --reject-all to discard."}, nil
	}
}

func (a *App) acceptAll(ctx context.Context) (model.Summary, error) {
	var bar *ui.ProgressBar
	if !a.cfg.NoAnimation && a.progressCallback == nil {
		bar = ui.NewProgressBar(a.session.Changes().Len(), "Writing")
		a.progressCallback = bar.Set
		defer func() {
			a.progressCallback = nil
			bar.Finish()
		}()
	}
	summary, err := a.AcceptAll(ctx)
	if err != nil {
		a.log.Warn("batch stopped", "error", err)
	}
	return summary, err
}

// AcceptAll writes every pending change and saves the previewed buffers.
// The summary lists what was written and the path that failed.
func (a *App) AcceptAll(ctx context.Context) (model.Summary, error) {
	res, err := a.session.Orchestrator().AcceptAll(ctx)
	a.Sync()
	summary := res.Summary()
	if err != nil && !errors.Is(err, apply.ErrStopped) {
		summary.Message = err.Error()
	}
	return a.relative(summary), err
}

// Sync saves the editor buffers that previews left modified.
func (a *App) Sync() {
	if a.editor == nil {
		return
	}
	if err := a.editor.SaveAll(); err != nil {
		a.log.Warn("failed to save editor buffers", "error", err)
	}
}

// Summary returns the session outcome with paths relative to the workspace.
func (a *App) Summary() model.Summary {
	return a.relative(a.session.Summary())
}

func (a *App) printDiffs(changes []model.FileChange) {
	for _, c := range changes {
		ui.Header("\n%s %s", a.session.Resolver().Relative(c.FilePath), ui.Stats(c.Additions, c.Deletions))
		h := highlight.New(c.Language, c.FilePath, a.cfg.HighlightStyle)
		for _, line := range h.Diff(diff.Lines(c.OriginalContent, c.NewContent)) {
			fmt.Fprintln(ui.Out, line)
		}
	}
}

// undoLastOperation handles the undo logic.
func (a *App) undoLastOperation(ctx context.Context) (model.Summary, error) {
	if a.journal == nil {
		return model.Summary{}, errors.New("undo needs the journal, but it is disabled")
	}
	report, err := a.journal.Undo(ctx, a.fsys)
	if errors.Is(err, journal.ErrNothingToUndo) {
		return model.Summary{Message: "Nothing to undo."}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	a.Sync()
	return a.relative(model.Summary{
		Modified: report.Succeeded,
		Failed:   report.Failed,
		Message:  fmt.Sprintf("Reverted %d file(s).", len(report.Succeeded)),
	}), nil
}

// redoLastOperation handles the redo logic.
func (a *App) redoLastOperation(ctx context.Context) (model.Summary, error) {
	if a.journal == nil {
		return model.Summary{}, errors.New("redo needs the journal, but it is disabled")
	}
	report, err := a.journal.Redo(ctx, a.fsys)
	if errors.Is(err, journal.ErrNothingToRedo) {
		return model.Summary{Message: "Nothing to redo."}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	a.Sync()
	return a.relative(model.Summary{
		Modified: report.Succeeded,
		Failed:   report.Failed,
		Message:  fmt.Sprintf("Redid %d file(s).", len(report.Succeeded)),
	}), nil
}

func (a *App) relative(s model.Summary) model.Summary {
	rel := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = a.session.Resolver().Relative(p)
		}
		return out
	}
	s.Created = rel(s.Created)
	s.Modified = rel(s.Modified)
	s.Rejected = rel(s.Rejected)
	s.Failed = rel(s.Failed)
	return s
}
