// Package journal records applied writes so a batch can be undone and
// redone later.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/sokinpui/changepipe/internal/fs"
	"github.com/sokinpui/changepipe/internal/logging"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Entry is one written file inside a batch. Path is the resolved path that
// was written.
type Entry struct {
	Path      string
	Original  string
	Content   string
	IsNewFile bool
}

// Report lists the outcome of an undo or redo per path.
type Report struct {
	BatchID   string
	Succeeded []string
	Failed    []string
}

// Journal is a history of applied batches stored in SQLite. Recording a new
// batch discards every batch that is currently undone.
type Journal struct {
	db  *sql.DB
	now func() time.Time
	log logging.Logger
}

// Option configures a Journal.
type Option func(*Journal)

func WithLogger(l logging.Logger) Option {
	return func(j *Journal) { j.log = logging.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open opens (and migrates) the journal database at path.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	j, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an open database and runs migrations on it.
func New(db *sql.DB, opts ...Option) (*Journal, error) {
	j := &Journal{db: db, now: time.Now, log: logging.Nop()}
	for _, opt := range opts {
		opt(j)
	}
	goose.SetLogger(gooseLogger{j.log})
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends entry to batch batchID, creating the batch when it is new.
func (j *Journal) Record(ctx context.Context, batchID string, entry Entry) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = ?)`, batchID).Scan(&exists); err != nil {
		return fmt.Errorf("look up batch: %w", err)
	}
	if !exists {
		if err := truncateRedo(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, seq, created_at) VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM batches), ?)`,
			batchID, j.now().UTC().Unix(),
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (batch_id, path, original, content, content_hash, is_new_file) VALUES (?, ?, ?, ?, ?, ?)`,
		batchID, entry.Path, entry.Original, entry.Content, hash(entry.Content), entry.IsNewFile,
	); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return tx.Commit()
}

// truncateRedo drops every undone batch, like a history pointer that is
// moved forward after an undo.
func truncateRedo(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE batch_id IN (SELECT id FROM batches WHERE reverted = 1)`); err != nil {
		return fmt.Errorf("discard undone entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE reverted = 1`); err != nil {
		return fmt.Errorf("discard undone batches: %w", err)
	}
	return nil
}

type storedEntry struct {
	Entry
	hash string
}

// Undo reverts the most recent batch that is not already undone. A file is
// only touched when its current content still matches what was written;
// otherwise it is reported as failed and left alone. Files the batch created
// are removed when fsys supports removal.
func (j *Journal) Undo(ctx context.Context, fsys fs.FileSystem) (Report, error) {
	batchID, err := j.pickBatch(ctx, `SELECT id FROM batches WHERE reverted = 0 ORDER BY seq DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNothingToUndo
	}
	if err != nil {
		return Report{}, err
	}
	entries, err := j.entries(ctx, batchID, "DESC")
	if err != nil {
		return Report{}, err
	}

	report := Report{BatchID: batchID}
	for _, e := range entries {
		if err := j.undoEntry(ctx, fsys, e); err != nil {
			j.log.Warn("undo skipped file", "path", e.Path, "error", err)
			report.Failed = append(report.Failed, e.Path)
			continue
		}
		report.Succeeded = append(report.Succeeded, e.Path)
	}
	return report, j.setReverted(ctx, batchID, true)
}

func (j *Journal) undoEntry(ctx context.Context, fsys fs.FileSystem, e storedEntry) error {
	current, err := fsys.ReadFile(ctx, e.Path)
	if err != nil {
		if e.IsNewFile {
			// Already gone.
			return nil
		}
		return fmt.Errorf("read current content: %w", err)
	}
	if hash(current) != e.hash {
		return errors.New("file changed since it was written")
	}

	if e.IsNewFile {
		remover, ok := fsys.(fs.Remover)
		if !ok {
			return errors.New("filesystem cannot remove files")
		}
		return remover.RemoveFile(ctx, e.Path)
	}
	return fsys.WriteFile(ctx, e.Path, e.Original)
}

// Redo re-applies the most recently undone batch.
func (j *Journal) Redo(ctx context.Context, fsys fs.FileSystem) (Report, error) {
	batchID, err := j.pickBatch(ctx, `SELECT id FROM batches WHERE reverted = 1 ORDER BY seq ASC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNothingToRedo
	}
	if err != nil {
		return Report{}, err
	}
	entries, err := j.entries(ctx, batchID, "ASC")
	if err != nil {
		return Report{}, err
	}

	report := Report{BatchID: batchID}
	for _, e := range entries {
		if err := j.redoEntry(ctx, fsys, e); err != nil {
			j.log.Warn("redo skipped file", "path", e.Path, "error", err)
			report.Failed = append(report.Failed, e.Path)
			continue
		}
		report.Succeeded = append(report.Succeeded, e.Path)
	}
	return report, j.setReverted(ctx, batchID, false)
}

func (j *Journal) redoEntry(ctx context.Context, fsys fs.FileSystem, e storedEntry) error {
	current, err := fsys.ReadFile(ctx, e.Path)
	switch {
	case err != nil && !e.IsNewFile:
		return fmt.Errorf("read current content: %w", err)
	case err == nil && e.IsNewFile:
		return errors.New("file exists again")
	case err == nil && current != e.Original:
		return errors.New("file changed since it was undone")
	}
	return fsys.WriteFile(ctx, e.Path, e.Content)
}

// CanUndo and CanRedo report whether Undo or Redo has anything to do.
func (j *Journal) CanUndo(ctx context.Context) (bool, error) {
	return j.exists(ctx, 0)
}

func (j *Journal) CanRedo(ctx context.Context) (bool, error) {
	return j.exists(ctx, 1)
}

func (j *Journal) exists(ctx context.Context, reverted int) (bool, error) {
	var ok bool
	err := j.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE reverted = ?)`, reverted).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query journal: %w", err)
	}
	return ok, nil
}

func (j *Journal) pickBatch(ctx context.Context, query string) (string, error) {
	var id string
	if err := j.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("select batch: %w", err)
	}
	return id, nil
}

func (j *Journal) entries(ctx context.Context, batchID, order string) ([]storedEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT path, original, content, content_hash, is_new_file FROM entries WHERE batch_id = ? ORDER BY id `+order,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []storedEntry
	for rows.Next() {
		var e storedEntry
		if err := rows.Scan(&e.Path, &e.Original, &e.Content, &e.hash, &e.IsNewFile); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) setReverted(ctx context.Context, batchID string, reverted bool) error {
	if _, err := j.db.ExecContext(ctx, `UPDATE batches SET reverted = ? WHERE id = ?`, reverted, batchID); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

func hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type gooseLogger struct{ log logging.Logger }

func (g gooseLogger) Printf(format string, v ...any) { g.log.Debug(fmt.Sprintf(format, v...)) }
func (g gooseLogger) Fatalf(format string, v ...any) { g.log.Error(fmt.Sprintf(format, v...)) }
