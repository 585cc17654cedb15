package apply

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/changepipe/internal/changeset"
	"github.com/sokinpui/changepipe/internal/fs"
	"github.com/sokinpui/changepipe/internal/journal"
	"github.com/sokinpui/changepipe/model"
)

// flakyFS fails writes to the paths in fail.
type flakyFS struct {
	*fs.Memory
	fail   map[string]bool
	writes []string
}

func (f *flakyFS) WriteFile(ctx context.Context, path, content string) error {
	f.writes = append(f.writes, path)
	if f.fail[path] {
		return errors.New("disk full")
	}
	return f.Memory.WriteFile(ctx, path, content)
}

type recordingPreviewer struct{ paths []string }

func (p *recordingPreviewer) Preview(_ context.Context, path, _ string) error {
	p.paths = append(p.paths, path)
	return nil
}

type recordingJournal struct{ batches map[string][]journal.Entry }

func (r *recordingJournal) Record(_ context.Context, batchID string, e journal.Entry) error {
	if r.batches == nil {
		r.batches = make(map[string][]journal.Entry)
	}
	r.batches[batchID] = append(r.batches[batchID], e)
	return nil
}

func newFixture(t *testing.T, failing ...string) (*Orchestrator, *changeset.Set, *flakyFS, *recordingPreviewer) {
	t.Helper()
	set := changeset.New()
	fsys := &flakyFS{Memory: fs.NewMemory(nil), fail: map[string]bool{}}
	for _, p := range failing {
		fsys.fail[p] = true
	}
	prev := &recordingPreviewer{}
	return New(set, fsys, fs.NewPathResolver("/ws"), WithPreviewer(prev)), set, fsys, prev
}

func TestAccept(t *testing.T) {
	ctx := context.Background()
	o, set, fsys, prev := newFixture(t)
	c := set.Add(model.FileChange{FilePath: "src/a.ts", NewContent: "export const x=1;", IsNewFile: true})

	ok, err := o.Accept(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := fsys.ReadFile(ctx, "/ws/src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "export const x=1;", got)
	assert.Equal(t, []string{"/ws/src/a.ts"}, prev.paths)

	stored, _ := set.Get(c.ID)
	assert.Equal(t, model.StatusAccepted, stored.Status)

	ok, err = o.Accept(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, fsys.writes, 1, "accepting twice writes once")
}

func TestAccept_UnknownAndRejected(t *testing.T) {
	ctx := context.Background()
	o, set, fsys, _ := newFixture(t)

	ok, err := o.Accept(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	c := set.Add(model.FileChange{FilePath: "a"})
	require.True(t, o.Reject(c.ID))
	ok, err = o.Accept(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.False(t, ok)
	assert.Empty(t, fsys.writes, "reject never touches the filesystem")
}

func TestAccept_WriteFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	o, set, _, prev := newFixture(t, "/ws/a.go")
	c := set.Add(model.FileChange{FilePath: "a.go", NewContent: "x"})

	ok, err := o.Accept(ctx, c.ID)
	assert.False(t, ok)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "a.go", werr.Path)
	assert.Equal(t, "failed to write a.go: disk full", err.Error())

	stored, _ := set.Get(c.ID)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Empty(t, prev.paths)
}

func TestAcceptAll_PartialFailure(t *testing.T) {
	ctx := context.Background()
	o, set, fsys, _ := newFixture(t, "/ws/two.go")
	added := set.AddBatch([]model.FileChange{
		{FilePath: "one.go", NewContent: "1"},
		{FilePath: "two.go", NewContent: "2"},
		{FilePath: "three.go", NewContent: "3"},
	})

	res, err := o.AcceptAll(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "two.go")
	assert.Equal(t, []string{"/ws/one.go", "/ws/two.go"}, fsys.writes, "writes stop at the first failure")

	statuses := make([]model.Status, 0, 3)
	for _, c := range added {
		stored, _ := set.Get(c.ID)
		statuses = append(statuses, stored.Status)
	}
	assert.Equal(t, []model.Status{model.StatusAccepted, model.StatusPending, model.StatusPending}, statuses)

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "one.go", res.Accepted[0].FilePath)
	assert.Equal(t, []string{"two.go"}, res.Failed)
	assert.Equal(t, []string{"three.go"}, res.Untried)
}

func TestAcceptAll_RecordsOneBatchAndReportsProgress(t *testing.T) {
	ctx := context.Background()
	set := changeset.New()
	rec := &recordingJournal{}
	var progress []int
	o := New(set, fs.NewMemory(nil), fs.NewPathResolver(""),
		WithRecorder(rec),
		WithProgress(func(done, total int) {
			assert.Equal(t, 2, total)
			progress = append(progress, done)
		}),
	)
	set.AddBatch([]model.FileChange{
		{FilePath: "a", NewContent: "1", IsNewFile: true},
		{FilePath: "b", OriginalContent: "0", NewContent: "2"},
	})
	rejected := set.Add(model.FileChange{FilePath: "c"})
	set.Reject(rejected.ID)

	res, err := o.AcceptAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, progress)

	require.Len(t, rec.batches, 1)
	for _, entries := range rec.batches {
		require.Len(t, entries, 2)
		assert.True(t, entries[0].IsNewFile)
		assert.Equal(t, "0", entries[1].Original)
	}

	summary := res.Summary()
	assert.Equal(t, []string{"a"}, summary.Created)
	assert.Equal(t, []string{"b"}, summary.Modified)
}

func TestAcceptAll_IgnoresCancellationOnceStarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	set := changeset.New()
	var sawCancel bool
	w := writerFunc(func(ctx context.Context, path, content string) error {
		cancel()
		sawCancel = sawCancel || ctx.Err() != nil
		return nil
	})
	o := New(set, w, nil)
	set.AddBatch([]model.FileChange{{FilePath: "a"}, {FilePath: "b"}})

	res, err := o.AcceptAll(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Accepted, 2)
	assert.False(t, sawCancel)
}

func TestStop(t *testing.T) {
	o, set, fsys, _ := newFixture(t)
	set.Add(model.FileChange{FilePath: "a"})

	o.Stop()
	_, err := o.AcceptAll(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, fsys.writes)

	o.Resume()
	_, err = o.AcceptAll(context.Background())
	assert.NoError(t, err)
}

func TestPreviewAll_DoesNotWrite(t *testing.T) {
	o, set, fsys, prev := newFixture(t)
	set.AddBatch([]model.FileChange{{FilePath: "a"}, {FilePath: "b"}})

	shown, failed := o.PreviewAll(context.Background())

	assert.Equal(t, []string{"a", "b"}, shown)
	assert.Empty(t, failed)
	assert.Equal(t, []string{"/ws/a", "/ws/b"}, prev.paths)
	assert.Empty(t, fsys.writes)
	pending, _, _ := set.Counts()
	assert.Equal(t, 2, pending)
}

type writerFunc func(ctx context.Context, path, content string) error

func (f writerFunc) WriteFile(ctx context.Context, path, content string) error {
	return f(ctx, path, content)
}

// gatedFS blocks every write until release is closed.
type gatedFS struct {
	*fs.Memory
	started chan string
	release chan struct{}
}

func newGatedFS(files map[string]string) *gatedFS {
	return &gatedFS{Memory: fs.NewMemory(files), started: make(chan string, 8), release: make(chan struct{})}
}

func (g *gatedFS) WriteFile(ctx context.Context, path, content string) error {
	if err := g.Memory.WriteFile(ctx, path, content); err != nil {
		return err
	}
	g.started <- path
	<-g.release
	return nil
}

func TestAccept_RejectedDuringWrite(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		change model.FileChange
		want   func(t *testing.T, mem *fs.Memory)
	}{
		{
			name:   "new file is removed",
			change: model.FileChange{FilePath: "a.go", NewContent: "new", IsNewFile: true},
			want: func(t *testing.T, mem *fs.Memory) {
				_, err := mem.ReadFile(context.Background(), "/ws/a.go")
				assert.Error(t, err)
			},
		},
		{
			name:   "existing file is restored",
			files:  map[string]string{"/ws/a.go": "old"},
			change: model.FileChange{FilePath: "a.go", OriginalContent: "old", NewContent: "new"},
			want: func(t *testing.T, mem *fs.Memory) {
				got, err := mem.ReadFile(context.Background(), "/ws/a.go")
				require.NoError(t, err)
				assert.Equal(t, "old", got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			set := changeset.New()
			gated := newGatedFS(tt.files)
			prev := &recordingPreviewer{}
			rec := &recordingJournal{}
			o := New(set, gated, fs.NewPathResolver("/ws"), WithPreviewer(prev), WithRecorder(rec))
			c := set.Add(tt.change)

			type result struct {
				ok  bool
				err error
			}
			done := make(chan result, 1)
			go func() {
				ok, err := o.Accept(ctx, c.ID)
				done <- result{ok, err}
			}()

			<-gated.started
			require.True(t, o.Reject(c.ID))
			close(gated.release)
			// The rollback of a modified file writes through the gate again.
			if !tt.change.IsNewFile {
				<-gated.started
			}
			res := <-done

			assert.False(t, res.ok)
			assert.ErrorIs(t, res.err, ErrNotPending)
			stored, _ := set.Get(c.ID)
			assert.Equal(t, model.StatusRejected, stored.Status)
			assert.Empty(t, prev.paths)
			assert.Empty(t, rec.batches)
			tt.want(t, gated.Memory)
		})
	}
}

func TestAcceptAll_SkipsChangeRejectedDuringWrite(t *testing.T) {
	ctx := context.Background()
	set := changeset.New()
	gated := newGatedFS(nil)
	o := New(set, gated, fs.NewPathResolver("/ws"))
	added := set.AddBatch([]model.FileChange{
		{FilePath: "a.go", NewContent: "a", IsNewFile: true},
		{FilePath: "b.go", NewContent: "b", IsNewFile: true},
	})

	type result struct {
		res Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := o.AcceptAll(ctx)
		done <- result{res, err}
	}()

	<-gated.started
	require.True(t, o.Reject(added[0].ID))
	close(gated.release)
	<-gated.started
	got := <-done

	require.NoError(t, got.err)
	require.Len(t, got.res.Accepted, 1)
	assert.Equal(t, "b.go", got.res.Accepted[0].FilePath)
	assert.Empty(t, got.res.Failed)
	assert.Equal(t, []string{"/ws/b.go"}, gated.Paths())
}
