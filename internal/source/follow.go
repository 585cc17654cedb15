package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sokinpui/changepipe/internal/logging"
)

// Follower tails a file that another process is still writing, such as a
// streamed model response, and emits each appended piece as a chunk.
type Follower struct {
	Path string
	// Idle ends the stream when the file has not grown for this long.
	// Zero means follow until the context ends.
	Idle   time.Duration
	Logger logging.Logger
}

// Run sends appended content to out until ctx ends or the file goes idle.
// Content already in the file is sent first. out is closed on return. If the
// file shrinks, it is treated as rewritten and read again from the start.
func (f *Follower) Run(ctx context.Context, out chan<- string) error {
	defer close(out)
	log := logging.OrNop(f.Logger)

	path, err := filepath.Abs(f.Path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", f.Path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so the file may be created after we start.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	var offset int64
	readNew := func() error {
		chunk, next, err := readFrom(path, offset)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		offset = next
		if chunk == "" {
			return nil
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
		}
		return nil
	}
	if err := readNew(); err != nil {
		return err
	}

	var idle <-chan time.Time
	var timer *time.Timer
	if f.Idle > 0 {
		timer = time.NewTimer(f.Idle)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
			log.Debug("follow idle, ending stream", "path", path, "bytes", offset)
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			before := offset
			if err := readNew(); err != nil {
				return err
			}
			if timer != nil && offset != before {
				timer.Reset(f.Idle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "path", path, "error", err)
		}
	}
}

// readFrom returns the content of path after offset and the new offset.
func readFrom(path string, offset int64) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", offset, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", offset, err
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return "", offset, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", offset, err
	}
	return string(data), offset + int64(len(data)), nil
}
