package fs

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

// Reader reads the current content of a file.
type Reader interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// Writer replaces the content of a file, creating it when needed.
type Writer interface {
	WriteFile(ctx context.Context, path, content string) error
}

// Remover deletes a file. Only some capabilities support it.
type Remover interface {
	RemoveFile(ctx context.Context, path string) error
}

// FileSystem is the read/write capability the pipeline talks to. The
// pipeline never touches the disk directly.
type FileSystem interface {
	Reader
	Writer
}

var drivePrefixRegex = regexp.MustCompile(`^[A-Za-z]:`)

// IsAbs reports whether path is absolute on either a POSIX or a Windows host:
// a leading slash, a UNC or rooted backslash, or a drive letter.
func IsAbs(path string) bool {
	switch {
	case strings.HasPrefix(path, "/"), strings.HasPrefix(path, `\`):
		return true
	case drivePrefixRegex.MatchString(path):
		return true
	default:
		return filepath.IsAbs(path)
	}
}

// PathResolver maps the paths a model writes into paths on disk.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver rooted at the workspace. An empty root
// means no workspace is known.
func NewPathResolver(root string) *PathResolver {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &PathResolver{root: root}
}

// Root returns the workspace root, or "" when none is set.
func (r *PathResolver) Root() string {
	if r == nil {
		return ""
	}
	return r.root
}

// Resolve returns absolute paths unchanged and joins relative ones under the
// workspace root. Without a root the raw path is returned and any failure is
// left to the write itself.
func (r *PathResolver) Resolve(path string) string {
	if IsAbs(path) || r.Root() == "" {
		return path
	}
	return filepath.Join(r.root, path)
}

// Relative converts a resolved path back to a workspace-relative one for
// display. Paths outside the workspace are returned unchanged.
func (r *PathResolver) Relative(path string) string {
	if r.Root() == "" {
		return path
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
