package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// OS is the local-disk capability.
type OS struct {
	// DirPerm is used for parent directories created on write.
	DirPerm os.FileMode
	// FilePerm is used for files created on write.
	FilePerm os.FileMode
}

// NewOS returns a local-disk capability with conventional permissions.
func NewOS() *OS {
	return &OS{DirPerm: 0o755, FilePerm: 0o644}
}

func (o *OS) ReadFile(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes content, creating missing parent directories first.
func (o *OS) WriteFile(_ context.Context, path, content string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, o.DirPerm); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	perm := o.FilePerm
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return os.WriteFile(path, []byte(content), perm)
}

// RemoveFile deletes path and then its parent directory if it became empty.
func (o *OS) RemoveFile(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	parent := filepath.Dir(path)
	if empty, _ := isEmpty(parent); empty {
		_ = os.Remove(parent)
	}
	return nil
}

func isEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
