// Package storage keeps run artifacts on disk and in a SQLite archive.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrOutsideRoot = errors.New("path escapes storage root")

// FileSystem stores files under a root directory. Every path is relative
// and may not leave the root.
type FileSystem struct {
	baseDir string
}

func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{
		baseDir: filepath.Clean(baseDir),
	}
}

// Root is the directory everything is stored under.
func (fsys *FileSystem) Root() string {
	return fsys.baseDir
}

// sanitizePath resolves path under the root, rejecting parent references
// and absolute paths.
func (fsys *FileSystem) sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("%w: parent directory reference in %q", ErrOutsideRoot, path)
	}
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%w: absolute path %q", ErrOutsideRoot, path)
	}

	fullPath := filepath.Join(fsys.baseDir, cleaned)
	if !strings.HasPrefix(fullPath, fsys.baseDir+string(filepath.Separator)) && fullPath != fsys.baseDir {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, path)
	}
	return fullPath, nil
}

func (fsys *FileSystem) Save(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := fsys.sanitizePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// checkpoints carry the premise and story state
	mode := os.FileMode(0o644)
	if strings.HasPrefix(filepath.ToSlash(path), "checkpoints/") || strings.Contains(path, ".env") {
		mode = 0o600
	}

	// write then rename so a crash never leaves a torn checkpoint
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func (fsys *FileSystem) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := fsys.sanitizePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// List returns the root-relative, slash-separated paths matching a glob
// pattern, sorted.
func (fsys *FileSystem) List(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned := filepath.Clean(filepath.FromSlash(pattern))
	if strings.Contains(cleaned, "..") || filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("%w: pattern %q", ErrOutsideRoot, pattern)
	}

	matches, err := filepath.Glob(filepath.Join(fsys.baseDir, cleaned))
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	results := make([]string, 0, len(matches))
	for _, match := range matches {
		if !strings.HasPrefix(match, fsys.baseDir+string(filepath.Separator)) {
			continue
		}
		rel, err := filepath.Rel(fsys.baseDir, match)
		if err != nil {
			continue
		}
		results = append(results, filepath.ToSlash(rel))
	}
	sort.Strings(results)
	return results, nil
}

func (fsys *FileSystem) Exists(ctx context.Context, path string) bool {
	fullPath, err := fsys.sanitizePath(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// Delete removes a file. Deleting a missing file is not an error.
func (fsys *FileSystem) Delete(ctx context.Context, path string) error {
	fullPath, err := fsys.sanitizePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
