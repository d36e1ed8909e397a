package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// Backend is a filesystem implementation of the simpleasset.BlobStore interface.
// Locators map onto paths below BaseDir; /videos/a.mp4 becomes <BaseDir>/videos/a.mp4.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

var (
	_ simpleasset.BlobStore         = (*Backend)(nil)
	_ simpleasset.LocalPathResolver = (*Backend)(nil)
)

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	base, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: base}, nil
}

// LocalPath returns the absolute path of a locator, refusing paths outside BaseDir.
func (b *Backend) LocalPath(locator string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(locator))
	p := filepath.Join(b.baseDir, clean)
	rel, err := filepath.Rel(b.baseDir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return p, nil
}

// Write stores the stream through a temp file in the target directory and renames it
// into place, so a failed write never leaves a partial blob under the locator.
func (b *Backend) Write(ctx context.Context, locator string, r io.Reader) (int64, error) {
	path, err := b.LocalPath(locator)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("failed to move file into place: %w", err)
	}
	return n, nil
}

// Delete removes a file and prunes directories left empty below BaseDir.
func (b *Backend) Delete(ctx context.Context, locator string) (bool, error) {
	path, err := b.LocalPath(locator)
	if err != nil {
		return false, err
	}

	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	// Clean up empty parent directories
	dir := filepath.Dir(path)
	for dir != b.baseDir && strings.HasPrefix(dir, b.baseDir) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return true, nil
}

func (b *Backend) Exists(ctx context.Context, locator string) (bool, error) {
	path, err := b.LocalPath(locator)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

func (b *Backend) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	path, err := b.LocalPath(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", locator, simpleasset.ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
