package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// Backend is an in-memory implementation of the simpleasset.BlobStore interface
type Backend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ simpleasset.BlobStore = (*Backend)(nil)

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		blobs: make(map[string][]byte),
	}
}

func (b *Backend) Write(ctx context.Context, locator string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), fmt.Errorf("failed to read data: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[locator] = data
	return int64(len(data)), nil
}

func (b *Backend) Delete(ctx context.Context, locator string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.blobs[locator]
	delete(b.blobs, locator)
	return ok, nil
}

func (b *Backend) Exists(ctx context.Context, locator string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.blobs[locator]
	return ok, nil
}

func (b *Backend) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("%s: %w", locator, simpleasset.ErrBlobNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Len returns the number of stored blobs.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}

// Locators returns the stored locators in no particular order.
func (b *Backend) Locators() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.blobs))
	for k := range b.blobs {
		out = append(out, k)
	}
	return out
}
