package fs_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/storage/fs"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: tmp})
	require.NoError(t, err)
	ctx := context.Background()
	locator := "/videos/abc.mp4"

	n, err := backend.Write(ctx, locator, bytes.NewReader([]byte("hello fs")))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	ok, err := backend.Exists(ctx, locator)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := backend.Open(ctx, locator)
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "hello fs", string(got))

	path, err := backend.LocalPath(locator)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "videos", "abc.mp4"), path)

	existed, err := backend.Delete(ctx, locator)
	require.NoError(t, err)
	assert.True(t, existed)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Empty parent directories are pruned
	_, err = os.Stat(filepath.Join(tmp, "videos"))
	assert.True(t, os.IsNotExist(err))
}

func TestFSBackend_DeleteMissing(t *testing.T) {
	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	existed, err := backend.Delete(context.Background(), "/videos/missing.mp4")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestFSBackend_OpenMissing(t *testing.T) {
	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = backend.Open(context.Background(), "/videos/missing.mp4")
	assert.ErrorIs(t, err, simpleasset.ErrBlobNotFound)
}

func TestFSBackend_TraversalStaysInsideBase(t *testing.T) {
	tmp := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: tmp})
	require.NoError(t, err)

	path, err := backend.LocalPath("/videos/../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, tmp))

	_, err = backend.LocalPath("/")
	assert.Error(t, err)
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)
}
