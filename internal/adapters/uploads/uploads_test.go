package uploads

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
)

// pngHeader is enough for content sniffing to classify the data as PNG.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newStore(t *testing.T, max int64) (*DiskStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewDiskStore(dir, max)
	require.NoError(t, err)
	return store, dir
}

func TestDiskStore_SaveOpenDelete(t *testing.T) {
	store, dir := newStore(t, 0)
	ctx := context.Background()

	key, err := store.Save(ctx, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".png"), "key %q", key)
	assert.FileExists(t, filepath.Join(dir, key))

	f, ct, err := store.Open(key)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", ct)

	require.NoError(t, store.Delete(ctx, key))
	assert.NoFileExists(t, filepath.Join(dir, key))
	assert.NoError(t, store.Delete(ctx, key), "deleting a missing file is not an error")
	assert.NoError(t, store.Delete(ctx, ""), "no image, nothing to delete")
}

func TestDiskStore_KeysAreUnique(t *testing.T) {
	store, _ := newStore(t, 0)
	a, err := store.Save(context.Background(), bytes.NewReader(pngHeader))
	require.NoError(t, err)
	b, err := store.Save(context.Background(), bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDiskStore_Rejections(t *testing.T) {
	store, dir := newStore(t, 32)
	ctx := context.Background()

	_, err := store.Save(ctx, bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = store.Save(ctx, strings.NewReader("#!/bin/sh\necho pwned\n"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = store.Save(ctx, bytes.NewReader(append(pngHeader, make([]byte, 64)...)))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")
}

func TestDiskStore_RejectsTraversalKeys(t *testing.T) {
	store, _ := newStore(t, 0)
	for _, key := range []string{"../secret", "a/b.png", ".hidden", "/etc/passwd"} {
		_, _, err := store.Open(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, store.Delete(context.Background(), key), ErrInvalidKey, key)
	}
}

func TestDiskStore_OpenMissing(t *testing.T) {
	store, _ := newStore(t, 0)
	_, _, err := store.Open("0b7c1f7e-missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}
