package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	hfs "github.com/hupe1980/histore/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	data := []byte("hello world, this is a snapshot blob")
	require.NoError(t, store.Put(ctx, "snapshots/0001.snap", data))

	_, err := os.Stat(filepath.Join(tmpDir, "snapshots", "0001.snap"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, "snapshots/0001.snap")
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	_, err = blob.ReadAt(buf, 1000)
	assert.ErrorIs(t, err, io.EOF)

	m, ok := blob.(Mappable)
	require.True(t, ok)
	mapped, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, mapped)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snapshots/0001.snap")))
	require.NoError(t, store.Put(ctx, "snapshots/0002.snap", []byte("x")))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CURRENT", "snapshots/0001.snap", "snapshots/0002.snap"}, names)

	names, err = store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/0001.snap", "snapshots/0002.snap"}, names)

	require.NoError(t, store.Delete(ctx, "snapshots/0001.snap"))
	require.NoError(t, store.Delete(ctx, "snapshots/0001.snap"))

	_, err = store.Open(ctx, "snapshots/0001.snap")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_PutKeepsOldOnFailedRename(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	faulty := hfs.NewFaultyFS(nil)
	store := NewLocalStoreFS(dir, faulty)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("old")))

	faulty.AddRule("CURRENT", hfs.Fault{FailAfterBytes: -1, FailOnRename: true})
	err := store.Put(ctx, "CURRENT", []byte("new"))
	require.ErrorIs(t, err, hfs.ErrInjected)

	got, err := ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CURRENT"}, names)
}

func TestLocalStore_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewLocalStore(t.TempDir())
	assert.ErrorIs(t, store.Put(ctx, "a", nil), context.Canceled)
	_, err := store.Open(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
