package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	lfs := LocalFS{}
	dir := filepath.Join(t.TempDir(), "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	renamed := filepath.Join(dir, "renamed.txt")
	require.NoError(t, lfs.Rename(fpath, renamed))
	require.NoError(t, lfs.Truncate(renamed, 3))
	info, err := lfs.Stat(renamed)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	require.NoError(t, lfs.Remove(renamed))
	_, err = lfs.Stat(renamed)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic(t *testing.T) {
	name := filepath.Join(t.TempDir(), "a", "b", "blob")
	require.NoError(t, WriteFileAtomic(nil, name, []byte("v1"), 0o644))
	require.NoError(t, WriteFileAtomic(nil, name, []byte("v2"), 0o644))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = os.Stat(name + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic_FailureKeepsOldContent(t *testing.T) {
	name := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, WriteFileAtomic(nil, name, []byte("old"), 0o644))

	ffs := NewFaultyFS(nil)
	ffs.AddRule("blob.tmp", Fault{FailAfterBytes: -1, FailOnSync: true})
	err := WriteFileAtomic(ffs, name, []byte("new"), 0o644)
	require.ErrorIs(t, err, ErrInjected)

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	_, err = os.Stat(name + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(t.TempDir(), "faulty.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(5), ffs.Written())
	require.NoError(t, f.Close())
}

func TestFaultyFS_RenameAndClose(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("target", Fault{FailAfterBytes: -1, FailOnRename: true, FailOnClose: true})

	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, nil, 0o644))
	assert.ErrorIs(t, ffs.Rename(src, filepath.Join(dir, "target")), ErrInjected)
	require.NoError(t, ffs.Rename(src, filepath.Join(dir, "other")))

	f, err := ffs.OpenFile(filepath.Join(dir, "target"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Close(), ErrInjected)
}
