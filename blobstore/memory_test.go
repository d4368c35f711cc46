package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("payload")
	require.NoError(t, store.Put(ctx, "snapshots/a", data))
	data[0] = 'X'

	got, err := ReadAll(ctx, store, "snapshots/a")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	got[0] = 'Y'
	again, err := ReadAll(ctx, store, "snapshots/a")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(again))

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("snapshots/a")))
	names, err := store.List(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/a"}, names)

	require.NoError(t, store.Delete(ctx, "snapshots/a"))
	_, err = store.Open(ctx, "snapshots/a")
	assert.ErrorIs(t, err, ErrNotFound)
}

type readerOnlyStore struct {
	*MemoryStore
}

type readerOnlyBlob struct {
	Blob
}

func (s readerOnlyStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return readerOnlyBlob{Blob: b}, nil
}

func TestReadAll_ReaderAt(t *testing.T) {
	ctx := context.Background()
	store := readerOnlyStore{NewMemoryStore()}

	require.NoError(t, store.Put(ctx, "blob", []byte("0123456789")))
	require.NoError(t, store.Put(ctx, "empty", nil))

	got, err := ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))

	got, err = ReadAll(ctx, store, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadAll(ctx, store, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
