package minio

import (
	"context"
	"os"
	"testing"

	"github.com/hupe1980/histore/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_KeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "histore/db1")

	assert.Equal(t, "histore/db1/snapshots/1.snap", s.key("snapshots/1.snap"))
	assert.Equal(t, "snapshots/1.snap", s.name("histore/db1/snapshots/1.snap"))
	assert.Equal(t, "CURRENT", s.name(s.key("CURRENT")))
}

// TestStore_Integration requires a running MinIO instance.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	bucket := "test-histore"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio snapshot")
	require.NoError(t, store.Put(ctx, "snapshots/1.snap", data))

	blob, err := store.Open(ctx, "snapshots/1.snap")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf[:n]))
	require.NoError(t, blob.Close())

	got, err := blobstore.ReadAll(ctx, store, "snapshots/1.snap")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Contains(t, names, "snapshots/1.snap")

	require.NoError(t, store.Delete(ctx, "snapshots/1.snap"))
	_, err = store.Open(ctx, "snapshots/1.snap")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
