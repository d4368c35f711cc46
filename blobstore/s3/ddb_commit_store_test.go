package s3

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/histore/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB table keyed by base_uri and seq.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	seq := params.Item["seq"].(*types.AttributeValueMemberN).Value
	key := baseURI + ":" + seq

	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(seq)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == baseURI {
			items = append(items, item)
		}
	}

	seqOf := func(item map[string]types.AttributeValue) uint64 {
		n, _ := strconv.ParseUint(item["seq"].(*types.AttributeValueMemberN).Value, 10, 64)
		return n
	}
	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		return int(seqOf(b)) - int(seqOf(a))
	})

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func readCurrent(t *testing.T, store blobstore.BlobStore) string {
	t.Helper()
	data, err := blobstore.ReadAll(context.Background(), store, CurrentName)
	require.NoError(t, err)
	return string(data)
}

func TestDDBCommitStore_FirstCommit(t *testing.T) {
	ctx := context.Background()
	store := NewDDBCommitStore(blobstore.NewMemoryStore(), newMockDDBClient(), "histore-commits", "s3://bucket/db/")

	require.NoError(t, store.Put(ctx, CurrentName, []byte("snapshots/00000001.snap")))
	assert.Equal(t, "snapshots/00000001.snap", readCurrent(t, store))
}

func TestDDBCommitStore_MultipleCommits(t *testing.T) {
	ctx := context.Background()
	store := NewDDBCommitStore(blobstore.NewMemoryStore(), newMockDDBClient(), "histore-commits", "s3://bucket/db/")

	for i := 1; i <= 12; i++ {
		require.NoError(t, store.Put(ctx, CurrentName, []byte(fmt.Sprintf("snapshots/%d.snap", i))))
	}
	assert.Equal(t, "snapshots/12.snap", readCurrent(t, store))
}

func TestDDBCommitStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store := NewDDBCommitStore(blobstore.NewMemoryStore(), newMockDDBClient(), "histore-commits", "s3://bucket/db/")

	require.NoError(t, store.Put(ctx, CurrentName, []byte("snapshots/1.snap")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range 5 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := store.Put(ctx, CurrentName, []byte(fmt.Sprintf("snapshots/%d.snap", id+2)))
			if err != nil {
				assert.ErrorIs(t, err, ErrConcurrentModification)
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Positive(t, successes)
}

func TestDDBCommitStore_NotFoundBeforeCommit(t *testing.T) {
	store := NewDDBCommitStore(blobstore.NewMemoryStore(), newMockDDBClient(), "histore-commits", "s3://bucket/db/")

	_, err := store.Open(context.Background(), CurrentName)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDDBCommitStore_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	store1 := NewDDBCommitStore(blobstore.NewMemoryStore(), ddb, "histore-commits", "s3://bucket-a/path/")
	store2 := NewDDBCommitStore(blobstore.NewMemoryStore(), ddb, "histore-commits", "s3://bucket-b/path/")

	require.NoError(t, store1.Put(ctx, CurrentName, []byte("A")))
	require.NoError(t, store2.Put(ctx, CurrentName, []byte("B")))

	assert.Equal(t, "A", readCurrent(t, store1))
	assert.Equal(t, "B", readCurrent(t, store2))
}

func TestDDBCommitStore_DelegatesBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	store := NewDDBCommitStore(blobs, newMockDDBClient(), "histore-commits", "s3://bucket/db/")

	require.NoError(t, store.Put(ctx, "snapshots/1.snap", []byte("body")))
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/1.snap"}, names)

	require.NoError(t, store.Delete(ctx, CurrentName))
	require.NoError(t, store.Delete(ctx, "snapshots/1.snap"))
	names, err = blobs.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
