package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearchFindsNearestNeighbors(t *testing.T) {
	store := New(DefaultConfig(4))
	defer store.Close()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}
	require.NoError(t, store.Upsert(context.Background(), ids, vectors))

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestUpsertReplacesExistingIDViaLazyDeletion(t *testing.T) {
	store := New(DefaultConfig(4))
	defer store.Close()

	require.NoError(t, store.Upsert(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, store.Upsert(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	assert.Equal(t, 1, store.Count())
	results, err := store.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestDeleteRemovesVectorFromResults(t *testing.T) {
	store := New(DefaultConfig(4))
	defer store.Close()

	ids := []string{"a", "b"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, store.Upsert(context.Background(), ids, vectors))
	require.NoError(t, store.Delete(context.Background(), []string{"a"}))

	assert.False(t, store.Contains("a"))
	assert.True(t, store.Contains("b"))

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ChunkID)
	}
}

func TestSearchOnEmptyStoreReturnsNoResults(t *testing.T) {
	store := New(DefaultConfig(4))
	defer store.Close()

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	store := New(DefaultConfig(4))
	defer store.Close()

	err := store.Upsert(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	require.Error(t, err)
}

func TestSaveAndLoadRoundTripsVectorsAndMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	store := New(DefaultConfig(4))
	ids := []string{"a", "b"}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, store.Upsert(context.Background(), ids, vectors))
	require.NoError(t, store.Save(path))
	require.NoError(t, store.Close())

	reopened, err := Open(path, DefaultConfig(4))
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.Contains("a"))
	assert.True(t, reopened.Contains("b"))

	results, err := reopened.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestOpenOnMissingPathReturnsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.hnsw")
	store, err := Open(path, DefaultConfig(4))
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 0, store.Count())
}
