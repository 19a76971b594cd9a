// Package e2e wires the full stack (Catalog, VectorStore, Embedder,
// Extractor, Chunker, Indexer, Retriever, SearchAPI) against temp-dir
// backends and exercises end-to-end index-then-search scenarios.
package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docseek/docseek/internal/catalog"
	"github.com/docseek/docseek/internal/chunker"
	"github.com/docseek/docseek/internal/embedder"
	"github.com/docseek/docseek/internal/extractor"
	"github.com/docseek/docseek/internal/frontier"
	"github.com/docseek/docseek/internal/indexer"
	"github.com/docseek/docseek/internal/retriever"
	"github.com/docseek/docseek/internal/searchapi"
	"github.com/docseek/docseek/internal/vectorstore"
)

type stack struct {
	cat    catalog.Catalog
	vec    *vectorstore.Store
	emb    *embedder.StaticEmbedder
	ix     *indexer.Indexer
	rt     *retriever.Retriever
	api    *searchapi.API
	docDir string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	docDir := t.TempDir()

	cat, err := catalog.Open(t.TempDir(), catalog.BackendSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	emb := embedder.NewStaticEmbedder(embedder.StaticDimensions)
	vec := vectorstore.New(vectorstore.DefaultConfig(embedder.StaticDimensions))

	front, err := frontier.Open(filepath.Join(t.TempDir(), "frontier.json"))
	require.NoError(t, err)

	ix, err := indexer.New(indexer.Deps{
		Catalog:   cat,
		Vector:    vec,
		Embedder:  emb,
		Extractor: extractor.NewPlainTextExtractor([]string{".txt"}),
		Chunker:   chunker.NewWindowChunker(chunker.DefaultConfig()),
		Frontier:  front,
	}, indexer.DefaultConfig())
	require.NoError(t, err)

	rt := retriever.New(cat, vec, emb, retriever.DefaultConfig())

	api, err := searchapi.New(rt, searchapi.DefaultConfig())
	require.NoError(t, err)

	return &stack{cat: cat, vec: vec, emb: emb, ix: ix, rt: rt, api: api, docDir: docDir}
}

func (s *stack) writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.docDir, name), []byte(content), 0o644))
}

// S1 — Index then search exact phrase.
func TestS1IndexThenSearchExactPhrase(t *testing.T) {
	s := newStack(t)
	s.writeFile(t, "taipei.txt", "Taipei is the capital city of Taiwan.")
	s.writeFile(t, "astrabit.txt", "Astrabit is a technology company focused on artificial intelligence.")
	s.writeFile(t, "lorem.txt", "Lorem ipsum dolor sit amet consectetur adipiscing elit.")

	ctx := context.Background()
	_, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)

	results, err := s.rt.Search(ctx, "artificial intelligence", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "astrabit.txt", filepath.Base(results[0].Path))
	assert.Equal(t, 1.0, results[0].Exact)
}

// S2 — Change detection: re-indexing unchanged files produces zero new work.
func TestS2ChangeDetectionSkipsUnchangedFiles(t *testing.T) {
	s := newStack(t)
	s.writeFile(t, "taipei.txt", "Taipei is the capital city of Taiwan.")

	ctx := context.Background()
	_, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)

	second, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, second.FilesProcessed)
	assert.Equal(t, 0, second.ChunksCreated)
}

// S4 — Position bonus: an early match scores higher than the same word late in the text.
func TestS4PositionBonusFavorsEarlyMatch(t *testing.T) {
	s := newStack(t)
	s.writeFile(t, "early.txt", "database systems overview covering transactions, indexing, and recovery in modern engines.")
	s.writeFile(t, "late.txt", "a long discussion of modern computing concepts that eventually circles back to a database near the very end.")

	ctx := context.Background()
	_, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)

	results, err := s.rt.Search(ctx, "database", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	byPath := map[string]retriever.ScoredChunk{}
	for _, r := range results {
		byPath[filepath.Base(r.Path)] = r
	}
	require.Contains(t, byPath, "early.txt")
	require.Contains(t, byPath, "late.txt")
	assert.Greater(t, byPath["early.txt"].EarlyPos, byPath["late.txt"].EarlyPos)
}

// S5 — Pagination: 5 ranked results, per_page=2.
func TestS5Pagination(t *testing.T) {
	s := newStack(t)
	for i := 0; i < 5; i++ {
		s.writeFile(t, string(rune('a'+i))+".txt", "shared keyword appears in every document here for ranking purposes "+string(rune('a'+i)))
	}

	ctx := context.Background()
	_, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)

	page1 := s.api.Run(ctx, "shared keyword", 1, 2, searchapi.Options{})
	assert.Equal(t, 5, page1.TotalHits)
	require.Len(t, page1.Items, 2)

	page3 := s.api.Run(ctx, "shared keyword", 3, 2, searchapi.Options{})
	require.Len(t, page3.Items, 1)
	assert.False(t, page3.HasNext)
}

// S6 — Cache hit: identical calls yield cache_hit=false then true, with identical items.
func TestS6CacheHit(t *testing.T) {
	s := newStack(t)
	s.writeFile(t, "taipei.txt", "Taipei is the capital city of Taiwan.")

	ctx := context.Background()
	_, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)

	first := s.api.Run(ctx, "taipei", 1, 10, searchapi.Options{})
	assert.False(t, first.CacheHit)

	second := s.api.Run(ctx, "taipei", 1, 10, searchapi.Options{})
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Items, second.Items)
}

// Invariant 4 — a successful bfs-index leaves every matching file with
// at least one chunk, one FTS row, and one vector.
func TestInvariantFourEveryIndexedFileHasChunkFTSAndVector(t *testing.T) {
	s := newStack(t)
	s.writeFile(t, "note.txt", "Some note content worth indexing thoroughly.")

	ctx := context.Background()
	_, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)

	files, err := s.cat.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	chunkIDs, err := s.cat.ChunkIDsForFile(ctx, files[0].FileID)
	require.NoError(t, err)
	require.NotEmpty(t, chunkIDs)

	for _, id := range chunkIDs {
		_, found, err := s.cat.GetChunkText(ctx, id)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, s.vec.Contains(id))
	}
}

// Search timeout plumbing: a vector recall that never returns in time
// still yields lexical-only results, not a hard failure (a tiny
// VectorTimeout forces instant expiry).
func TestSearchDegradesToLexicalOnlyUnderTightVectorTimeout(t *testing.T) {
	s := newStack(t)
	s.writeFile(t, "taipei.txt", "Taipei is the capital city of Taiwan.")

	ctx := context.Background()
	_, err := s.ix.RunCompleteIndex(ctx, []string{s.docDir}, 100)
	require.NoError(t, err)

	cfg := retriever.DefaultConfig()
	cfg.VectorTimeout = 1 * time.Nanosecond
	rt := retriever.New(s.cat, s.vec, s.emb, cfg)

	results, err := rt.Search(ctx, "taipei", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results, "lexical channel alone should still surface the match")
}
