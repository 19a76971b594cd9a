package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docseek/docseek/internal/catalog"
	"github.com/docseek/docseek/internal/vectorstore"
)

// fakeCatalog is an in-memory stand-in for catalog.Catalog, enough to
// drive the retriever's pipeline without a real database.
type fakeCatalog struct {
	ftsResults []catalog.FTSResult
	ftsErr     error
	metas      map[string]*catalog.ChunkMeta
	texts      map[string]string
}

func (f *fakeCatalog) UpsertFile(ctx context.Context, path string, size, mtime int64, sha string) (string, error) {
	return "", nil
}
func (f *fakeCatalog) GetFileByID(ctx context.Context, fileID string) (*catalog.FileRecord, bool, error) {
	return nil, false, nil
}
func (f *fakeCatalog) DeleteFile(ctx context.Context, fileID string) error { return nil }
func (f *fakeCatalog) InsertChunks(ctx context.Context, fileID string, chunks []catalog.ChunkRecord) error {
	return nil
}
func (f *fakeCatalog) FTSSearch(ctx context.Context, query string, k int) ([]catalog.FTSResult, error) {
	if f.ftsErr != nil {
		return nil, f.ftsErr
	}
	return f.ftsResults, nil
}
func (f *fakeCatalog) GetChunkText(ctx context.Context, chunkID string) (string, bool, error) {
	text, ok := f.texts[chunkID]
	return text, ok, nil
}
func (f *fakeCatalog) ChunkMeta(ctx context.Context, chunkID string) (*catalog.ChunkMeta, bool, error) {
	m, ok := f.metas[chunkID]
	return m, ok, nil
}
func (f *fakeCatalog) ChunkMetas(ctx context.Context, ids []string) (map[string]*catalog.ChunkMeta, error) {
	out := make(map[string]*catalog.ChunkMeta)
	for _, id := range ids {
		if m, ok := f.metas[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}
func (f *fakeCatalog) ListFiles(ctx context.Context) ([]*catalog.FileRecord, error) { return nil, nil }
func (f *fakeCatalog) ChunkIDsForFile(ctx context.Context, fileID string) ([]string, error) {
	return nil, nil
}
func (f *fakeCatalog) Close() error { return nil }

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

type fakeVectorSearcher struct {
	results []vectorstore.Result
	err     error
}

func (v *fakeVectorSearcher) Search(ctx context.Context, query []float32, k int) ([]vectorstore.Result, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.results, nil
}

func newFixture() (*fakeCatalog, *fakeEmbedder, *fakeVectorSearcher) {
	cat := &fakeCatalog{
		metas: map[string]*catalog.ChunkMeta{
			"c1": {ChunkID: "c1", FileID: "f1", Idx: 0, Path: "a.txt"},
			"c2": {ChunkID: "c2", FileID: "f2", Idx: 0, Path: "b.txt"},
			"c3": {ChunkID: "c3", FileID: "f3", Idx: 0, Path: "c.txt"},
		},
		texts: map[string]string{
			"c1": "Taipei is the capital city of Taiwan.",
			"c2": "Unrelated content about mountains and rivers.",
			"c3": "Some text mentioning Taipei much later in the passage after filler.",
		},
	}
	emb := &fakeEmbedder{vec: []float32{1, 0, 0}}
	vec := &fakeVectorSearcher{}
	return cat, emb, vec
}

func TestSearchFusesBothChannelsAndRanksExactMatchHigher(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.ftsResults = []catalog.FTSResult{
		{ChunkID: "c1", Score: 5.0},
		{ChunkID: "c3", Score: 4.0},
	}
	vec.results = []vectorstore.Result{
		{ChunkID: "c2", Score: 0.9},
		{ChunkID: "c3", Score: 0.5},
	}

	r := New(cat, vec, emb, DefaultConfig())
	results, err := r.Search(context.Background(), "taipei capital", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "c1", results[0].ChunkID, "full query-word overlap + highest bm25 should rank first")
}

func TestSearchDegradesGracefullyWhenLexicalChannelFails(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.ftsErr = assertError("lexical backend down")
	vec.results = []vectorstore.Result{{ChunkID: "c2", Score: 0.8}}

	r := New(cat, vec, emb, DefaultConfig())
	results, err := r.Search(context.Background(), "mountains", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestSearchReturnsErrorWhenBothChannelsFail(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.ftsErr = assertError("lexical backend down")
	vec.err = assertError("vector backend down")

	r := New(cat, vec, emb, DefaultConfig())
	_, err := r.Search(context.Background(), "anything", 10)
	assert.Error(t, err)
}

func TestSearchDropsOrphanCandidatesMissingMetadata(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.ftsResults = []catalog.FTSResult{{ChunkID: "ghost", Score: 9.0}, {ChunkID: "c1", Score: 1.0}}

	r := New(cat, vec, emb, DefaultConfig())
	results, err := r.Search(context.Background(), "taipei", 10)
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, "ghost", res.ChunkID)
	}
}

func TestSearchDedupesByFileKeepingTopScore(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.metas["c1b"] = &catalog.ChunkMeta{ChunkID: "c1b", FileID: "f1", Idx: 1, Path: "a.txt"}
	cat.texts["c1b"] = "Taipei, the capital city of Taiwan, again."
	cat.ftsResults = []catalog.FTSResult{
		{ChunkID: "c1", Score: 3.0},
		{ChunkID: "c1b", Score: 9.0},
	}

	cfg := DefaultConfig()
	cfg.MaxResultsPerFile = 1
	r := New(cat, vec, emb, cfg)
	results, err := r.Search(context.Background(), "taipei capital", 10)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, res := range results {
		seen[res.FileID]++
	}
	for fileID, count := range seen {
		assert.Equal(t, 1, count, "file %s should appear once after dedup", fileID)
	}
}

func TestSearchIsStableUnderEqualScores(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.ftsResults = []catalog.FTSResult{
		{ChunkID: "c1", Score: 1.0},
		{ChunkID: "c2", Score: 1.0},
		{ChunkID: "c3", Score: 1.0},
	}

	r := New(cat, vec, emb, DefaultConfig())
	first, err := r.Search(context.Background(), "zzz_no_match_at_all", 10)
	require.NoError(t, err)
	second, err := r.Search(context.Background(), "zzz_no_match_at_all", 10)
	require.NoError(t, err)

	var firstIDs, secondIDs []string
	for _, r := range first {
		firstIDs = append(firstIDs, r.ChunkID)
	}
	for _, r := range second {
		secondIDs = append(secondIDs, r.ChunkID)
	}
	assert.Equal(t, firstIDs, secondIDs)
}

func TestSearchRespectsKLimit(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.ftsResults = []catalog.FTSResult{
		{ChunkID: "c1", Score: 3.0},
		{ChunkID: "c2", Score: 2.0},
		{ChunkID: "c3", Score: 1.0},
	}
	r := New(cat, vec, emb, DefaultConfig())
	results, err := r.Search(context.Background(), "taipei", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFinalScoreEqualsWeightedSumOfComponents(t *testing.T) {
	cat, emb, vec := newFixture()
	cat.ftsResults = []catalog.FTSResult{
		{ChunkID: "c1", Score: 10.0},
		{ChunkID: "c3", Score: 5.0},
	}
	vec.results = []vectorstore.Result{
		{ChunkID: "c1", Score: 0.9},
		{ChunkID: "c2", Score: 0.6},
	}

	cfg := DefaultConfig()
	cfg.MaxResultsPerFile = 10
	r := New(cat, vec, emb, cfg)
	results, err := r.Search(context.Background(), "taipei", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, res := range results {
		want := cfg.BM25Weight*res.BM25Norm + cfg.CosineWeight*res.CosineNorm +
			cfg.ExactBoost*res.Exact + cfg.EarlyPosBoost*res.EarlyPos
		assert.InDelta(t, want, res.Score, 1e-9, "chunk %s", res.ChunkID)
		assert.GreaterOrEqual(t, res.BM25Norm, 0.0)
		assert.LessOrEqual(t, res.BM25Norm, 1.0)
		assert.GreaterOrEqual(t, res.CosineNorm, 0.0)
		assert.LessOrEqual(t, res.CosineNorm, 1.0)
	}
}

func TestMinMaxNormalizeHandlesEqualScoresWithoutDivideByZero(t *testing.T) {
	scores := map[string]float64{"a": 5, "b": 5}
	out := minMaxNormalize(scores, []string{"a", "b", "c"})
	assert.Equal(t, 5.0, out["a"])
	assert.Equal(t, 5.0, out["b"])
	assert.Equal(t, 0.0, out["c"])
}

func TestExactMatchBonusRequiresSeventyPercentWordOverlap(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	assert.Greater(t, exactMatchBonus(text, "quick brown fox", []string{"quick", "brown", "fox"}), 0.0)
	assert.Equal(t, 0.0, exactMatchBonus(text, "quick zebra unrelated term", []string{"quick", "zebra", "unrelated", "term"}))
}

func TestExactMatchBonusDedupesRepeatedQueryWords(t *testing.T) {
	text := "a cat sat on the mat"
	// Distinct words are {cat, dog}; only one matches, so the fraction
	// is 0.5 and stays below the 0.7 threshold no matter how often the
	// matching word is repeated in the query.
	bonus := exactMatchBonus(text, "cat cat cat dog", []string{"cat", "cat", "cat", "dog"})
	assert.Equal(t, 0.0, bonus)
}

func TestEarlyPositionBonusFavorsEarlierMatches(t *testing.T) {
	early := "target appears right at the start of this much longer passage that continues on and on."
	late := "this much longer passage that continues on and on until finally the target appears near the end."
	assert.Greater(t, earlyPositionBonus(early, "target"), earlyPositionBonus(late, "target"))
}

// assertError is a tiny helper so tests don't need to import errors
// just to construct a sentinel.
type assertError string

func (e assertError) Error() string { return string(e) }

func TestDedupByFilePreservesOrderAndCaps(t *testing.T) {
	chunks := []ScoredChunk{
		{ChunkID: "a", FileID: "f1", Score: 3},
		{ChunkID: "b", FileID: "f1", Score: 2},
		{ChunkID: "c", FileID: "f2", Score: 1},
	}
	out := dedupByFile(chunks, 1)
	require.Len(t, out, 2)
	ids := []string{out[0].ChunkID, out[1].ChunkID}
	assert.Equal(t, []string{"a", "c"}, ids)
}
