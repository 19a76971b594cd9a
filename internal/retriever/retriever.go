// Package retriever implements hybrid retrieval: parallel vector and
// lexical recall, independent per-channel min-max normalization,
// exact-match and early-position bonuses, and a deterministic
// weighted-sum fusion with dedup-by-file.
package retriever

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docseek/docseek/internal/catalog"
	docerrors "github.com/docseek/docseek/internal/errors"
	"github.com/docseek/docseek/internal/vectorstore"
)

// Embedder is the minimal query-embedding capability the retriever
// needs (a subset of internal/embedder.Embedder).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the minimal vector-recall capability the
// retriever needs (satisfied by *vectorstore.Store).
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vectorstore.Result, error)
}

// Config holds the fusion weights and recall sizes.
type Config struct {
	VecK              int
	LexK              int
	MergeK            int
	MaxResultsPerFile int
	BM25Weight        float64
	CosineWeight      float64
	ExactBoost        float64
	EarlyPosBoost     float64
	VectorTimeout     time.Duration
}

// DefaultConfig returns the stock recall sizes and fusion weights.
func DefaultConfig() Config {
	return Config{
		VecK:              300,
		LexK:              200,
		MergeK:            400,
		MaxResultsPerFile: 1,
		BM25Weight:        0.55,
		CosineWeight:      0.45,
		ExactBoost:        0.20,
		EarlyPosBoost:     0.10,
		VectorTimeout:     2500 * time.Millisecond,
	}
}

// ScoredChunk is one ranked result.
type ScoredChunk struct {
	ChunkID    string
	FileID     string
	Path       string
	Idx        int
	Text       string
	Score      float64
	BM25Norm   float64
	CosineNorm float64
	Exact      float64
	EarlyPos   float64
}

// Retriever runs the hybrid search pipeline.
type Retriever struct {
	cat      catalog.Catalog
	vectors  VectorSearcher
	embedder Embedder
	cfg      Config
}

// New constructs a Retriever over the given collaborators.
func New(cat catalog.Catalog, vectors VectorSearcher, embedder Embedder, cfg Config) *Retriever {
	return &Retriever{cat: cat, vectors: vectors, embedder: embedder, cfg: cfg}
}

// Search runs the full hybrid pipeline and returns the top k results.
// maxResultsPerFile optionally overrides cfg.MaxResultsPerFile for
// dedup-by-file on this call only. Callers (e.g. SearchAPI honoring
// its per-request Options.MaxResultsPerFile) pass it to raise or
// lower the per-file cap without reconstructing the Retriever;
// omitting it, or passing <= 0, keeps the Retriever's
// construction-time default.
func (r *Retriever) Search(ctx context.Context, query string, k int, maxResultsPerFile ...int) ([]ScoredChunk, error) {
	bm25Hits, vecHits, err := r.parallelRecall(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(bm25Hits) == 0 && len(vecHits) == 0 {
		return nil, nil
	}

	bm25Scores := toScoreMap(bm25Hits)
	vecScores := vecToScoreMap(vecHits)

	candidateIDs := unionIDsInRecallOrder(bm25Hits, vecHits)
	bm25Norm := minMaxNormalize(bm25Scores, candidateIDs)
	vecNorm := minMaxNormalizeF32(vecScores, candidateIDs)

	metas, err := r.cat.ChunkMetas(ctx, candidateIDs)
	if err != nil {
		return nil, docerrors.CatalogError("fetch chunk metadata for candidates", err)
	}

	lowerQuery := strings.ToLower(strings.TrimSpace(query))
	queryWords := strings.Fields(lowerQuery)

	scored := make([]ScoredChunk, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		meta, ok := metas[id]
		if !ok {
			continue // orphan: chunk row missing, drop the candidate
		}
		text, found, err := r.cat.GetChunkText(ctx, id)
		if err != nil {
			return nil, docerrors.CatalogError("fetch chunk text for candidate", err)
		}
		if !found {
			continue
		}

		exact := exactMatchBonus(text, lowerQuery, queryWords)
		earlyPos := earlyPositionBonus(text, lowerQuery)

		bn := bm25Norm[id]
		vn := vecNorm[id]
		final := r.cfg.BM25Weight*bn + r.cfg.CosineWeight*vn + r.cfg.ExactBoost*exact + r.cfg.EarlyPosBoost*earlyPos

		scored = append(scored, ScoredChunk{
			ChunkID:    id,
			FileID:     meta.FileID,
			Path:       meta.Path,
			Idx:        meta.Idx,
			Text:       text,
			Score:      final,
			BM25Norm:   bn,
			CosineNorm: vn,
			Exact:      exact,
			EarlyPos:   earlyPos,
		})
	}

	stableSortByScoreDesc(scored)
	if len(scored) > r.cfg.MergeK {
		scored = scored[:r.cfg.MergeK]
	}

	perFileCap := r.cfg.MaxResultsPerFile
	if len(maxResultsPerFile) > 0 && maxResultsPerFile[0] > 0 {
		perFileCap = maxResultsPerFile[0]
	}
	deduped := dedupByFile(scored, perFileCap)
	stableSortByScoreDesc(deduped)

	if k > 0 && len(deduped) > k {
		deduped = deduped[:k]
	}
	return deduped, nil
}

// parallelRecall runs vector and lexical recall concurrently. Each
// channel's failure is captured without failing the group, so one
// channel degrades to the other; only a failure of both surfaces as a
// joined error. Only the vector channel is subject to VectorTimeout.
func (r *Retriever) parallelRecall(ctx context.Context, query string) ([]catalog.FTSResult, []vectorstore.Result, error) {
	g, gctx := errgroup.WithContext(ctx)

	var bm25Hits []catalog.FTSResult
	var vecHits []vectorstore.Result
	var bm25Err, vecErr error

	g.Go(func() error {
		cleaned := cleanQuery(query)
		hits, err := r.cat.FTSSearch(gctx, cleaned, r.cfg.LexK)
		if err != nil {
			bm25Err = err
			return nil
		}
		bm25Hits = hits
		return nil
	})

	g.Go(func() error {
		vctx := gctx
		var cancel context.CancelFunc
		if r.cfg.VectorTimeout > 0 {
			vctx, cancel = context.WithTimeout(gctx, r.cfg.VectorTimeout)
			defer cancel()
		}

		vec, err := r.embedder.Embed(vctx, query)
		if err != nil {
			vecErr = err
			return nil
		}
		hits, err := r.vectors.Search(vctx, vec, r.cfg.VecK)
		if err != nil {
			vecErr = err
			return nil
		}
		vecHits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, docerrors.QueryTimeout("hybrid recall cancelled", err)
	}

	if bm25Err != nil && vecErr != nil {
		return nil, nil, docerrors.Internal("both recall channels failed", errors.Join(bm25Err, vecErr))
	}
	return bm25Hits, vecHits, nil
}

func cleanQuery(q string) string {
	q = strings.ToLower(q)
	var b strings.Builder
	for _, r := range q {
		if r == ' ' || r == '\t' || r == '\n' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func toScoreMap(hits []catalog.FTSResult) map[string]float64 {
	m := make(map[string]float64, len(hits))
	for _, h := range hits {
		m[h.ChunkID] = h.Score
	}
	return m
}

func vecToScoreMap(hits []vectorstore.Result) map[string]float64 {
	m := make(map[string]float64, len(hits))
	for _, h := range hits {
		m[h.ChunkID] = float64(h.Score)
	}
	return m
}

// unionIDsInRecallOrder builds the candidate ID list in the order the
// two recall channels themselves returned hits (bm25Hits first, then
// any additional vecHits), rather than ranging over the derived score
// maps. Go randomizes map iteration order on every run, so deriving
// the merge order from a map would make tie-breaking in
// stableSortByScoreDesc nondeterministic across calls even though the
// sort itself is stable; the merge order itself, not just the sort,
// has to be reproducible for ranking to be stable across runs.
func unionIDsInRecallOrder(bm25Hits []catalog.FTSResult, vecHits []vectorstore.Result) []string {
	seen := make(map[string]bool, len(bm25Hits)+len(vecHits))
	ids := make([]string, 0, len(bm25Hits)+len(vecHits))
	for _, h := range bm25Hits {
		if !seen[h.ChunkID] {
			seen[h.ChunkID] = true
			ids = append(ids, h.ChunkID)
		}
	}
	for _, h := range vecHits {
		if !seen[h.ChunkID] {
			seen[h.ChunkID] = true
			ids = append(ids, h.ChunkID)
		}
	}
	return ids
}

// minMaxNormalize scales scores to [0,1]. Candidates absent from the
// map score 0; if every present score is equal, values are left
// unchanged (no divide-by-zero).
func minMaxNormalize(scores map[string]float64, ids []string) map[string]float64 {
	out := make(map[string]float64, len(ids))
	if len(scores) == 0 {
		for _, id := range ids {
			out[id] = 0
		}
		return out
	}

	min, max := minMaxOf(scores)
	spread := max - min
	for _, id := range ids {
		v, ok := scores[id]
		if !ok {
			out[id] = 0
			continue
		}
		if spread == 0 {
			out[id] = v
			continue
		}
		out[id] = (v - min) / spread
	}
	return out
}

func minMaxNormalizeF32(scores map[string]float64, ids []string) map[string]float64 {
	return minMaxNormalize(scores, ids)
}

func minMaxOf(scores map[string]float64) (min, max float64) {
	first := true
	for _, v := range scores {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// exactMatchBonus is 1.0 for a verbatim phrase match, the matched-word
// fraction when at least 70% of distinct query words appear, else 0.
func exactMatchBonus(text, lowerQuery string, queryWords []string) float64 {
	if lowerQuery == "" {
		return 0
	}
	lowerText := strings.ToLower(text)
	if strings.Contains(lowerText, lowerQuery) {
		return 1.0
	}
	if len(queryWords) == 0 {
		return 0
	}

	wordSet := make(map[string]bool)
	for _, w := range strings.Fields(lowerText) {
		wordSet[w] = true
	}

	// Both sides of the fraction are over distinct words, so a
	// repeated query word cannot inflate the overlap.
	unique := make(map[string]bool, len(queryWords))
	for _, w := range queryWords {
		unique[w] = true
	}

	matched := 0
	for w := range unique {
		if wordSet[w] {
			matched++
		}
	}
	fraction := float64(matched) / float64(len(unique))
	if fraction >= 0.7 {
		return fraction
	}
	return 0
}

// earlyPositionBonus rewards a phrase match in the first 30% of the
// chunk with 1-position_ratio, else 0.
func earlyPositionBonus(text, lowerQuery string) float64 {
	if lowerQuery == "" {
		return 0
	}
	lowerText := strings.ToLower(text)
	pos := strings.Index(lowerText, lowerQuery)
	if pos < 0 || len(lowerText) == 0 {
		return 0
	}
	ratio := float64(pos) / float64(len(lowerText))
	if ratio <= 0.30 {
		return 1 - ratio
	}
	return 0
}

// stableSortByScoreDesc sorts by score descending, preserving relative
// order of ties.
func stableSortByScoreDesc(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}

// dedupByFile keeps the top maxPerFile chunks per file ID, preserving
// the incoming (already score-sorted) order.
func dedupByFile(chunks []ScoredChunk, maxPerFile int) []ScoredChunk {
	if maxPerFile <= 0 {
		maxPerFile = 1
	}
	counts := make(map[string]int)
	out := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if counts[c.FileID] >= maxPerFile {
			continue
		}
		counts[c.FileID]++
		out = append(out, c)
	}
	return out
}
