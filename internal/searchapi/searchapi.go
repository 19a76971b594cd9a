// Package searchapi shapes the public search response: pagination,
// deterministic result caching, and a structured envelope carrying
// the query, hit counts, page bookkeeping, items, timing, and cache
// status.
package searchapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	docerrors "github.com/docseek/docseek/internal/errors"
	"github.com/docseek/docseek/internal/retriever"
	"github.com/docseek/docseek/internal/snippet"
)

// Searcher is the minimal retrieval capability SearchAPI needs (a
// subset of *retriever.Retriever).
type Searcher interface {
	Search(ctx context.Context, query string, k int, maxResultsPerFile ...int) ([]retriever.ScoredChunk, error)
}

// Options are the recognized, caller-tunable knobs for one search.
// Every field participates in the cache key.
type Options struct {
	ExactMatch        bool
	CaseSensitive     bool // recognized but matching stays case-insensitive
	MaxResultsPerFile int
	IncludeSnippets   bool
	SnippetRadius     int
}

// Item is one result row in a Response.
type Item struct {
	ChunkID string  `json:"chunk_id"`
	FileID  string  `json:"file_id"`
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
	Start   int     `json:"snippet_start,omitempty"`
	End     int     `json:"snippet_end,omitempty"`
}

// Response is the structured envelope returned to every caller, even
// on failure (Error set, Items empty).
type Response struct {
	Query      string        `json:"query"`
	TotalHits  int           `json:"total_hits"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
	Items      []Item        `json:"items"`
	SearchTime time.Duration `json:"search_time"`
	CacheHit   bool          `json:"cache_hit"`
	Timestamp  time.Time     `json:"timestamp"`
	Error      string        `json:"error,omitempty"`
}

// cacheEntry pairs a cached (pre-pagination) result set with the time
// it was stored, so TTL expiry can be checked independently of the
// underlying LRU's own recency tracking.
type cacheEntry struct {
	items    []retriever.ScoredChunk
	storedAt time.Time
}

// API is the search service object: a constructed instance passed
// explicitly to callers, not a package-level singleton.
type API struct {
	mu      sync.Mutex
	search  Searcher
	cache   *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	recallK int
}

// Config configures cache sizing and the recall depth fetched per
// unique query before pagination.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
	RecallK   int // how many ScoredChunks to fetch from the Retriever before paginating
}

// DefaultConfig returns the stock cache sizing and recall depth.
func DefaultConfig() Config {
	return Config{CacheSize: 128, CacheTTL: 3600 * time.Second, RecallK: 400}
}

// New constructs a SearchAPI over the given Searcher.
func New(search Searcher, cfg Config) (*API, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	if cfg.RecallK <= 0 {
		cfg.RecallK = 400
	}
	cache, err := lru.New[string, cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, docerrors.InvalidConfig("construct search result cache", err)
	}
	return &API{search: search, cache: cache, ttl: cfg.CacheTTL, recallK: cfg.RecallK}, nil
}

// Run fetches or reuses the ranked result set for (query, page,
// perPage, opts), then slices it by (page, perPage). Each page is
// cached under its own key.
func (a *API) Run(ctx context.Context, query string, page, perPage int, opts Options) Response {
	start := time.Now()
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}

	key := cacheKey(query, a.recallK, page, perPage, opts)

	a.mu.Lock()
	entry, cacheHit := a.cache.Peek(key)
	if cacheHit && a.ttl > 0 && time.Since(entry.storedAt) > a.ttl {
		a.cache.Remove(key)
		cacheHit = false
	}
	a.mu.Unlock()

	if !cacheHit {
		results, err := a.search.Search(ctx, query, a.recallK, opts.MaxResultsPerFile)
		if err != nil {
			return Response{
				Query:      query,
				Page:       page,
				PerPage:    perPage,
				SearchTime: time.Since(start),
				CacheHit:   false,
				Timestamp:  time.Now(),
				Error:      err.Error(),
			}
		}
		entry = cacheEntry{items: results, storedAt: time.Now()}

		a.mu.Lock()
		a.cache.Add(key, entry)
		a.mu.Unlock()
	}

	total := len(entry.items)
	totalPages := 0
	if perPage > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(perPage)))
	}

	items := paginate(entry.items, page, perPage, query, opts)

	return Response{
		Query:      query,
		TotalHits:  total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Items:      items,
		SearchTime: time.Since(start),
		CacheHit:   cacheHit,
		Timestamp:  time.Now(),
	}
}

func paginate(all []retriever.ScoredChunk, page, perPage int, query string, opts Options) []Item {
	offset := (page - 1) * perPage
	if offset < 0 || offset >= len(all) {
		return []Item{}
	}
	end := offset + perPage
	if end > len(all) {
		end = len(all)
	}

	slice := all[offset:end]
	items := make([]Item, 0, len(slice))
	for _, r := range slice {
		item := Item{
			ChunkID: r.ChunkID,
			FileID:  r.FileID,
			Path:    r.Path,
			Score:   r.Score,
		}
		if opts.IncludeSnippets {
			radius := opts.SnippetRadius
			if radius <= 0 {
				radius = 80
			}
			text, s, e := snippet.Build(r.Text, query, radius, opts.ExactMatch)
			item.Snippet = text
			item.Start = s
			item.End = e
		}
		items = append(items, item)
	}
	return items
}

// cacheKey derives a deterministic SHA-256 key over the query, recall
// depth, page, perPage, and sorted opts.
func cacheKey(query string, recallK, page, perPage int, opts Options) string {
	parts := []string{
		fmt.Sprintf("q=%s", query),
		fmt.Sprintf("k=%d", recallK),
		fmt.Sprintf("page=%d", page),
		fmt.Sprintf("per_page=%d", perPage),
		fmt.Sprintf("exact=%t", opts.ExactMatch),
		fmt.Sprintf("case_sensitive=%t", opts.CaseSensitive),
		fmt.Sprintf("max_results_per_file=%d", opts.MaxResultsPerFile),
		fmt.Sprintf("include_snippets=%t", opts.IncludeSnippets),
		fmt.Sprintf("snippet_radius=%d", opts.SnippetRadius),
	}
	sort.Strings(parts)
	combined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])
}
