// Package indexer drives the BFS crawl, extracting, chunking,
// embedding, and persisting each file into the Catalog and
// VectorStore. It is the single writer of a store:
// callers are expected to hold an external lock (e.g. flock on the
// store directory) across a run.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docseek/docseek/internal/catalog"
	"github.com/docseek/docseek/internal/chunker"
	docerrors "github.com/docseek/docseek/internal/errors"
	"github.com/docseek/docseek/internal/frontier"
	"github.com/docseek/docseek/internal/identity"
)

// Embedder is the subset of internal/embedder.Embedder the Indexer needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the subset of internal/vectorstore.Store the Indexer needs.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	Contains(id string) bool
	Delete(ctx context.Context, ids []string) error
}

// Extractor is the subset of internal/extractor.Extractor the Indexer needs.
type Extractor interface {
	Extract(ctx context.Context, path string) (text string, err error)
	SupportsExt(ext string) bool
}

// Chunker is the subset of internal/chunker.Chunker the Indexer needs.
type Chunker interface {
	Chunk(fileID, text string) []chunker.Chunk
}

// Config configures one indexing run.
type Config struct {
	AllowExts   []string
	Exclude     []string
	EmbedBatch  int
	UpsertBatch int
}

// DefaultConfig covers plain-text and HTML documents with the stock
// batch sizes.
func DefaultConfig() Config {
	return Config{
		AllowExts:   []string{".txt", ".md", ".markdown", ".html", ".htm"},
		EmbedBatch:  32,
		UpsertBatch: 64,
	}
}

// Deps are the Indexer's injected collaborators, validated non-nil by
// New.
type Deps struct {
	Catalog   catalog.Catalog
	Vector    VectorStore
	Embedder  Embedder
	Extractor Extractor
	Chunker   Chunker
	Frontier  *frontier.Frontier
}

// Indexer runs BFS slices over a Frontier, persisting into a Catalog
// and VectorStore.
type Indexer struct {
	cat      catalog.Catalog
	vector   VectorStore
	embedder Embedder
	extract  Extractor
	chunk    Chunker
	front    *frontier.Frontier
	cfg      Config
}

// New constructs an Indexer, requiring every collaborator to be
// provided.
func New(deps Deps, cfg Config) (*Indexer, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Vector == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Frontier == nil {
		return nil, fmt.Errorf("frontier is required")
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 32
	}
	if cfg.UpsertBatch <= 0 {
		cfg.UpsertBatch = 64
	}
	return &Indexer{
		cat:      deps.Catalog,
		vector:   deps.Vector,
		embedder: deps.Embedder,
		extract:  deps.Extractor,
		chunk:    deps.Chunker,
		front:    deps.Frontier,
		cfg:      cfg,
	}, nil
}

// Stats reports the outcome of one BFS slice or complete run.
type Stats struct {
	FilesProcessed  int
	FilesSkipped    int
	DirsEnumerated  int
	ChunksCreated   int
	VectorsUpserted int
	Errors          int
}

func (s *Stats) add(other Stats) {
	s.FilesProcessed += other.FilesProcessed
	s.FilesSkipped += other.FilesSkipped
	s.DirsEnumerated += other.DirsEnumerated
	s.ChunksCreated += other.ChunksCreated
	s.VectorsUpserted += other.VectorsUpserted
	s.Errors += other.Errors
}

// RunBFSSlice processes up to maxItems frontier entries, then
// checkpoints. Seeds the frontier from roots if its queue is empty.
func (ix *Indexer) RunBFSSlice(ctx context.Context, roots []string, maxItems int) (Stats, error) {
	ix.front.Seed(roots)

	var stats Stats
	for i := 0; i < maxItems; i++ {
		path, ok := ix.front.Dequeue()
		if !ok {
			break
		}
		itemStats := ix.processItem(ctx, path)
		stats.add(itemStats)
	}

	if err := ix.front.Save(); err != nil {
		return stats, docerrors.IOError("save frontier checkpoint", err)
	}
	return stats, nil
}

// RunCompleteIndex resets the frontier then runs slices until the
// queue drains and no further progress is made.
func (ix *Indexer) RunCompleteIndex(ctx context.Context, roots []string, sliceSize int) (Stats, error) {
	if sliceSize <= 0 {
		sliceSize = 1000
	}
	ix.front.Reset()

	var total Stats
	for {
		before := ix.front.Len()
		slice, err := ix.RunBFSSlice(ctx, roots, sliceSize)
		if err != nil {
			return total, err
		}
		total.add(slice)

		if ix.front.Len() == 0 {
			break
		}
		if ix.front.Len() >= before && slice.FilesProcessed == 0 && slice.FilesSkipped == 0 && slice.DirsEnumerated == 0 {
			break // no progress; avoid spinning forever
		}
	}
	return total, nil
}

// processItem handles a single dequeued path: enumerate a directory's
// children, or filter, extract, chunk, persist, and embed a file.
func (ix *Indexer) processItem(ctx context.Context, path string) Stats {
	var stats Stats

	info, err := os.Stat(path)
	if err != nil {
		ix.front.RecordError(fmt.Sprintf("stat %s: %v", path, err))
		stats.Errors++
		stats.FilesSkipped++
		return stats
	}

	devino, hasDevIno := frontier.DevInoOf(info)

	// A path can reach the queue twice (re-seeded roots, a symlink
	// loop enumerateDir failed to filter at discovery time, …); the
	// seen-set is the actual dedup guard, so check it here too rather
	// than trusting enumerateDir alone.
	if hasDevIno && ix.front.Seen(path, devino) {
		return stats
	}

	if info.IsDir() {
		if _, err := ix.enumerateDir(ctx, path); err != nil {
			ix.front.RecordError(fmt.Sprintf("enumerate %s: %v", path, err))
			stats.Errors++
		} else {
			stats.DirsEnumerated++
		}
		ix.front.IncDirs()
		if hasDevIno {
			ix.front.MarkSeen(path, devino)
		}
		return stats
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !ix.allowedExt(ext) || ix.excluded(path) {
		stats.FilesSkipped++
		if hasDevIno {
			ix.front.MarkSeen(path, devino)
		}
		return stats
	}

	processed, chunkCount, ierr := ix.indexFile(ctx, path, info)
	if ierr != nil {
		ix.front.RecordError(fmt.Sprintf("index %s: %v", path, ierr))
		stats.Errors++
		stats.FilesSkipped++
	} else if processed {
		stats.FilesProcessed++
		stats.ChunksCreated += chunkCount
		stats.VectorsUpserted += chunkCount
	} else {
		stats.FilesSkipped++
	}

	ix.front.IncFiles()
	if hasDevIno {
		ix.front.MarkSeen(path, devino)
	}
	return stats
}

// enumerateDir lists dir's direct children, skipping hidden entries,
// exclude matches, symlinks, and anything already recorded in the
// seen-set under its own (device, inode). Lstat (not Stat) is
// deliberate: it reports a symlink as itself rather than resolving it,
// so a symlink back to an ancestor directory is recognized as a
// symlink and never queued as a directory to recurse into — the
// traversal never follows a link, so it is bounded by the real
// directory tree regardless of any cycle a link might describe. The
// Seen check on top of that covers ordinary (non-symlink) re-adds,
// e.g. a root re-seeded on a later slice.
func (ix *Indexer) enumerateDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	var children []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		child := filepath.Join(dir, name)
		if ix.excluded(child) {
			continue
		}
		info, err := os.Lstat(child)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if devino, ok := frontier.DevInoOf(info); ok && ix.front.Seen(child, devino) {
			continue
		}
		children = append(children, child)
		count++
	}
	ix.front.Enqueue(children...)
	return count, nil
}

func (ix *Indexer) allowedExt(ext string) bool {
	for _, allowed := range ix.cfg.AllowExts {
		if strings.EqualFold(ext, allowed) {
			return ix.extract.SupportsExt(ext)
		}
	}
	return false
}

func (ix *Indexer) excluded(path string) bool {
	for _, pattern := range ix.cfg.Exclude {
		if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// indexFile ingests one regular file. Returns (processed=true,
// chunkCount) if the file's chunks/vectors were (re)written, or
// (processed=false) if the file was unchanged and had no missing
// vectors.
func (ix *Indexer) indexFile(ctx context.Context, path string, info os.FileInfo) (bool, int, error) {
	fileID := identity.FileID(path, info.ModTime().Unix(), info.Size())

	existing, found, err := ix.cat.GetFileByID(ctx, fileID)
	if err != nil {
		return false, 0, docerrors.CatalogError("look up existing file row", err)
	}

	text, err := ix.extract.Extract(ctx, path)
	if err != nil {
		return false, 0, docerrors.ExtractionFailed(fmt.Sprintf("extract %s", path), err)
	}
	contentSHA := identity.ContentSHA256(text)

	if found && existing.ContentSHA256 == contentSHA {
		if ix.hasAllVectors(ctx, fileID) {
			return false, 0, nil // unchanged content, vectors intact
		}
		slog.Warn("missing vector detected on unchanged content, forcing re-embed",
			"path", path, "file_id", fileID)
	}

	if _, err := ix.cat.UpsertFile(ctx, path, info.Size(), info.ModTime().Unix(), contentSHA); err != nil {
		return false, 0, docerrors.CatalogError("upsert file row", err)
	}

	chunks := ix.chunk.Chunk(fileID, text)

	records := make([]catalog.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = catalog.ChunkRecord{
			ChunkID:    c.ChunkID,
			FileID:     c.FileID,
			Idx:        c.Idx,
			TokenStart: c.TokenStart,
			TokenEnd:   c.TokenEnd,
			Text:       c.Text,
		}
	}
	if err := ix.cat.InsertChunks(ctx, fileID, records); err != nil {
		return false, 0, docerrors.CatalogError("insert chunks", err)
	}

	if err := ix.embedAndUpsert(ctx, chunks); err != nil {
		return false, 0, err
	}

	return true, len(chunks), nil
}

// hasAllVectors guards the unchanged-content short-circuit: before
// trusting a content_sha256 match, confirm every one of the file's
// existing chunks still has a vector. A crash between the chunk
// insert and the vector upsert leaves chunks findable lexically but
// not vectorially; this forces a re-embed on the next crawl.
func (ix *Indexer) hasAllVectors(ctx context.Context, fileID string) bool {
	ids, err := ix.cat.ChunkIDsForFile(ctx, fileID)
	if err != nil || len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !ix.vector.Contains(id) {
			return false
		}
	}
	return true
}

// embedAndUpsert embeds chunk texts in batches of cfg.EmbedBatch and
// upserts vectors in batches of cfg.UpsertBatch.
func (ix *Indexer) embedAndUpsert(ctx context.Context, chunks []chunker.Chunk) error {
	for start := 0; start < len(chunks); start += ix.cfg.EmbedBatch {
		end := start + ix.cfg.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
			ids[i] = c.ChunkID
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return docerrors.EmbeddingUnavailable("embed chunk batch", err)
		}

		if err := ix.upsertInBatches(ctx, ids, vectors); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) upsertInBatches(ctx context.Context, ids []string, vectors [][]float32) error {
	for start := 0; start < len(ids); start += ix.cfg.UpsertBatch {
		end := start + ix.cfg.UpsertBatch
		if end > len(ids) {
			end = len(ids)
		}
		if err := ix.vector.Upsert(ctx, ids[start:end], vectors[start:end]); err != nil {
			return docerrors.VectorStoreUnavailable("upsert vector batch", err)
		}
	}
	return nil
}

// Sweep removes Catalog rows and vectors for files that no longer
// exist on disk or no longer match allow_exts/excludes. The BFS crawl
// itself never notices deletions, since a deleted path is simply
// never dequeued again.
func (ix *Indexer) Sweep(ctx context.Context) (removed int, err error) {
	files, err := ix.cat.ListFiles(ctx)
	if err != nil {
		return 0, docerrors.CatalogError("list files for sweep", err)
	}

	var ids []string
	for _, f := range files {
		info, statErr := os.Stat(f.Path)
		stale := statErr != nil
		if !stale {
			ext := strings.ToLower(filepath.Ext(f.Path))
			stale = !ix.allowedExt(ext) || ix.excluded(f.Path) || info.IsDir()
		}
		if stale {
			ids = append(ids, f.FileID)
		}
	}

	for _, id := range ids {
		chunkIDs, err := ix.cat.ChunkIDsForFile(ctx, id)
		if err != nil {
			return removed, docerrors.CatalogError("list chunks of stale file", err)
		}
		if err := ix.cat.DeleteFile(ctx, id); err != nil {
			return removed, docerrors.CatalogError("delete stale file row", err)
		}
		if len(chunkIDs) > 0 {
			if err := ix.vector.Delete(ctx, chunkIDs); err != nil {
				return removed, docerrors.VectorStoreUnavailable("delete stale vectors", err)
			}
		}
		removed++
	}
	return removed, nil
}
