// Package catalog persists file metadata, chunk metadata, and chunk
// text in a relational store with a full-text index. Two
// interchangeable backends are provided: SQLiteCatalog (default,
// FTS5) and BleveCatalog (bleve/v2 FTS engine with SQLite for
// relational metadata).
package catalog

import (
	"context"
	"time"
)

// FileRecord is one row of the file table.
type FileRecord struct {
	FileID        string
	Path          string
	Size          int64
	Mtime         int64
	ContentSHA256 string
	IndexedAt     time.Time
}

// ChunkRecord is one chunk to persist, carrying both the metadata and
// the text that goes into the FTS index atomically alongside it.
type ChunkRecord struct {
	ChunkID    string
	FileID     string
	Idx        int
	TokenStart int
	TokenEnd   int
	Text       string
}

// ChunkMeta is the metadata-only view returned by ChunkMeta, without
// the chunk's text (use GetChunkText for that).
type ChunkMeta struct {
	ChunkID    string
	FileID     string
	Idx        int
	TokenStart int
	TokenEnd   int
	Path       string
}

// FTSResult is one lexical search hit. Score follows the "larger is
// better" convention regardless of the sign convention the underlying
// FTS engine uses internally.
type FTSResult struct {
	ChunkID string
	Score   float64
}

// Catalog is the metadata and full-text storage contract.
// Implementations must insert a file's chunk rows and FTS rows
// atomically together, so a reader never observes one without the
// other.
type Catalog interface {
	// UpsertFile inserts or updates a file row and returns its file_id.
	UpsertFile(ctx context.Context, path string, size, mtime int64, contentSHA256 string) (fileID string, err error)

	// GetFileByID returns the file row for fileID, or found=false if absent.
	GetFileByID(ctx context.Context, fileID string) (rec *FileRecord, found bool, err error)

	// DeleteFile cascades to the file's chunks and FTS rows.
	DeleteFile(ctx context.Context, fileID string) error

	// InsertChunks atomically replaces all chunks (and their FTS rows)
	// belonging to fileID with the given ordered chunk set.
	InsertChunks(ctx context.Context, fileID string, chunks []ChunkRecord) error

	// FTSSearch returns the top-k lexical matches for query, best first,
	// with scores in the "larger is better" convention. An invalid
	// query yields an empty list, not an error.
	FTSSearch(ctx context.Context, query string, k int) ([]FTSResult, error)

	// GetChunkText returns a chunk's stored text.
	GetChunkText(ctx context.Context, chunkID string) (text string, found bool, err error)

	// ChunkMeta returns a chunk's metadata (without text).
	ChunkMeta(ctx context.Context, chunkID string) (meta *ChunkMeta, found bool, err error)

	// ChunkMetas batch-fetches metadata for many chunk IDs; IDs with
	// no matching row are simply omitted from the result (orphans).
	ChunkMetas(ctx context.Context, chunkIDs []string) (map[string]*ChunkMeta, error)

	// ListFiles returns every tracked file row, used by status and sweep.
	ListFiles(ctx context.Context) ([]*FileRecord, error)

	// ChunkIDsForFile returns the chunk IDs currently stored for a file,
	// used by the indexer's missing-vector repair check and sweep.
	ChunkIDsForFile(ctx context.Context, fileID string) ([]string, error)

	Close() error
}
