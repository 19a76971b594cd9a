package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	_ "modernc.org/sqlite"

	docerrors "github.com/docseek/docseek/internal/errors"
	"github.com/docseek/docseek/internal/identity"
)

// bleveDoc is the document shape indexed into bleve: content only,
// since path/chunk metadata live in the relational tables.
type bleveDoc struct {
	Text string `json:"text"`
}

// BleveCatalog is the alternate FTS backend selected by the
// fts_backend config knob. It keeps the same files/chunks relational
// schema as SQLiteCatalog but indexes chunk text into a bleve/v2
// index instead of an FTS5 virtual table.
type BleveCatalog struct {
	mu  sync.RWMutex
	db  *sql.DB
	idx bleve.Index
}

// NewBleveCatalog opens (or creates) a catalog at dir, storing
// relational metadata in dir/meta.db and the bleve index in
// dir/fts.bleve.
func NewBleveCatalog(dir string) (*BleveCatalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, docerrors.IOError("create bleve catalog dir", err).WithDetail("dir", dir)
	}

	dbPath := filepath.Join(dir, "meta.db")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, docerrors.CatalogError("open bleve catalog metadata db", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, docerrors.CatalogError("enable foreign keys", err)
	}
	if err := createRelationalSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	bleveDir := filepath.Join(dir, "fts.bleve")
	idx, err := openOrCreateBleveIndex(bleveDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BleveCatalog{db: db, idx: idx}, nil
}

// openOrCreateBleveIndex opens an existing index, recreating it from
// scratch if it is corrupt. The default analyzer suits prose; no
// custom tokenizer is registered.
func openOrCreateBleveIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	if err != bleve.ErrorIndexPathDoesNotExist {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, docerrors.New(docerrors.ErrCodeCorruptStore, "bleve index corrupt and unremovable", rmErr)
		}
	}
	mapping := bleve.NewIndexMapping()
	idx, err = bleve.New(path, mapping)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeCorruptStore, "create bleve index", err)
	}
	return idx, nil
}

func createRelationalSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			file_id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL,
			mtime INTEGER NOT NULL,
			content_sha256 TEXT NOT NULL DEFAULT '',
			indexed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL REFERENCES files(file_id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			token_start INTEGER NOT NULL,
			token_end INTEGER NOT NULL,
			text TEXT NOT NULL,
			UNIQUE(file_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return docerrors.New(docerrors.ErrCodeCorruptStore, "create bleve catalog relational schema", err)
		}
	}
	return nil
}

func (c *BleveCatalog) UpsertFile(ctx context.Context, path string, size, mtime int64, contentSHA256 string) (string, error) {
	fileID := identity.FileID(path, mtime, size)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO files(file_id, path, size, mtime, content_sha256, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			file_id = excluded.file_id,
			size = excluded.size,
			mtime = excluded.mtime,
			content_sha256 = excluded.content_sha256,
			indexed_at = excluded.indexed_at
	`, fileID, path, size, mtime, contentSHA256, now)
	if err != nil {
		return "", docerrors.CatalogError("upsert file", err).WithDetail("path", path)
	}
	return fileID, nil
}

func (c *BleveCatalog) GetFileByID(ctx context.Context, fileID string) (*FileRecord, bool, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT file_id, path, size, mtime, content_sha256, indexed_at FROM files WHERE file_id = ?
	`, fileID)
	var rec FileRecord
	var indexedAt string
	if err := row.Scan(&rec.FileID, &rec.Path, &rec.Size, &rec.Mtime, &rec.ContentSHA256, &indexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, docerrors.CatalogError("get file by id", err)
	}
	rec.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &rec, true, nil
}

func (c *BleveCatalog) DeleteFile(ctx context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.chunkIDsForFileLocked(ctx, fileID)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return docerrors.CatalogError("begin delete file tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return docerrors.CatalogError("delete chunk rows", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE file_id = ?`, fileID); err != nil {
		return docerrors.CatalogError("delete file row", err)
	}
	if err := tx.Commit(); err != nil {
		return docerrors.CatalogError("commit delete file tx", err)
	}

	batch := c.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if batch.Size() > 0 {
		if err := c.idx.Batch(batch); err != nil {
			return docerrors.CatalogError("delete bleve entries", err)
		}
	}
	return nil
}

func (c *BleveCatalog) InsertChunks(ctx context.Context, fileID string, chunks []ChunkRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldIDs, err := c.chunkIDsForFileLocked(ctx, fileID)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return docerrors.CatalogError("begin insert chunks tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return docerrors.CatalogError("delete old chunk rows", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(chunk_id, file_id, idx, token_start, token_end, text)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return docerrors.CatalogError("prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ChunkID, fileID, ch.Idx, ch.TokenStart, ch.TokenEnd, ch.Text); err != nil {
			return docerrors.CatalogError("insert chunk row", err).WithDetail("chunk_id", ch.ChunkID)
		}
	}
	if err := tx.Commit(); err != nil {
		return docerrors.CatalogError("commit insert chunks tx", err)
	}

	batch := c.idx.NewBatch()
	for _, id := range oldIDs {
		batch.Delete(id)
	}
	for _, ch := range chunks {
		if err := batch.Index(ch.ChunkID, bleveDoc{Text: ch.Text}); err != nil {
			return docerrors.CatalogError("stage bleve index batch", err).WithDetail("chunk_id", ch.ChunkID)
		}
	}
	if batch.Size() > 0 {
		if err := c.idx.Batch(batch); err != nil {
			return docerrors.CatalogError("commit bleve index batch", err)
		}
	}
	return nil
}

func (c *BleveCatalog) chunkIDsForFileLocked(ctx context.Context, fileID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, docerrors.CatalogError("list chunk ids", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, docerrors.CatalogError("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FTSSearch implements Catalog using bleve's native relevance score
// (the index mapping's default scoring model, as no scoring model is
// set on it), which is already "larger is better" — no sign
// flip needed, unlike SQLiteCatalog's raw FTS5 bm25() values.
func (c *BleveCatalog) FTSSearch(ctx context.Context, query string, k int) ([]FTSResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if query == "" {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("text")
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = k

	res, err := c.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, nil
	}

	out := make([]FTSResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, FTSResult{ChunkID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func (c *BleveCatalog) GetChunkText(ctx context.Context, chunkID string) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx, `SELECT text FROM chunks WHERE chunk_id = ?`, chunkID).Scan(&text)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, docerrors.CatalogError("get chunk text", err)
	}
	return text, true, nil
}

func (c *BleveCatalog) ChunkMeta(ctx context.Context, chunkID string) (*ChunkMeta, bool, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT c.chunk_id, c.file_id, c.idx, c.token_start, c.token_end, f.path
		FROM chunks c JOIN files f ON f.file_id = c.file_id
		WHERE c.chunk_id = ?
	`, chunkID)
	var m ChunkMeta
	if err := row.Scan(&m.ChunkID, &m.FileID, &m.Idx, &m.TokenStart, &m.TokenEnd, &m.Path); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, docerrors.CatalogError("get chunk meta", err)
	}
	return &m, true, nil
}

func (c *BleveCatalog) ChunkMetas(ctx context.Context, chunkIDs []string) (map[string]*ChunkMeta, error) {
	out := make(map[string]*ChunkMeta, len(chunkIDs))
	for _, id := range chunkIDs {
		m, found, err := c.ChunkMeta(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			out[id] = m
		}
	}
	return out, nil
}

func (c *BleveCatalog) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT file_id, path, size, mtime, content_sha256, indexed_at FROM files ORDER BY path
	`)
	if err != nil {
		return nil, docerrors.CatalogError("list files", err)
	}
	defer rows.Close()

	var out []*FileRecord
	for rows.Next() {
		var rec FileRecord
		var indexedAt string
		if err := rows.Scan(&rec.FileID, &rec.Path, &rec.Size, &rec.Mtime, &rec.ContentSHA256, &indexedAt); err != nil {
			return nil, docerrors.CatalogError("scan file row", err)
		}
		rec.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
		out = append(out, &rec)
	}
	return out, nil
}

func (c *BleveCatalog) ChunkIDsForFile(ctx context.Context, fileID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chunkIDsForFileLocked(ctx, fileID)
}

func (c *BleveCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.idx.Close(); err != nil {
		c.db.Close()
		return docerrors.CatalogError("close bleve index", err)
	}
	return c.db.Close()
}
