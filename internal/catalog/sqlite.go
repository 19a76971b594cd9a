package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	docerrors "github.com/docseek/docseek/internal/errors"
	"github.com/docseek/docseek/internal/identity"
)

// schemaVersion is bumped whenever the on-disk schema changes shape.
const schemaVersion = 1

// SQLiteCatalog is the default Catalog backend. It keeps file and
// chunk metadata in ordinary tables and chunk text in an FTS5 virtual
// table, replaced with DELETE-then-INSERT (FTS5 has no REPLACE INTO).
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens (creating if absent) a catalog database at
// path, in WAL mode with a single writer connection — sqlite itself
// serializes writers, so capping the pool avoids SQLITE_BUSY retries
// under concurrent callers.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, docerrors.CatalogError("open sqlite catalog", err).WithDetail("path", path)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, docerrors.CatalogError("apply catalog pragma", err).WithDetail("pragma", p)
		}
	}

	c := &SQLiteCatalog{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
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
			UNIQUE(file_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			path UNINDEXED,
			text,
			tokenize='unicode61'
		)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return docerrors.New(docerrors.ErrCodeCorruptStore, "create catalog schema", err)
		}
	}

	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return docerrors.New(docerrors.ErrCodeCorruptStore, "read schema_version", err)
	}
	if count == 0 {
		if _, err := c.db.Exec(`INSERT INTO schema_version(version) VALUES (?)`, schemaVersion); err != nil {
			return docerrors.New(docerrors.ErrCodeCorruptStore, "seed schema_version", err)
		}
	}
	return nil
}

// UpsertFile implements Catalog.
func (c *SQLiteCatalog) UpsertFile(ctx context.Context, path string, size, mtime int64, contentSHA256 string) (string, error) {
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

// GetFileByID implements Catalog.
func (c *SQLiteCatalog) GetFileByID(ctx context.Context, fileID string) (*FileRecord, bool, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT file_id, path, size, mtime, content_sha256, indexed_at
		FROM files WHERE file_id = ?
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

// DeleteFile implements Catalog, removing the file row, its chunks,
// and their FTS rows.
func (c *SQLiteCatalog) DeleteFile(ctx context.Context, fileID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return docerrors.CatalogError("begin delete file tx", err)
	}
	defer tx.Rollback()

	if err := deleteFileChunksFTS(ctx, tx, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE file_id = ?`, fileID); err != nil {
		return docerrors.CatalogError("delete file row", err)
	}
	if err := tx.Commit(); err != nil {
		return docerrors.CatalogError("commit delete file tx", err)
	}
	return nil
}

// deleteFileChunksFTS removes a file's chunk rows and their matching
// FTS entries. chunks_fts has no foreign key to chunks (FTS5 virtual
// tables cannot carry constraints), so the two deletes are explicit.
func deleteFileChunksFTS(ctx context.Context, tx *sql.Tx, fileID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return docerrors.CatalogError("list chunk ids for delete", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return docerrors.CatalogError("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, id); err != nil {
			return docerrors.CatalogError("delete fts row", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return docerrors.CatalogError("delete chunk rows", err)
	}
	return nil
}

// InsertChunks implements Catalog. It replaces the full chunk set for
// fileID atomically: old chunk and FTS rows are deleted, then the new
// set is inserted, all within one transaction.
func (c *SQLiteCatalog) InsertChunks(ctx context.Context, fileID string, chunks []ChunkRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return docerrors.CatalogError("begin insert chunks tx", err)
	}
	defer tx.Rollback()

	if err := deleteFileChunksFTS(ctx, tx, fileID); err != nil {
		return err
	}

	var path string
	if err := tx.QueryRowContext(ctx, `SELECT path FROM files WHERE file_id = ?`, fileID).Scan(&path); err != nil {
		return docerrors.CatalogError("resolve path for chunk insert", err).WithDetail("file_id", fileID)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(chunk_id, file_id, idx, token_start, token_end)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return docerrors.CatalogError("prepare chunk insert", err)
	}
	defer chunkStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks_fts(chunk_id, path, text) VALUES (?, ?, ?)
	`)
	if err != nil {
		return docerrors.CatalogError("prepare fts insert", err)
	}
	defer ftsStmt.Close()

	for _, ch := range chunks {
		if _, err := chunkStmt.ExecContext(ctx, ch.ChunkID, fileID, ch.Idx, ch.TokenStart, ch.TokenEnd); err != nil {
			return docerrors.CatalogError("insert chunk row", err).WithDetail("chunk_id", ch.ChunkID)
		}
		if _, err := ftsStmt.ExecContext(ctx, ch.ChunkID, path, ch.Text); err != nil {
			return docerrors.CatalogError("insert fts row", err).WithDetail("chunk_id", ch.ChunkID)
		}
	}

	if err := tx.Commit(); err != nil {
		return docerrors.CatalogError("commit insert chunks tx", err)
	}
	return nil
}

// FTSSearch implements Catalog. FTS5's bm25() returns negative values
// where more-negative means a better match; we take the absolute
// value so callers always see "larger score is better".
func (c *SQLiteCatalog) FTSSearch(ctx context.Context, query string, k int) ([]FTSResult, error) {
	match := sanitizeMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) AS raw_score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY raw_score
		LIMIT ?
	`, match, k)
	if err != nil {
		// A MATCH syntax error from a pathological query is treated as
		// "no lexical matches" rather than a hard failure.
		return nil, nil
	}
	defer rows.Close()

	var out []FTSResult
	for rows.Next() {
		var chunkID string
		var raw float64
		if err := rows.Scan(&chunkID, &raw); err != nil {
			return nil, docerrors.CatalogError("scan fts result", err)
		}
		out = append(out, FTSResult{ChunkID: chunkID, Score: math.Abs(raw)})
	}
	return out, nil
}

// GetChunkText implements Catalog.
func (c *SQLiteCatalog) GetChunkText(ctx context.Context, chunkID string) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx, `SELECT text FROM chunks_fts WHERE chunk_id = ?`, chunkID).Scan(&text)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, docerrors.CatalogError("get chunk text", err)
	}
	return text, true, nil
}

// ChunkMeta implements Catalog.
func (c *SQLiteCatalog) ChunkMeta(ctx context.Context, chunkID string) (*ChunkMeta, bool, error) {
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

// ChunkMetas implements Catalog.
func (c *SQLiteCatalog) ChunkMetas(ctx context.Context, chunkIDs []string) (map[string]*ChunkMeta, error) {
	out := make(map[string]*ChunkMeta, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT c.chunk_id, c.file_id, c.idx, c.token_start, c.token_end, f.path
		FROM chunks c JOIN files f ON f.file_id = c.file_id
		WHERE c.chunk_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, docerrors.CatalogError("batch get chunk meta", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m ChunkMeta
		if err := rows.Scan(&m.ChunkID, &m.FileID, &m.Idx, &m.TokenStart, &m.TokenEnd, &m.Path); err != nil {
			return nil, docerrors.CatalogError("scan chunk meta", err)
		}
		out[m.ChunkID] = &m
	}
	return out, nil
}

// ListFiles implements Catalog.
func (c *SQLiteCatalog) ListFiles(ctx context.Context) ([]*FileRecord, error) {
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

// ChunkIDsForFile implements Catalog.
func (c *SQLiteCatalog) ChunkIDsForFile(ctx context.Context, fileID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE file_id = ? ORDER BY idx`, fileID)
	if err != nil {
		return nil, docerrors.CatalogError("list chunk ids for file", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, docerrors.CatalogError("scan chunk id", err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Close implements Catalog.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// sanitizeMatchQuery strips FTS5 query-syntax characters the caller's
// free-text query should not be interpreted as, then wraps each
// remaining token in double quotes so punctuation like "C++" or
// "don't" never trips an FTS5 syntax error.
func sanitizeMatchQuery(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " OR ")
}
