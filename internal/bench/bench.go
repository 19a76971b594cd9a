// Package bench records per-query search telemetry to an append-only
// CSV file under store/runs/search_bench.csv, so repeated
// `find --bench` invocations accumulate a latency/result-count
// history a reader can load into a spreadsheet.
package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one search event written as a CSV row.
type Record struct {
	Timestamp    time.Time
	Query        string
	Page         int
	PerPage      int
	TotalHits    int
	ItemsHit     int
	SearchTimeMS int64
	CacheHit     bool
}

var header = []string{
	"timestamp", "query", "page", "per_page", "total_hits",
	"items_hit", "search_time_ms", "cache_hit",
}

func (r Record) row() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Query,
		fmt.Sprintf("%d", r.Page),
		fmt.Sprintf("%d", r.PerPage),
		fmt.Sprintf("%d", r.TotalHits),
		fmt.Sprintf("%d", r.ItemsHit),
		fmt.Sprintf("%d", r.SearchTimeMS),
		fmt.Sprintf("%t", r.CacheHit),
	}
}

// Writer appends Records to a CSV file, writing the header once on
// first creation. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
}

// Open prepares a Writer over path, creating parent directories as
// needed. The file itself is opened lazily on the first Append so
// Open never creates an empty file.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bench: create runs dir: %w", err)
	}
	return &Writer{path: path}, nil
}

// DefaultPath returns the conventional location for the bench CSV
// given a store directory root.
func DefaultPath(storeDir string) string {
	return filepath.Join(storeDir, "runs", "search_bench.csv")
}

// Append writes one row, adding the header first if the file is new
// or empty.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	needsHeader := false
	if info, err := os.Stat(w.path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("bench: stat %s: %w", w.path, err)
		}
		needsHeader = true
	} else if info.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bench: open %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("bench: write header: %w", err)
		}
	}
	if err := cw.Write(rec.row()); err != nil {
		return fmt.Errorf("bench: write row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
