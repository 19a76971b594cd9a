package catalog

import (
	"fmt"
	"path/filepath"
)

// Backend names the two interchangeable catalog implementations.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 for lexical search (default).
	BackendSQLite Backend = "sqlite"
	// BackendBleve uses the bleve/v2 FTS engine for lexical search.
	BackendBleve Backend = "bleve"
)

// Open creates a Catalog at storeDir using the named backend. An
// empty backend defaults to sqlite.
func Open(storeDir string, backend Backend) (Catalog, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteCatalog(filepath.Join(storeDir, "catalog.db"))
	case BackendBleve:
		return NewBleveCatalog(filepath.Join(storeDir, "catalog-bleve"))
	default:
		return nil, fmt.Errorf("unknown catalog backend: %s (valid options: sqlite, bleve)", backend)
	}
}
