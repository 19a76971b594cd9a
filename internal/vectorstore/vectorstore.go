// Package vectorstore implements the dense-vector side of hybrid
// retrieval: an in-process approximate nearest-neighbor index built
// on coder/hnsw, keyed by chunk ID.
package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	docerrors "github.com/docseek/docseek/internal/errors"
)

// Config configures the HNSW graph. The corresponding config-file
// section keeps the name qdrant for compatibility with existing
// configs; the fields here are the subset that actually drives the
// in-process graph.
type Config struct {
	Dimensions int
	Metric     string // "cos" (default) or "l2"
	M          int
	EfSearch   int
}

// DefaultConfig returns the stock graph tuning.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          32,
		EfSearch:   20,
	}
}

// Result is one nearest-neighbor hit.
type Result struct {
	ChunkID  string
	Distance float32
	Score    float32 // similarity, larger is better
}

// Store holds one vector per chunk: Upsert, Search, Delete, Contains
// (used by the indexer's missing-vector repair), persisted across
// process restarts via Save/Load.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

type storeMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  Config
}

// New creates an empty in-process vector store.
func New(cfg Config) *Store {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Open loads a store previously persisted at path, or returns a fresh
// empty store if no file exists there yet.
func Open(path string, cfg Config) (*Store, error) {
	s := New(cfg)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if err := s.Load(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert inserts or replaces vectors keyed by chunk ID. Replacing an
// existing ID uses lazy deletion (orphan the old graph node rather
// than delete it) to avoid a coder/hnsw defect when the last node in
// the graph is deleted.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return docerrors.Internal(fmt.Sprintf("ids/vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}
	if err := ctx.Err(); err != nil {
		return docerrors.VectorStoreUnavailable("vector upsert cancelled", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docerrors.VectorStoreUnavailable("vector store is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return docerrors.VectorStoreUnavailable(
				fmt.Sprintf("vector dimension mismatch: expected %d, got %d", s.config.Dimensions, len(v)), nil)
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Search returns the k nearest neighbors to query. The caller's
// context deadline is honored: an expired deadline fails the recall
// so the retriever can degrade to its lexical channel.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, docerrors.QueryTimeout("vector search cancelled", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, docerrors.VectorStoreUnavailable("vector store is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, docerrors.VectorStoreUnavailable(
			fmt.Sprintf("query dimension mismatch: expected %d, got %d", s.config.Dimensions, len(query)), nil)
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := s.graph.Search(q, k)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // lazily-deleted orphan
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, Result{
			ChunkID:  id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}
	return results, nil
}

// Delete removes vectors by chunk ID (lazy deletion).
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docerrors.VectorStoreUnavailable("vector store is closed", nil)
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains reports whether id has a vector, used by the indexer's
// missing-vector repair pass.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of live (non-orphaned) vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Stats reports graph occupancy, including lazily-deleted orphans.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	valid := len(s.idMap)
	nodes := s.graph.Len()
	return Stats{ValidIDs: valid, GraphNodes: nodes, Orphans: nodes - valid}
}

// Save persists the graph and ID mappings to path via a temp-file-then-rename.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return docerrors.VectorStoreUnavailable("vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return docerrors.IOError("create vector store directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return docerrors.IOError("create vector index temp file", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return docerrors.IOError("export hnsw graph", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return docerrors.IOError("close vector index temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return docerrors.IOError("rename vector index file", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *Store) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return docerrors.IOError("create vector metadata temp file", err)
	}

	meta := storeMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return docerrors.IOError("encode vector metadata", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return docerrors.IOError("close vector metadata temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return docerrors.IOError("rename vector metadata file", err)
	}
	return nil
}

// Load replaces the store's contents with the graph persisted at path.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docerrors.VectorStoreUnavailable("vector store is closed", nil)
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return docerrors.IOError("open vector index file", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return docerrors.New(docerrors.ErrCodeCorruptStore, "import hnsw graph", err)
	}
	return nil
}

func (s *Store) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return docerrors.IOError("open vector metadata file", err)
	}
	defer file.Close()

	var meta storeMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return docerrors.New(docerrors.ErrCodeCorruptStore, "decode vector metadata", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the store. It does not persist; call Save first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts a distance to a "larger is better" score:
// cosine distance maps to 1-d/2, L2 to 1/(1+d).
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
