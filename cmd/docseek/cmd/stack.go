package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/docseek/docseek/internal/catalog"
	"github.com/docseek/docseek/internal/chunker"
	"github.com/docseek/docseek/internal/config"
	"github.com/docseek/docseek/internal/embedder"
	"github.com/docseek/docseek/internal/extractor"
	"github.com/docseek/docseek/internal/frontier"
	"github.com/docseek/docseek/internal/indexer"
	"github.com/docseek/docseek/internal/retriever"
	"github.com/docseek/docseek/internal/searchapi"
	"github.com/docseek/docseek/internal/vectorstore"
)

// stack wires the full collaborator set against one store directory,
// backed by the persisted SQLite/HNSW/frontier files a CLI invocation
// needs to survive across process runs.
type stack struct {
	cfg   config.Config
	cat   catalog.Catalog
	vec   *vectorstore.Store
	emb   *embedder.StaticEmbedder
	front *frontier.Frontier
	ix    *indexer.Indexer
	rt    *retriever.Retriever
	api   *searchapi.API
}

func vectorStorePath(storeDir string) string {
	return filepath.Join(storeDir, "vectors.gob")
}

func frontierPath(storeDir string) string {
	return filepath.Join(storeDir, "frontier.json")
}

// loadConfig loads cfgPath (or defaults) and pins StorePath to
// storeDir, the layering every command needs before wiring a stack.
func loadConfig(storeDir, cfgPath string) (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if storeDir != "" {
		cfg.StorePath = storeDir
	}
	return cfg, nil
}

// openStack loads cfg and every persisted collaborator rooted at
// storeDir. Callers that mutate the vector store or frontier must
// call (*stack).Save before the process exits.
func openStack(storeDir, cfgPath string) (*stack, error) {
	cfg, err := loadConfig(storeDir, cfgPath)
	if err != nil {
		return nil, err
	}
	return openStackWithConfig(cfg)
}

// openStackWithConfig wires a stack from an already-loaded (and
// possibly CLI-flag-overridden) config, letting callers like
// bfs-index apply --max-tokens/--overlap/--allow before construction.
func openStackWithConfig(cfg config.Config) (*stack, error) {
	cat, err := catalog.Open(cfg.StorePath, catalog.Backend(cfg.Search.FTSBackend))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	emb := embedder.NewStaticEmbedder(cfg.Qdrant.Dimensions)

	vecCfg := vectorstore.DefaultConfig(cfg.Qdrant.Dimensions)
	vec, err := vectorstore.Open(vectorStorePath(cfg.StorePath), vecCfg)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	front, err := frontier.Open(frontierPath(cfg.StorePath))
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("open frontier: %w", err)
	}

	ix, err := indexer.New(indexer.Deps{
		Catalog:   cat,
		Vector:    vec,
		Embedder:  emb,
		Extractor: extractor.NewPlainTextExtractor(cfg.Index.AllowExts),
		Chunker:   chunker.NewWindowChunker(chunker.Config{MaxTokens: cfg.Index.MaxTokens, Overlap: cfg.Index.Overlap}),
		Frontier:  front,
	}, indexer.Config{
		AllowExts:   cfg.Index.AllowExts,
		Exclude:     cfg.Paths.Exclude,
		EmbedBatch:  cfg.Index.EmbedBatch,
		UpsertBatch: cfg.Index.UpsertBatch,
	})
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("construct indexer: %w", err)
	}

	rt := retriever.New(cat, vec, emb, retriever.Config{
		VecK:              cfg.Search.VecK,
		LexK:              cfg.Search.LexK,
		MergeK:            cfg.Search.MergeK,
		MaxResultsPerFile: cfg.Search.MaxResultsPerFile,
		BM25Weight:        cfg.Search.BM25Weight,
		CosineWeight:      cfg.Search.CosineWeight,
		ExactBoost:        cfg.Search.ExactBoost,
		EarlyPosBoost:     cfg.Search.EarlyPosBoost,
		VectorTimeout:     cfg.Search.VectorTimeout,
	})

	api, err := searchapi.New(rt, searchapi.Config{
		CacheSize: cfg.Search.CacheSize,
		CacheTTL:  cfg.Search.CacheTTL,
		RecallK:   cfg.Search.MergeK,
	})
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("construct search api: %w", err)
	}

	return &stack{cfg: cfg, cat: cat, vec: vec, emb: emb, front: front, ix: ix, rt: rt, api: api}, nil
}

// Save persists the vector store and frontier checkpoint back to
// disk. The catalog is already durable (SQLite/bleve write through).
func (s *stack) Save() error {
	if err := s.vec.Save(vectorStorePath(s.cfg.StorePath)); err != nil {
		return fmt.Errorf("save vector store: %w", err)
	}
	if err := s.front.Save(); err != nil {
		return fmt.Errorf("save frontier: %w", err)
	}
	return nil
}

func (s *stack) Close() error {
	return s.cat.Close()
}
