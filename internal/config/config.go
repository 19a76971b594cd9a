// Package config loads docseek's YAML configuration, merges it over
// built-in defaults, and applies DOCSEEK_* environment overrides as
// the highest-priority layer. Recognized sections: index, search,
// qdrant, paths.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	docerrors "github.com/docseek/docseek/internal/errors"
)

// IndexConfig configures the BFS indexer.
type IndexConfig struct {
	MaxItems    int      `yaml:"max_items" json:"max_items"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens"`
	Overlap     int      `yaml:"overlap" json:"overlap"`
	OCR         bool     `yaml:"ocr" json:"ocr"`
	MaxPDFPages int      `yaml:"max_pdf_pages" json:"max_pdf_pages"`
	AllowExts   []string `yaml:"allow_exts" json:"allow_exts"`
	EmbedBatch  int      `yaml:"embed_batch" json:"embed_batch"`
	UpsertBatch int      `yaml:"upsert_batch" json:"upsert_batch"`
}

// SearchConfig configures the hybrid retrieval pipeline.
type SearchConfig struct {
	VecK               int           `yaml:"vec_k" json:"vec_k"`
	LexK               int           `yaml:"lex_k" json:"lex_k"`
	MergeK             int           `yaml:"merge_k" json:"merge_k"`
	MaxResultsPerFile  int           `yaml:"max_results_per_file" json:"max_results_per_file"`
	BM25Weight         float64       `yaml:"bm25_weight" json:"bm25_weight"`
	CosineWeight       float64       `yaml:"cosine_weight" json:"cosine_weight"`
	ExactBoost         float64       `yaml:"exact_boost" json:"exact_boost"`
	EarlyPosBoost      float64       `yaml:"early_pos_boost" json:"early_pos_boost"`
	VectorTimeout      time.Duration `yaml:"vector_timeout" json:"vector_timeout"`
	SnippetRadius      int           `yaml:"snippet_radius" json:"snippet_radius"`
	CacheSize          int           `yaml:"cache_size" json:"cache_size"`
	CacheTTL           time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	FTSBackend         string        `yaml:"fts_backend" json:"fts_backend"` // "sqlite" (default) or "bleve"
}

// QdrantConfig names the vector-store backend configuration. The
// section name predates the in-process HNSW store; URL and Collection
// are accepted so existing configs written for a remote Qdrant
// instance still parse, but the default in-process store ignores
// them.
type QdrantConfig struct {
	URL        string `yaml:"url" json:"url"`
	Collection string `yaml:"collection" json:"collection"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
}

// PathsConfig lists the crawl roots and exclude globs.
type PathsConfig struct {
	Roots   []string `yaml:"roots" json:"roots"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// Config is the full merged docseek configuration.
type Config struct {
	StorePath string       `yaml:"store_path" json:"store_path"`
	Index     IndexConfig  `yaml:"index" json:"index"`
	Search    SearchConfig `yaml:"search" json:"search"`
	Qdrant    QdrantConfig `yaml:"qdrant" json:"qdrant"`
	Paths     PathsConfig  `yaml:"paths" json:"paths"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		StorePath: "store",
		Index: IndexConfig{
			MaxItems:    1000,
			MaxTokens:   1200,
			Overlap:     80,
			OCR:         false,
			MaxPDFPages: 50,
			AllowExts:   []string{".txt", ".md", ".markdown", ".html", ".htm", ".pdf", ".docx"},
			EmbedBatch:  32,
			UpsertBatch: 64,
		},
		Search: SearchConfig{
			VecK:              300,
			LexK:              200,
			MergeK:            400,
			MaxResultsPerFile: 1,
			BM25Weight:        0.55,
			CosineWeight:      0.45,
			ExactBoost:        0.20,
			EarlyPosBoost:     0.10,
			VectorTimeout:     2500 * time.Millisecond,
			SnippetRadius:     80,
			CacheSize:         128,
			CacheTTL:          3600 * time.Second,
			FTSBackend:        "sqlite",
		},
		Qdrant: QdrantConfig{
			Dimensions: 384,
		},
	}
}

// Load reads a YAML file at path (if it exists), merges it over
// Default(), then applies environment overrides. A missing file is
// not an error — defaults plus env overrides are used as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyEnvOverrides(&cfg)
				return cfg, nil
			}
			return cfg, docerrors.InvalidConfig("read config file", err).WithDetail("path", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, docerrors.InvalidConfig("parse config yaml", err).WithDetail("path", path)
		}
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Index.MaxTokens <= cfg.Index.Overlap {
		return docerrors.InvalidConfig(
			fmt.Sprintf("index.max_tokens (%d) must exceed index.overlap (%d)", cfg.Index.MaxTokens, cfg.Index.Overlap),
			nil,
		)
	}
	return nil
}

// applyEnvOverrides applies the DOCSEEK_* string-typed overrides.
// Unrecognized environment variables are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCSEEK_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("DOCSEEK_VECTOR_URL"); v != "" {
		cfg.Qdrant.URL = v
	}
	if v := os.Getenv("DOCSEEK_VECTOR_COLLECTION"); v != "" {
		cfg.Qdrant.Collection = v
	}
	if v := os.Getenv("DOCSEEK_INDEX_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MaxTokens = n
		}
	}
	if v := os.Getenv("DOCSEEK_OCR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.OCR = b
		}
	}
	if v := os.Getenv("DOCSEEK_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.VectorTimeout = d
		}
	}
	if v := os.Getenv("DOCSEEK_BM25_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.BM25Weight = f
		}
	}
	if v := os.Getenv("DOCSEEK_COSINE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.CosineWeight = f
		}
	}
}
