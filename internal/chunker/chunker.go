// Package chunker splits extracted document text into overlapping
// token windows. It deliberately does not do language-aware splitting
// — scoring downstream (FTS, embeddings) is what distinguishes chunk
// relevance, not the tokenization itself.
package chunker

import (
	"strings"

	"github.com/docseek/docseek/internal/identity"
)

// Chunk is one overlapping window of a file's text.
type Chunk struct {
	ChunkID    string
	FileID     string
	Idx        int
	TokenStart int
	TokenEnd   int
	Text       string
}

// Config holds the window parameters.
type Config struct {
	MaxTokens int
	Overlap   int
}

// DefaultConfig returns the stock window size and overlap.
func DefaultConfig() Config {
	return Config{MaxTokens: 1200, Overlap: 80}
}

// Chunker is implemented by WindowChunker; named as an interface so
// the indexer depends on the contract rather than the concrete type.
type Chunker interface {
	Chunk(fileID string, text string) []Chunk
}

// WindowChunker implements Chunker by splitting on runs of whitespace
// and emitting overlapping windows of MaxTokens tokens, stepping by
// MaxTokens-Overlap tokens per window.
type WindowChunker struct {
	cfg Config
}

// NewWindowChunker constructs a WindowChunker, falling back to
// DefaultConfig's MaxTokens when MaxTokens is not positive and to
// DefaultConfig's Overlap when Overlap is negative or not below
// MaxTokens. An Overlap of 0 is kept.
func NewWindowChunker(cfg Config) *WindowChunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxTokens {
		cfg.Overlap = DefaultConfig().Overlap
	}
	return &WindowChunker{cfg: cfg}
}

// Chunk splits text into overlapping token windows. Window i covers
// tokens [i*(max_tokens-overlap), i*(max_tokens-overlap)+max_tokens),
// the last window truncated to the remaining tokens and emitted only
// if non-empty.
func (w *WindowChunker) Chunk(fileID string, text string) []Chunk {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	stride := w.cfg.MaxTokens - w.cfg.Overlap
	var chunks []Chunk
	idx := 0
	for start := 0; start < len(tokens); start += stride {
		end := start + w.cfg.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		if len(window) == 0 {
			break
		}

		chunks = append(chunks, Chunk{
			ChunkID:    identity.ChunkID(fileID, idx),
			FileID:     fileID,
			Idx:        idx,
			TokenStart: start,
			TokenEnd:   end,
			Text:       strings.Join(window, " "),
		})
		idx++

		if end == len(tokens) {
			break
		}
	}
	return chunks
}
