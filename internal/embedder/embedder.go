// Package embedder defines the dense-vector embedding collaborator
// boundary and ships one concrete, dependency-free default
// implementation.
package embedder

import "context"

// Embedder is the external collaborator contract the Indexer and
// Retriever depend on. Real deployments plug in a model-backed
// implementation; StaticEmbedder below is the default used when none
// is configured.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}
