// Package embeddings defines the Provider interface for vector embedding
// backends used by the knowledge-base retrieval engine.
//
// Implementations must be safe for concurrent use. All vectors produced by a
// single Provider instance share the dimensionality reported by Dimensions;
// the retrieval engine treats mixed-dimension vectors as a programming error.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The
	// returned slice has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in a single
	// backend call. The i-th result corresponds to texts[i]. On error no
	// partial results are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces.
	Dimensions() int

	// ModelID returns the backend model identifier, for logging and for
	// detecting corpus/query model mismatches.
	ModelID() string
}
