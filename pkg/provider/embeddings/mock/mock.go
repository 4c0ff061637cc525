// Package mock provides a test double for the embeddings.Provider interface.
//
// By default the mock derives a deterministic unit vector from the input text
// so that identical texts always embed identically; set EmbedFunc for full
// control over returned vectors.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, when set, computes the vector for a single text. When nil,
	// a deterministic pseudo-embedding derived from the text hash is used.
	EmbedFunc func(text string) []float32

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// DimensionsValue is returned by Dimensions. Defaults to 8 when zero.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records every text submitted via Embed or EmbedBatch.
	EmbedCalls []string
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, texts...)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.DimensionsValue == 0 {
		return 8
	}
	return p.DimensionsValue
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock-embed"
	}
	return p.ModelIDValue
}

// vector returns EmbedFunc(text) when configured, otherwise a deterministic
// unit vector seeded by the FNV hash of text. Must be called with p.mu held.
func (p *Provider) vector(text string) []float32 {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}

	dims := p.DimensionsValue
	if dims == 0 {
		dims = 8
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>16)%1000) / 1000.0
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
