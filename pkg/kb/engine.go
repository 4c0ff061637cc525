package kb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/embeddings"
)

const (
	// DefaultThreshold is the minimum cosine similarity for a chunk to count
	// as relevant.
	DefaultThreshold = 0.6

	// DefaultTopK is how many relevant chunks a search retains.
	DefaultTopK = 3
)

// Engine answers retrieval queries over the chunk corpus.
//
// Search embeds the query once, streams candidate chunks from the store, and
// scores each with cosine similarity. Only chunks at or above the threshold
// survive, and of those only the top-K by score.
type Engine struct {
	store     Store
	embedder  embeddings.Provider
	threshold float64
	topK      int
	batchSize int
	log       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithThreshold sets the relevance threshold. Values outside (0, 1] keep the
// default.
func WithThreshold(th float64) EngineOption {
	return func(e *Engine) {
		if th > 0 && th <= 1 {
			e.threshold = th
		}
	}
}

// WithTopK sets how many chunks a search retains.
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithScanBatchSize sets the chunk batch size for store scans.
func WithScanBatchSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithEngineLogger sets the logger. Defaults to slog.Default.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates a retrieval engine over store, embedding queries with
// embedder.
func NewEngine(store Store, embedder embeddings.Provider, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		embedder:  embedder,
		threshold: DefaultThreshold,
		topK:      DefaultTopK,
		batchSize: DefaultScanBatchSize,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Search retrieves the chunks most relevant to query. documentIDs scopes the
// search to those documents; an empty list searches every complete document.
//
// A corpus with no relevant chunks is not an error: the result simply has
// Matched false and no chunks.
func (e *Engine) Search(ctx context.Context, query string, documentIDs []string) (*Result, error) {
	start := time.Now()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("kb: embed query: %w", err)
	}

	names, err := e.documentNames(ctx)
	if err != nil {
		return nil, err
	}

	best := make([]ScoredChunk, 0, e.topK+1)
	scanned := 0
	filter := ScanFilter{DocumentIDs: documentIDs, CompleteOnly: true}
	err = e.store.ScanChunks(ctx, filter, e.batchSize, func(batch []Chunk) error {
		for _, chunk := range batch {
			scanned++
			if len(chunk.Embedding) != len(queryVec) {
				// Stored under a different embedding model. Skip rather than
				// poison the whole search.
				e.log.Warn("skipping chunk with mismatched embedding dimensions",
					"chunk_id", chunk.ID,
					"chunk_dims", len(chunk.Embedding),
					"query_dims", len(queryVec),
				)
				continue
			}
			score := Cosine(queryVec, chunk.Embedding)
			if score < e.threshold {
				continue
			}
			best = insertRanked(best, ScoredChunk{
				Chunk:        chunk,
				Score:        score,
				DocumentName: names[chunk.DocumentID],
			}, e.topK)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kb: scan chunks: %w", err)
	}

	res := &Result{Matched: len(best) > 0, Chunks: best}
	if res.Matched {
		res.Source = best[0].DocumentName
	}

	e.log.Debug("kb search finished",
		"scanned", scanned,
		"matched", res.Matched,
		"hits", len(best),
		"top_score", res.TopScore(),
		"duration", time.Since(start),
	)
	return res, nil
}

// documentNames maps document IDs to filenames for source attribution.
func (e *Engine) documentNames(ctx context.Context) (map[string]string, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("kb: list documents: %w", err)
	}
	names := make(map[string]string, len(docs))
	for _, d := range docs {
		names[d.ID] = d.Filename
	}
	return names, nil
}

// insertRanked inserts sc into the descending-by-score slice best, keeping at
// most limit entries.
func insertRanked(best []ScoredChunk, sc ScoredChunk, limit int) []ScoredChunk {
	pos := sort.Search(len(best), func(i int) bool { return best[i].Score < sc.Score })
	best = append(best, ScoredChunk{})
	copy(best[pos+1:], best[pos:])
	best[pos] = sc
	if len(best) > limit {
		best = best[:limit]
	}
	return best
}
