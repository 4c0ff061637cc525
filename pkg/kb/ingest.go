package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/embeddings"
)

// ErrIngestionInProgress is returned by Ingest while another ingestion is
// still running. Ingestion is serialized so a burst of uploads cannot flood
// the embedding backend.
var ErrIngestionInProgress = errors.New("kb: another ingestion is in progress")

const (
	// embedBatchSize is how many chunk texts go into one embedding call.
	embedBatchSize = 64

	// embedConcurrency bounds in-flight embedding calls per ingestion.
	embedConcurrency = 4
)

// IngestResult reports a completed ingestion.
type IngestResult struct {
	DocumentID string
	ChunkCount int
}

// Ingestor turns raw document text into embedded chunks in the store.
//
// The pipeline is chunk, embed in batches, insert, then flip the document to
// StatusComplete. Any failure flips it to StatusError instead; partial chunks
// stay invisible to retrieval because the document never reaches complete.
type Ingestor struct {
	store    Store
	embedder embeddings.Provider
	chunker  *Chunker
	log      *slog.Logger

	mu   sync.Mutex
	busy bool
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithChunker overrides the default chunker.
func WithChunker(c *Chunker) IngestorOption {
	return func(i *Ingestor) { i.chunker = c }
}

// WithIngestLogger sets the logger. Defaults to slog.Default.
func WithIngestLogger(log *slog.Logger) IngestorOption {
	return func(i *Ingestor) { i.log = log }
}

// NewIngestor creates an Ingestor writing to store and embedding with
// embedder.
func NewIngestor(store Store, embedder embeddings.Provider, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		store:    store,
		embedder: embedder,
		chunker:  NewChunker(DefaultChunkSize),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// Ingest chunks, embeds, and stores the given document text. Only one
// ingestion may run at a time; concurrent calls fail fast with
// ErrIngestionInProgress rather than queueing.
func (i *Ingestor) Ingest(ctx context.Context, docID, filename, text string) (*IngestResult, error) {
	if !i.acquire() {
		return nil, ErrIngestionInProgress
	}
	defer i.release()

	start := time.Now()
	if err := i.store.InsertDocument(ctx, Document{
		ID:         docID,
		Filename:   filename,
		Status:     StatusProcessing,
		UploadedAt: start,
	}); err != nil {
		return nil, fmt.Errorf("kb: insert document: %w", err)
	}

	count, err := i.run(ctx, docID, text)
	if err != nil {
		if serr := i.store.UpdateDocumentStatus(ctx, docID, StatusError, 0); serr != nil {
			i.log.Error("failed to mark document as errored", "document_id", docID, "error", serr)
		}
		return nil, err
	}

	if err := i.store.UpdateDocumentStatus(ctx, docID, StatusComplete, count); err != nil {
		return nil, fmt.Errorf("kb: mark document complete: %w", err)
	}

	i.log.Info("document ingested",
		"document_id", docID,
		"filename", filename,
		"chunks", count,
		"duration", time.Since(start),
	)
	return &IngestResult{DocumentID: docID, ChunkCount: count}, nil
}

// run executes the chunk/embed/insert pipeline and returns the chunk count.
func (i *Ingestor) run(ctx context.Context, docID, text string) (int, error) {
	texts := i.chunker.Split(text)
	if len(texts) == 0 {
		return 0, fmt.Errorf("kb: document %s has no extractable text", docID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		offset, batch := start, texts[start:end]

		g.Go(func() error {
			vectors, err := i.embedder.EmbedBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("kb: embed chunks %d-%d: %w", offset, offset+len(batch)-1, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("kb: embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}

			chunks := make([]Chunk, len(batch))
			for n, chunkText := range batch {
				idx := offset + n
				chunks[n] = Chunk{
					ID:         ChunkID(docID, idx),
					DocumentID: docID,
					Text:       chunkText,
					Embedding:  vectors[n],
					Index:      idx,
				}
			}
			if err := i.store.InsertChunks(gctx, chunks); err != nil {
				return fmt.Errorf("kb: insert chunks %d-%d: %w", offset, offset+len(batch)-1, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(texts), nil
}

func (i *Ingestor) acquire() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.busy {
		return false
	}
	i.busy = true
	return true
}

func (i *Ingestor) release() {
	i.mu.Lock()
	i.busy = false
	i.mu.Unlock()
}
