// Package kb implements the persona-scoped knowledge base: document
// ingestion (chunking + embedding), storage, and cosine-similarity retrieval.
//
// The retrieval model is deliberately simple: no index structure is built.
// Search embeds the query and scans every chunk belonging to the allowed
// documents, computing cosine similarity in-process. Stores stream chunks in
// bounded batches so corpus size caps memory, not correctness; search cost
// stays O(n) regardless.
package kb

import (
	"fmt"
	"time"
)

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

const (
	// StatusProcessing marks a document whose chunks are still being
	// embedded and written.
	StatusProcessing DocumentStatus = "processing"

	// StatusComplete marks a fully ingested document. Only complete
	// documents are eligible for retrieval.
	StatusComplete DocumentStatus = "complete"

	// StatusError marks a document whose ingestion failed. Its partial
	// chunks, if any, are never searched.
	StatusError DocumentStatus = "error"
)

// IsValid reports whether s is a recognised document status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusProcessing, StatusComplete, StatusError:
		return true
	}
	return false
}

// Document is an ingested source document.
type Document struct {
	// ID uniquely identifies the document.
	ID string

	// Filename is the original upload filename, shown as the suggestion's
	// KB source attribution.
	Filename string

	// Status is the ingestion lifecycle state.
	Status DocumentStatus

	// ChunkCount is the number of chunks produced, set when ingestion
	// completes.
	ChunkCount int

	// UploadedAt records when ingestion started.
	UploadedAt time.Time
}

// Chunk is one embedded passage of a document. Chunks are immutable once
// written and are deleted only via their parent document.
type Chunk struct {
	// ID is the deterministic chunk identity "<documentID>_<index>".
	ID string

	// DocumentID is the parent document's ID.
	DocumentID string

	// Text is the chunk's passage text.
	Text string

	// Embedding is the chunk's vector, of the embedding provider's fixed
	// dimensionality.
	Embedding []float32

	// Index is the chunk's position within the document, starting at 0.
	Index int
}

// ChunkID builds the deterministic chunk identity for a document and index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}

// ScoredChunk is a search hit: a chunk plus its similarity to the query.
type ScoredChunk struct {
	Chunk Chunk

	// Score is the cosine similarity to the query embedding, in [-1, 1].
	Score float64

	// DocumentName is the filename of the owning document.
	DocumentName string
}

// Result is the outcome of a retrieval query.
type Result struct {
	// Matched reports whether any chunk met the relevance threshold.
	Matched bool

	// Chunks are the retained hits, highest score first, at most top-K.
	Chunks []ScoredChunk

	// Source is the filename of the document owning the best hit. Empty
	// when Matched is false.
	Source string
}

// TopScore returns the best hit's score, or 0 when there are no hits.
func (r Result) TopScore() float64 {
	if len(r.Chunks) == 0 {
		return 0
	}
	return r.Chunks[0].Score
}

// Context formats the retained chunks into a prompt context block.
// Returns the empty string when nothing matched.
func (r Result) Context() string {
	if !r.Matched {
		return ""
	}
	out := ""
	for i, c := range r.Chunks {
		if i > 0 {
			out += "\n\n"
		}
		out += fmt.Sprintf("[%s]\n%s", c.DocumentName, c.Chunk.Text)
	}
	return out
}
