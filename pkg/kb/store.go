package kb

import (
	"context"
	"errors"
)

// ErrDocumentNotFound is returned by store lookups for unknown document IDs.
var ErrDocumentNotFound = errors.New("kb: document not found")

// DefaultScanBatchSize bounds how many chunks a store yields per ScanChunks
// callback.
const DefaultScanBatchSize = 256

// ScanFilter restricts which chunks ScanChunks visits.
type ScanFilter struct {
	// DocumentIDs is an allow-list of parent documents. Empty means every
	// document that passes the status filter.
	DocumentIDs []string

	// CompleteOnly skips chunks of documents that are not StatusComplete.
	CompleteOnly bool
}

// Store persists documents and their embedded chunks.
//
// Implementations must make DeleteDocument cascade to the document's chunks
// and must never yield chunks of a deleted document from ScanChunks.
type Store interface {
	// InsertDocument writes a new document record.
	InsertDocument(ctx context.Context, doc Document) error

	// UpdateDocumentStatus transitions a document's lifecycle state and
	// records its final chunk count.
	UpdateDocumentStatus(ctx context.Context, id string, status DocumentStatus, chunkCount int) error

	// InsertChunks writes a batch of embedded chunks.
	InsertChunks(ctx context.Context, chunks []Chunk) error

	// GetDocument returns the document with the given ID, or
	// ErrDocumentNotFound.
	GetDocument(ctx context.Context, id string) (Document, error)

	// ListDocuments returns all documents, newest upload first.
	ListDocuments(ctx context.Context) ([]Document, error)

	// DeleteDocument removes a document and all of its chunks. Deleting an
	// unknown ID returns ErrDocumentNotFound.
	DeleteDocument(ctx context.Context, id string) error

	// ScanChunks streams every chunk matching filter to fn in batches of at
	// most batchSize. Iteration stops on the first error fn returns.
	ScanChunks(ctx context.Context, filter ScanFilter, batchSize int, fn func(batch []Chunk) error) error
}
