package kb

import (
	"context"
	"slices"
	"sort"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store guarded by a RWMutex. It is the default
// backend when no database is configured; contents do not survive a restart.
type MemStore struct {
	mu        sync.RWMutex
	documents map[string]Document
	chunks    map[string][]Chunk // keyed by document ID, ordered by Index
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		documents: make(map[string]Document),
		chunks:    make(map[string][]Chunk),
	}
}

// InsertDocument implements Store.
func (s *MemStore) InsertDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

// UpdateDocumentStatus implements Store.
func (s *MemStore) UpdateDocumentStatus(_ context.Context, id string, status DocumentStatus, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	doc.ChunkCount = chunkCount
	s.documents[id] = doc
	return nil
}

// InsertChunks implements Store.
func (s *MemStore) InsertChunks(_ context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}
	return nil
}

// GetDocument implements Store.
func (s *MemStore) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// ListDocuments implements Store.
func (s *MemStore) ListDocuments(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.After(docs[j].UploadedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// DeleteDocument implements Store.
func (s *MemStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

// ScanChunks implements Store. Batches are snapshots, so fn may retain them
// and run without the store lock held.
func (s *MemStore) ScanChunks(ctx context.Context, filter ScanFilter, batchSize int, fn func(batch []Chunk) error) error {
	if batchSize <= 0 {
		batchSize = DefaultScanBatchSize
	}

	s.mu.RLock()
	var all []Chunk
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok {
			continue
		}
		if filter.CompleteOnly && doc.Status != StatusComplete {
			continue
		}
		if len(filter.DocumentIDs) > 0 && !slices.Contains(filter.DocumentIDs, docID) {
			continue
		}
		all = append(all, chunks...)
	}
	s.mu.RUnlock()

	for start := 0; start < len(all); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}
