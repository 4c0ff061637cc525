package kb

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedDocument(t *testing.T, s *MemStore, id string, status DocumentStatus, chunkTexts ...string) {
	t.Helper()
	ctx := context.Background()

	if err := s.InsertDocument(ctx, Document{
		ID:         id,
		Filename:   id + ".md",
		Status:     StatusProcessing,
		UploadedAt: time.Now(),
	}); err != nil {
		t.Fatalf("InsertDocument(%s): %v", id, err)
	}

	chunks := make([]Chunk, len(chunkTexts))
	for i, text := range chunkTexts {
		chunks[i] = Chunk{
			ID:         ChunkID(id, i),
			DocumentID: id,
			Text:       text,
			Embedding:  []float32{1, 0},
			Index:      i,
		}
	}
	if len(chunks) > 0 {
		if err := s.InsertChunks(ctx, chunks); err != nil {
			t.Fatalf("InsertChunks(%s): %v", id, err)
		}
	}
	if err := s.UpdateDocumentStatus(ctx, id, status, len(chunks)); err != nil {
		t.Fatalf("UpdateDocumentStatus(%s): %v", id, err)
	}
}

func scanAll(t *testing.T, s *MemStore, filter ScanFilter) []Chunk {
	t.Helper()
	var got []Chunk
	err := s.ScanChunks(context.Background(), filter, 2, func(batch []Chunk) error {
		got = append(got, batch...)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanChunks: %v", err)
	}
	return got
}

func TestMemStoreDocumentLifecycle(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()
	seedDocument(t, s, "doc-1", StatusComplete, "alpha", "beta")

	doc, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != StatusComplete || doc.ChunkCount != 2 {
		t.Errorf("doc = %+v, want complete with 2 chunks", doc)
	}

	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("GetDocument(missing) = %v, want ErrDocumentNotFound", err)
	}
}

func TestMemStoreListDocumentsNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.InsertDocument(ctx, Document{
			ID:         id,
			UploadedAt: now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len = %d, want 3", len(docs))
	}
	if docs[0].ID != "new" || docs[2].ID != "old" {
		t.Errorf("order = [%s %s %s], want newest first", docs[0].ID, docs[1].ID, docs[2].ID)
	}
}

func TestMemStoreDeleteCascadesToChunks(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()
	seedDocument(t, s, "doc-1", StatusComplete, "alpha", "beta")
	seedDocument(t, s, "doc-2", StatusComplete, "gamma")

	if err := s.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	got := scanAll(t, s, ScanFilter{})
	if len(got) != 1 || got[0].DocumentID != "doc-2" {
		t.Errorf("surviving chunks = %+v, want only doc-2's", got)
	}

	if err := s.DeleteDocument(ctx, "doc-1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second delete = %v, want ErrDocumentNotFound", err)
	}
}

func TestMemStoreScanFilters(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	seedDocument(t, s, "done", StatusComplete, "a", "b")
	seedDocument(t, s, "pending", StatusProcessing, "c")
	seedDocument(t, s, "failed", StatusError, "d")

	t.Run("complete only", func(t *testing.T) {
		got := scanAll(t, s, ScanFilter{CompleteOnly: true})
		if len(got) != 2 {
			t.Fatalf("chunks = %d, want 2", len(got))
		}
		for _, c := range got {
			if c.DocumentID != "done" {
				t.Errorf("chunk from %s leaked through complete-only filter", c.DocumentID)
			}
		}
	})

	t.Run("allow list", func(t *testing.T) {
		got := scanAll(t, s, ScanFilter{DocumentIDs: []string{"pending"}})
		if len(got) != 1 || got[0].DocumentID != "pending" {
			t.Errorf("chunks = %+v, want only pending's", got)
		}
	})

	t.Run("allow list excludes everything", func(t *testing.T) {
		got := scanAll(t, s, ScanFilter{DocumentIDs: []string{"nope"}})
		if len(got) != 0 {
			t.Errorf("chunks = %+v, want none", got)
		}
	})
}

func TestMemStoreScanBatchSize(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	seedDocument(t, s, "doc", StatusComplete, "a", "b", "c", "d", "e")

	var sizes []int
	err := s.ScanChunks(context.Background(), ScanFilter{}, 2, func(batch []Chunk) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	if err != nil {
		t.Fatalf("ScanChunks: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}
}

func TestMemStoreScanStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	seedDocument(t, s, "doc", StatusComplete, "a", "b", "c", "d")

	boom := errors.New("boom")
	calls := 0
	err := s.ScanChunks(context.Background(), ScanFilter{}, 1, func([]Chunk) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times after error, want 1", calls)
	}
}
