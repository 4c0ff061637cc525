package kb_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb"
	embedmock "github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/embeddings/mock"
)

func TestIngestProducesCompleteDocument(t *testing.T) {
	t.Parallel()

	store := kb.NewMemStore()
	ing := kb.NewIngestor(store, &embedmock.Provider{}, kb.WithChunker(kb.NewChunker(200)))

	text := strings.Repeat("Pricing starts at forty dollars per seat. ", 20)
	res, err := ing.Ingest(context.Background(), "doc-1", "pricing.md", text)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunkCount < 2 {
		t.Fatalf("ChunkCount = %d, want several", res.ChunkCount)
	}

	doc, err := store.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != kb.StatusComplete {
		t.Errorf("status = %s, want complete", doc.Status)
	}
	if doc.ChunkCount != res.ChunkCount {
		t.Errorf("ChunkCount = %d, want %d", doc.ChunkCount, res.ChunkCount)
	}

	var stored []kb.Chunk
	err = store.ScanChunks(context.Background(), kb.ScanFilter{CompleteOnly: true}, 0, func(batch []kb.Chunk) error {
		stored = append(stored, batch...)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanChunks: %v", err)
	}
	if len(stored) != res.ChunkCount {
		t.Fatalf("stored chunks = %d, want %d", len(stored), res.ChunkCount)
	}

	seen := make(map[string]bool, len(stored))
	for _, c := range stored {
		if c.ID != kb.ChunkID("doc-1", c.Index) {
			t.Errorf("chunk ID = %q, want %q", c.ID, kb.ChunkID("doc-1", c.Index))
		}
		if len(c.Embedding) == 0 {
			t.Errorf("chunk %s has no embedding", c.ID)
		}
		seen[c.ID] = true
	}
	if len(seen) != res.ChunkCount {
		t.Errorf("distinct chunk IDs = %d, want %d", len(seen), res.ChunkCount)
	}
}

func TestIngestEmbedFailureMarksDocumentErrored(t *testing.T) {
	t.Parallel()

	store := kb.NewMemStore()
	embedder := &embedmock.Provider{Err: errors.New("backend down")}
	ing := kb.NewIngestor(store, embedder)

	_, err := ing.Ingest(context.Background(), "doc-1", "a.md", "Some document text.")
	if err == nil {
		t.Fatal("Ingest succeeded with a failing embedder")
	}

	doc, gerr := store.GetDocument(context.Background(), "doc-1")
	if gerr != nil {
		t.Fatalf("GetDocument: %v", gerr)
	}
	if doc.Status != kb.StatusError {
		t.Errorf("status = %s, want error", doc.Status)
	}
}

func TestIngestEmptyTextFails(t *testing.T) {
	t.Parallel()

	ing := kb.NewIngestor(kb.NewMemStore(), &embedmock.Provider{})
	if _, err := ing.Ingest(context.Background(), "doc-1", "empty.md", "   \n\n  "); err == nil {
		t.Fatal("Ingest accepted a document with no text")
	}
}

func TestIngestRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	embedder := &embedmock.Provider{}
	embedder.EmbedFunc = func(string) []float32 {
		once.Do(func() { close(started) })
		<-release
		return []float32{1, 0}
	}

	ing := kb.NewIngestor(kb.NewMemStore(), embedder)

	done := make(chan error, 1)
	go func() {
		_, err := ing.Ingest(context.Background(), "doc-1", "a.md", "First document.")
		done <- err
	}()
	<-started

	_, err := ing.Ingest(context.Background(), "doc-2", "b.md", "Second document.")
	if !errors.Is(err, kb.ErrIngestionInProgress) {
		t.Errorf("concurrent Ingest = %v, want ErrIngestionInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	// The lock is free again once the first run finishes.
	if _, err := ing.Ingest(context.Background(), "doc-3", "c.md", "Third document."); err != nil {
		t.Errorf("Ingest after release: %v", err)
	}
}
