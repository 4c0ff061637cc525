package kb_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb"
	embedmock "github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/embeddings/mock"
)

// angledVector returns a 2D unit vector whose cosine similarity with the
// query vector {1, 0} is exactly sim.
func angledVector(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

// fixtureEmbedder maps known texts to vectors with controlled similarity to
// the query "the query".
func fixtureEmbedder(scores map[string]float64) *embedmock.Provider {
	return &embedmock.Provider{
		DimensionsValue: 2,
		EmbedFunc: func(text string) []float32 {
			if sim, ok := scores[text]; ok {
				return angledVector(sim)
			}
			return []float32{1, 0} // the query itself
		},
	}
}

func seedCompleteDocument(t *testing.T, store kb.Store, id, filename string, chunks ...kb.Chunk) {
	t.Helper()
	ctx := context.Background()

	if err := store.InsertDocument(ctx, kb.Document{
		ID: id, Filename: filename, Status: kb.StatusProcessing, UploadedAt: time.Now(),
	}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if err := store.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}
	if err := store.UpdateDocumentStatus(ctx, id, kb.StatusComplete, len(chunks)); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
}

func TestSearchRanksAndThresholds(t *testing.T) {
	t.Parallel()

	store := kb.NewMemStore()
	seedCompleteDocument(t, store, "doc-a", "pricing.md",
		kb.Chunk{ID: "doc-a_0", DocumentID: "doc-a", Text: "strong match", Embedding: angledVector(0.81), Index: 0},
		kb.Chunk{ID: "doc-a_1", DocumentID: "doc-a", Text: "weak match", Embedding: angledVector(0.40), Index: 1},
	)
	seedCompleteDocument(t, store, "doc-b", "security.md",
		kb.Chunk{ID: "doc-b_0", DocumentID: "doc-b", Text: "medium match", Embedding: angledVector(0.62), Index: 0},
	)

	engine := kb.NewEngine(store, fixtureEmbedder(nil), kb.WithThreshold(0.55), kb.WithTopK(2))
	res, err := engine.Search(context.Background(), "the query", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if !res.Matched {
		t.Fatal("Matched = false, want true")
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("hits = %d, want 2 (0.40 is below threshold)", len(res.Chunks))
	}
	if res.Chunks[0].Chunk.Text != "strong match" || res.Chunks[1].Chunk.Text != "medium match" {
		t.Errorf("order = [%q %q], want strongest first", res.Chunks[0].Chunk.Text, res.Chunks[1].Chunk.Text)
	}
	if res.Source != "pricing.md" {
		t.Errorf("Source = %q, want the best hit's document", res.Source)
	}
	if math.Abs(res.TopScore()-0.81) > 1e-6 {
		t.Errorf("TopScore = %v, want 0.81", res.TopScore())
	}
}

func TestSearchNothingAboveThreshold(t *testing.T) {
	t.Parallel()

	store := kb.NewMemStore()
	seedCompleteDocument(t, store, "doc-a", "a.md",
		kb.Chunk{ID: "doc-a_0", DocumentID: "doc-a", Text: "off topic", Embedding: angledVector(0.2), Index: 0},
	)

	engine := kb.NewEngine(store, fixtureEmbedder(nil))
	res, err := engine.Search(context.Background(), "the query", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Matched || len(res.Chunks) != 0 || res.Source != "" {
		t.Errorf("result = %+v, want empty miss", res)
	}
}

func TestSearchScopedToAllowedDocuments(t *testing.T) {
	t.Parallel()

	store := kb.NewMemStore()
	seedCompleteDocument(t, store, "allowed", "allowed.md",
		kb.Chunk{ID: "allowed_0", DocumentID: "allowed", Text: "in scope", Embedding: angledVector(0.7), Index: 0},
	)
	seedCompleteDocument(t, store, "other", "other.md",
		kb.Chunk{ID: "other_0", DocumentID: "other", Text: "out of scope", Embedding: angledVector(0.99), Index: 0},
	)

	engine := kb.NewEngine(store, fixtureEmbedder(nil))
	res, err := engine.Search(context.Background(), "the query", []string{"allowed"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.DocumentID != "allowed" {
		t.Fatalf("hits = %+v, want only the allowed document's chunk", res.Chunks)
	}
}

func TestSearchIgnoresIncompleteDocuments(t *testing.T) {
	t.Parallel()

	store := kb.NewMemStore()
	ctx := context.Background()
	if err := store.InsertDocument(ctx, kb.Document{ID: "pending", Filename: "pending.md", Status: kb.StatusProcessing}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if err := store.InsertChunks(ctx, []kb.Chunk{
		{ID: "pending_0", DocumentID: "pending", Text: "half ingested", Embedding: angledVector(0.95), Index: 0},
	}); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}

	engine := kb.NewEngine(store, fixtureEmbedder(nil))
	res, err := engine.Search(ctx, "the query", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Matched {
		t.Error("matched chunks of a still-processing document")
	}
}

func TestSearchSkipsMismatchedDimensions(t *testing.T) {
	t.Parallel()

	store := kb.NewMemStore()
	seedCompleteDocument(t, store, "doc", "doc.md",
		kb.Chunk{ID: "doc_0", DocumentID: "doc", Text: "stale model", Embedding: []float32{1, 0, 0}, Index: 0},
		kb.Chunk{ID: "doc_1", DocumentID: "doc", Text: "current model", Embedding: angledVector(0.9), Index: 1},
	)

	engine := kb.NewEngine(store, fixtureEmbedder(nil))
	res, err := engine.Search(context.Background(), "the query", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.Text != "current model" {
		t.Errorf("hits = %+v, want only the matching-dimension chunk", res.Chunks)
	}
}

func TestResultContext(t *testing.T) {
	t.Parallel()

	res := kb.Result{
		Matched: true,
		Chunks: []kb.ScoredChunk{
			{Chunk: kb.Chunk{Text: "first passage"}, Score: 0.9, DocumentName: "a.md"},
			{Chunk: kb.Chunk{Text: "second passage"}, Score: 0.7, DocumentName: "b.md"},
		},
	}
	want := "[a.md]\nfirst passage\n\n[b.md]\nsecond passage"
	if got := res.Context(); got != want {
		t.Errorf("Context() = %q, want %q", got, want)
	}

	if got := (kb.Result{}).Context(); got != "" {
		t.Errorf("empty result Context() = %q, want empty", got)
	}
}
