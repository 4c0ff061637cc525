// Package postgres provides a PostgreSQL-backed implementation of [kb.Store].
//
// Documents and chunks live in two tables with an ON DELETE CASCADE foreign
// key, so deleting a document removes its chunks in one statement. Chunk
// embeddings are stored in a pgvector column; the pgvector extension must be
// available in the target database and [Migrate] installs it automatically.
//
// Retrieval scoring happens in-process: ScanChunks streams chunk rows out in
// keyset-paginated batches and the engine computes cosine similarity itself,
// so the database needs no vector index to be correct.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb"
)

var _ kb.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [kb.Store]. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, registers pgvector types on every
// connection, and runs [Migrate].
//
// embeddingDimensions must match the embedding provider's output dimension
// (e.g. 1536 for text-embedding-3-small). Changing it after the first
// migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("kb postgres: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kb postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kb postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kb postgres: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertDocument implements kb.Store.
func (s *Store) InsertDocument(ctx context.Context, doc kb.Document) error {
	const q = `
		INSERT INTO kb_documents (id, filename, status, chunk_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, doc.ID, doc.Filename, string(doc.Status), doc.ChunkCount, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("kb postgres: insert document: %w", err)
	}
	return nil
}

// UpdateDocumentStatus implements kb.Store.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status kb.DocumentStatus, chunkCount int) error {
	const q = `
		UPDATE kb_documents
		SET    status = $2, chunk_count = $3
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, string(status), chunkCount)
	if err != nil {
		return fmt.Errorf("kb postgres: update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return kb.ErrDocumentNotFound
	}
	return nil
}

// InsertChunks implements kb.Store. The batch is written in a single
// transaction so a failure leaves no partial batch behind.
func (s *Store) InsertChunks(ctx context.Context, chunks []kb.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	const q = `
		INSERT INTO kb_chunks (id, document_id, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(q, c.ID, c.DocumentID, c.Index, c.Text, pgvector.NewVector(c.Embedding))
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("kb postgres: insert chunks: %w", err)
	}
	return nil
}

// GetDocument implements kb.Store.
func (s *Store) GetDocument(ctx context.Context, id string) (kb.Document, error) {
	const q = `
		SELECT id, filename, status, chunk_count, uploaded_at
		FROM   kb_documents
		WHERE  id = $1`

	rows, _ := s.pool.Query(ctx, q, id)
	doc, err := pgx.CollectOneRow(rows, scanDocument)
	if errors.Is(err, pgx.ErrNoRows) {
		return kb.Document{}, kb.ErrDocumentNotFound
	}
	if err != nil {
		return kb.Document{}, fmt.Errorf("kb postgres: get document: %w", err)
	}
	return doc, nil
}

// ListDocuments implements kb.Store.
func (s *Store) ListDocuments(ctx context.Context) ([]kb.Document, error) {
	const q = `
		SELECT id, filename, status, chunk_count, uploaded_at
		FROM   kb_documents
		ORDER  BY uploaded_at DESC, id`

	rows, _ := s.pool.Query(ctx, q)
	docs, err := pgx.CollectRows(rows, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("kb postgres: list documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument implements kb.Store. Chunks go with the document via the
// foreign key cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kb_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("kb postgres: delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return kb.ErrDocumentNotFound
	}
	return nil
}

// ScanChunks implements kb.Store. It pages through the chunks table with
// keyset pagination on the chunk ID so memory stays bounded by batchSize no
// matter how large the corpus grows.
func (s *Store) ScanChunks(ctx context.Context, filter kb.ScanFilter, batchSize int, fn func(batch []kb.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = kb.DefaultScanBatchSize
	}

	q := `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.embedding
		FROM   kb_chunks c
		JOIN   kb_documents d ON d.id = c.document_id
		WHERE  c.id > $1`
	args := []any{""}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CompleteOnly {
		q += "\n  AND d.status = " + next(string(kb.StatusComplete))
	}
	if len(filter.DocumentIDs) > 0 {
		q += "\n  AND c.document_id = ANY(" + next(filter.DocumentIDs) + ")"
	}
	q += fmt.Sprintf("\nORDER BY c.id\nLIMIT %d", batchSize)

	for {
		rows, _ := s.pool.Query(ctx, q, args...)
		batch, err := pgx.CollectRows(rows, scanChunk)
		if err != nil {
			return fmt.Errorf("kb postgres: scan chunks: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		args[0] = batch[len(batch)-1].ID
	}
}

func scanDocument(row pgx.CollectableRow) (kb.Document, error) {
	var (
		doc    kb.Document
		status string
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &status, &doc.ChunkCount, &doc.UploadedAt); err != nil {
		return kb.Document{}, err
	}
	doc.Status = kb.DocumentStatus(status)
	return doc, nil
}

func scanChunk(row pgx.CollectableRow) (kb.Chunk, error) {
	var (
		c   kb.Chunk
		vec pgvector.Vector
	)
	if err := row.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &vec); err != nil {
		return kb.Chunk{}, err
	}
	c.Embedding = vec.Slice()
	return c, nil
}
