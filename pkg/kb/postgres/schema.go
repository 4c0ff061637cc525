package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDocuments = `
CREATE TABLE IF NOT EXISTS kb_documents (
    id           TEXT         PRIMARY KEY,
    filename     TEXT         NOT NULL,
    status       TEXT         NOT NULL,
    chunk_count  INTEGER      NOT NULL DEFAULT 0,
    uploaded_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_kb_documents_status
    ON kb_documents (status);

CREATE INDEX IF NOT EXISTS idx_kb_documents_uploaded_at
    ON kb_documents (uploaded_at);
`

// ddlChunks returns the chunk table DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kb_chunks (
    id           TEXT     PRIMARY KEY,
    document_id  TEXT     NOT NULL REFERENCES kb_documents (id) ON DELETE CASCADE,
    chunk_index  INTEGER  NOT NULL,
    content      TEXT     NOT NULL,
    embedding    vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_kb_chunks_document_id
    ON kb_chunks (document_id);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and the pgvector extension
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model. Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlDocuments,
		ddlChunks(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("kb postgres migrate: %w", err)
		}
	}
	return nil
}
