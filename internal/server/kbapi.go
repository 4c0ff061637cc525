package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/AntoineDubuc/wingman-ai-sub005/internal/observe"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb"
)

// maxUploadBytes bounds KB document uploads.
const maxUploadBytes = 10 << 20

// documentJSON is the wire shape of a KB document.
type documentJSON struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func toDocumentJSON(d kb.Document) documentJSON {
	return documentJSON{
		ID:         d.ID,
		Filename:   d.Filename,
		Status:     string(d.Status),
		ChunkCount: d.ChunkCount,
		UploadedAt: d.UploadedAt,
	}
}

// handleUploadDocument ingests a multipart file upload into the knowledge
// base. Ingestion is synchronous; the response carries the final document
// state. A concurrent ingestion yields 409.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form with a \"file\" field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	filename := filepath.Base(header.Filename)
	docID := newDocumentID(filename)

	res, err := s.ingestor.Ingest(r.Context(), docID, filename, string(data))
	if err != nil {
		if errors.Is(err, kb.ErrIngestionInProgress) {
			writeError(w, http.StatusConflict, "another ingestion is in progress")
			return
		}
		s.metrics.DocumentsIngested.Add(r.Context(), 1,
			metric.WithAttributes(observe.Attr("status", string(kb.StatusError))))
		s.log.Error("document ingestion failed", "document_id", docID, "filename", filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "ingestion failed: "+err.Error())
		return
	}
	s.metrics.DocumentsIngested.Add(r.Context(), 1,
		metric.WithAttributes(observe.Attr("status", string(kb.StatusComplete))))

	writeJSON(w, http.StatusCreated, documentJSON{
		ID:         res.DocumentID,
		Filename:   filename,
		Status:     string(kb.StatusComplete),
		ChunkCount: res.ChunkCount,
		UploadedAt: time.Now(),
	})
}

// handleListDocuments lists all KB documents, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.log.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list documents failed")
		return
	}

	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = toDocumentJSON(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// handleGetDocument returns one document by id.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, kb.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.log.Error("get document failed", "error", err)
		writeError(w, http.StatusInternalServerError, "get document failed")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentJSON(doc))
}

// handleDeleteDocument removes a document and all of its chunks.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, kb.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.log.Error("delete document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete document failed")
		return
	}
	s.log.Info("document deleted", "document_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// queryRequest is the body of POST /v1/kb/query.
type queryRequest struct {
	Query string `json:"query"`

	// DocumentIDs scopes the search. Empty searches every complete
	// document.
	DocumentIDs []string `json:"document_ids"`
}

// queryHit is one scored retrieval result.
type queryHit struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}

// handleQuery runs an ad-hoc retrieval against the KB, mainly for verifying
// what a persona's allow-list would surface.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval is not configured")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	res, err := s.engine.Search(r.Context(), req.Query, req.DocumentIDs)
	if err != nil {
		s.log.Error("kb query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	hits := make([]queryHit, len(res.Chunks))
	for i, c := range res.Chunks {
		hits[i] = queryHit{
			DocumentID:   c.Chunk.DocumentID,
			DocumentName: c.DocumentName,
			Text:         c.Chunk.Text,
			Score:        c.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched": res.Matched,
		"source":  res.Source,
		"chunks":  hits,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
