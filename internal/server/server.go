// Package server exposes the suggestion pipeline over the network: a
// WebSocket session endpoint for live calls, a knowledge-base management
// HTTP API, and the operational endpoints (/healthz, /readyz, /metrics).
//
// The package is outward surface only. It wires transports to
// internal/endpoint, internal/coach, and pkg/kb but contains no pipeline
// logic of its own.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AntoineDubuc/wingman-ai-sub005/internal/coach"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/health"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/observe"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/stt"
)

// defaultSystemPrompt is used when a connection selects no persona and none
// are configured.
const defaultSystemPrompt = "You are an expert sales coach listening to a live call. " +
	"Give the rep one short, actionable suggestion for what to say or ask next. " +
	"Be specific and concise."

// Tuning carries the per-session pipeline settings the server hands to each
// new connection. Zero values select the pipeline defaults.
type Tuning struct {
	// Cooldown is the minimum gap between two suggestion generations.
	Cooldown time.Duration

	// EndpointFallback is the endpointing fallback flush timeout.
	EndpointFallback time.Duration

	// MaxHistoryTurns bounds the rolling chat history.
	MaxHistoryTurns int

	// MinUtteranceWords is the shortest utterance worth a suggestion.
	MinUtteranceWords int
}

// Config holds the dependencies for a Server.
type Config struct {
	// LLM generates suggestions and summaries. Required.
	LLM llm.Provider

	// STT relays client audio to a transcription backend. Optional; when
	// nil, clients must push transcript events themselves.
	STT stt.Provider

	// Store backs the KB document endpoints. Required.
	Store kb.Store

	// Ingestor handles document uploads. Required.
	Ingestor *kb.Ingestor

	// Engine answers retrieval queries. Optional; when nil, sessions run
	// without KB context and /v1/kb/query is unavailable.
	Engine *kb.Engine

	// Personas a connection may select. The first entry is the default.
	Personas []coach.Persona

	// Tuning is applied to every session.
	Tuning Tuning

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// HealthCheckers back the /readyz endpoint.
	HealthCheckers []health.Checker
}

// Server is the HTTP/WebSocket surface of the application.
type Server struct {
	llm      llm.Provider
	stt      stt.Provider
	store    kb.Store
	ingestor *kb.Ingestor
	engine   *kb.Engine
	tuning   Tuning
	metrics  *observe.Metrics
	log      *slog.Logger
	health   *health.Handler

	personas       map[string]coach.Persona
	defaultPersona string
}

// New creates a Server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.LLM == nil {
		return nil, errors.New("server: LLM provider is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: KB store is required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("server: KB ingestor is required")
	}

	s := &Server{
		llm:      cfg.LLM,
		stt:      cfg.STT,
		store:    cfg.Store,
		ingestor: cfg.Ingestor,
		engine:   cfg.Engine,
		tuning:   cfg.Tuning,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		health:   health.New(cfg.HealthCheckers...),
		personas: make(map[string]coach.Persona, len(cfg.Personas)),
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	for i, p := range cfg.Personas {
		if _, dup := s.personas[p.ID]; dup {
			return nil, fmt.Errorf("server: duplicate persona id %q", p.ID)
		}
		s.personas[p.ID] = p
		if i == 0 {
			s.defaultPersona = p.ID
		}
	}
	return s, nil
}

// Handler returns the fully routed HTTP handler, wrapped in the tracing and
// metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/session", s.handleSession)

	mux.HandleFunc("POST /v1/kb/documents", s.handleUploadDocument)
	mux.HandleFunc("GET /v1/kb/documents", s.handleListDocuments)
	mux.HandleFunc("GET /v1/kb/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /v1/kb/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /v1/kb/query", s.handleQuery)

	return observe.Middleware(s.metrics)(mux)
}

// resolvePersona maps the connect-time persona id to a configured persona.
// An empty id selects the first configured persona, or a built-in default
// when none are configured.
func (s *Server) resolvePersona(id string) (coach.Persona, error) {
	if id == "" {
		id = s.defaultPersona
	}
	if id == "" {
		return coach.Persona{
			ID:           "default",
			Name:         "Sales Coach",
			SystemPrompt: defaultSystemPrompt,
		}, nil
	}
	p, ok := s.personas[id]
	if !ok {
		return coach.Persona{}, fmt.Errorf("server: unknown persona %q", id)
	}
	return p, nil
}

// newDocumentID derives a unique document id from the upload filename.
func newDocumentID(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "document"
	}

	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return base + "-" + hex.EncodeToString(suffix)
}
