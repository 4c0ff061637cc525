// Command wingman is the real-time sales-call suggestion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AntoineDubuc/wingman-ai-sub005/internal/coach"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/config"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/health"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/observe"
	"github.com/AntoineDubuc/wingman-ai-sub005/internal/server"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb"
	kbpostgres "github.com/AntoineDubuc/wingman-ai-sub005/pkg/kb/postgres"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/embeddings"
	oaembed "github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/embeddings/openai"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm/gemini"
	oallm "github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm/openai"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/stt"
	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/stt/deepgram"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// shutdownTimeout bounds graceful HTTP shutdown and OTel flushing.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "wingman: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "wingman: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("wingman starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "wingman",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ────────────────────────────────────────────────────────
	llmProvider, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	embedder, err := buildEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "err", err)
		return 1
	}

	sttProvider, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "err", err)
		return 1
	}

	// ── Knowledge base ───────────────────────────────────────────────────
	var (
		store    kb.Store
		checkers []health.Checker
	)
	if dsn := cfg.KB.PostgresDSN; dsn != "" {
		pg, err := kbpostgres.NewStore(ctx, dsn, cfg.KB.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		checkers = append(checkers, health.Checker{Name: "database", Check: pg.Ping})
		slog.Info("kb store ready", "backend", "postgres", "dimensions", cfg.KB.EmbeddingDimensions)
	} else {
		store = kb.NewMemStore()
		slog.Warn("kb.postgres_dsn not set, documents are held in memory and lost on restart")
	}

	var (
		ingestor *kb.Ingestor
		engine   *kb.Engine
	)
	if embedder != nil {
		ingestor = kb.NewIngestor(store, embedder,
			kb.WithChunker(kb.NewChunker(cfg.KB.ChunkSize)),
		)
		engine = kb.NewEngine(store, embedder,
			kb.WithThreshold(cfg.KB.RelevanceThreshold),
			kb.WithTopK(cfg.KB.TopK),
			kb.WithScanBatchSize(cfg.KB.StreamBatchSize),
		)
	} else {
		// Sessions still run; they just coach from conversation context
		// alone, and document uploads are rejected.
		ingestor = kb.NewIngestor(store, unavailableEmbedder{})
		slog.Warn("no embeddings provider configured, knowledge-base retrieval is disabled")
	}

	// ── Server ───────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		LLM:      llmProvider,
		STT:      sttProvider,
		Store:    store,
		Ingestor: ingestor,
		Engine:   engine,
		Personas: personas(cfg.Personas),
		Tuning: server.Tuning{
			Cooldown:          cfg.Session.Cooldown(),
			EndpointFallback:  cfg.Session.EndpointFallback(),
			MaxHistoryTurns:   cfg.Session.MaxHistoryTurns,
			MinUtteranceWords: cfg.Session.MinUtteranceWords,
		},
		Logger:         logger,
		HealthCheckers: checkers,
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if tls := cfg.Server.TLS; tls != nil {
			errCh <- httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ──────────────────────────────────────────────────────────

func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "gemini":
		var opts []gemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(entry.APIKey, entry.Model, opts...)
	case "openai":
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", entry.Name)
	}
}

func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "":
		return nil, nil
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

func buildSTT(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "":
		return nil, nil
	case "deepgram":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		return deepgram.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

// personas converts config persona blocks to the coach model.
func personas(entries []config.PersonaConfig) []coach.Persona {
	out := make([]coach.Persona, len(entries))
	for i, p := range entries {
		out[i] = coach.Persona{
			ID:           p.ID,
			Name:         p.Name,
			SystemPrompt: p.SystemPrompt,
			DocumentIDs:  p.DocumentIDs,
		}
	}
	return out
}

// unavailableEmbedder fails every call; it backs the ingestor when no
// embeddings provider is configured so uploads fail cleanly instead of
// panicking.
type unavailableEmbedder struct{}

var _ embeddings.Provider = unavailableEmbedder{}

func (unavailableEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("no embeddings provider configured")
}

func (unavailableEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("no embeddings provider configured")
}

func (unavailableEmbedder) Dimensions() int { return 0 }

func (unavailableEmbedder) ModelID() string { return "" }

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
