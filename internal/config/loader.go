package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] when the corresponding field is unset.
const (
	DefaultListenAddr          = ":8080"
	DefaultCooldownMs          = 15000
	DefaultEndpointFallbackMs  = 700
	DefaultMaxHistoryTurns     = 20
	DefaultMinUtteranceWords   = 2
	DefaultChunkSize           = 1500
	DefaultRelevanceThreshold  = 0.6
	DefaultTopK                = 3
	DefaultStreamBatchSize     = 256
	DefaultEmbeddingDimensions = 1536
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"gemini", "openai"},
	"embeddings": {"openai"},
	"stt":        {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates it, and applies
// defaults. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Session.CooldownMs == 0 {
		cfg.Session.CooldownMs = DefaultCooldownMs
	}
	if cfg.Session.EndpointFallbackMs == 0 {
		cfg.Session.EndpointFallbackMs = DefaultEndpointFallbackMs
	}
	if cfg.Session.MaxHistoryTurns == 0 {
		cfg.Session.MaxHistoryTurns = DefaultMaxHistoryTurns
	}
	if cfg.Session.MinUtteranceWords == 0 {
		cfg.Session.MinUtteranceWords = DefaultMinUtteranceWords
	}
	if cfg.KB.ChunkSize == 0 {
		cfg.KB.ChunkSize = DefaultChunkSize
	}
	if cfg.KB.RelevanceThreshold == 0 {
		cfg.KB.RelevanceThreshold = DefaultRelevanceThreshold
	}
	if cfg.KB.TopK == 0 {
		cfg.KB.TopK = DefaultTopK
	}
	if cfg.KB.StreamBatchSize == 0 {
		cfg.KB.StreamBatchSize = DefaultStreamBatchSize
	}
	if cfg.KB.EmbeddingDimensions == 0 {
		cfg.KB.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation; warn for unknown names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required; suggestions cannot be generated without an LLM"))
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; knowledge base retrieval will be unavailable")
	}
	if cfg.KB.PostgresDSN == "" {
		slog.Warn("kb.postgres_dsn is empty; knowledge base contents will not survive a restart")
	}

	// Session bounds
	if cfg.Session.CooldownMs < 0 {
		errs = append(errs, fmt.Errorf("session.cooldown_ms %d must not be negative", cfg.Session.CooldownMs))
	}
	if cfg.Session.EndpointFallbackMs < 0 {
		errs = append(errs, fmt.Errorf("session.endpoint_fallback_ms %d must not be negative", cfg.Session.EndpointFallbackMs))
	}
	if cfg.Session.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("session.max_history_turns %d must not be negative", cfg.Session.MaxHistoryTurns))
	}

	// KB bounds
	if cfg.KB.RelevanceThreshold < 0 || cfg.KB.RelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("kb.relevance_threshold %.2f is out of range [0, 1]", cfg.KB.RelevanceThreshold))
	}
	if cfg.KB.TopK < 0 {
		errs = append(errs, fmt.Errorf("kb.top_k %d must not be negative", cfg.KB.TopK))
	}
	if cfg.KB.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("kb.chunk_size %d must not be negative", cfg.KB.ChunkSize))
	}

	// Persona duplicate ID detection
	idsSeen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := idsSeen[p.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of personas[%d]", prefix, p.ID, prev))
			}
			idsSeen[p.ID] = i
		}
		if p.SystemPrompt == "" {
			errs = append(errs, fmt.Errorf("%s.system_prompt is required", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
