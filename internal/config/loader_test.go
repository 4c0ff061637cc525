package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
providers:
  llm:
    name: gemini
    api_key: test-key
    model: gemini-2.0-flash
  embeddings:
    name: openai
    api_key: test-key
  stt:
    name: deepgram
    api_key: test-key
session:
  cooldown_ms: 10000
  min_utterance_words: 3
kb:
  relevance_threshold: 0.55
  top_k: 2
personas:
  - id: sales
    name: Sales Coach
    system_prompt: You are a live sales coach.
    document_ids: [pricing, objections]
`

func TestLoadFromReaderValid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.LLM.Name != "gemini" {
		t.Errorf("LLM provider = %q", cfg.Providers.LLM.Name)
	}
	if cfg.Session.CooldownMs != 10000 {
		t.Errorf("CooldownMs = %d, explicit value overridden", cfg.Session.CooldownMs)
	}
	if len(cfg.Personas) != 1 || cfg.Personas[0].ID != "sales" {
		t.Errorf("Personas = %+v", cfg.Personas)
	}
	if got := cfg.Personas[0].DocumentIDs; len(got) != 2 || got[0] != "pricing" {
		t.Errorf("DocumentIDs = %v", got)
	}
}

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(`
providers:
  llm:
    name: openai
    api_key: k
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Session.CooldownMs != DefaultCooldownMs {
		t.Errorf("CooldownMs = %d, want default %d", cfg.Session.CooldownMs, DefaultCooldownMs)
	}
	if cfg.Session.EndpointFallbackMs != DefaultEndpointFallbackMs {
		t.Errorf("EndpointFallbackMs = %d, want default %d", cfg.Session.EndpointFallbackMs, DefaultEndpointFallbackMs)
	}
	if cfg.Session.MaxHistoryTurns != DefaultMaxHistoryTurns {
		t.Errorf("MaxHistoryTurns = %d, want default %d", cfg.Session.MaxHistoryTurns, DefaultMaxHistoryTurns)
	}
	if cfg.KB.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want default %d", cfg.KB.ChunkSize, DefaultChunkSize)
	}
	if cfg.KB.RelevanceThreshold != DefaultRelevanceThreshold {
		t.Errorf("RelevanceThreshold = %v, want default %v", cfg.KB.RelevanceThreshold, DefaultRelevanceThreshold)
	}
	if cfg.KB.EmbeddingDimensions != DefaultEmbeddingDimensions {
		t.Errorf("EmbeddingDimensions = %d, want default %d", cfg.KB.EmbeddingDimensions, DefaultEmbeddingDimensions)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader(`
providers:
  llm:
    name: openai
    api_keyy: typo
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			name:    "missing llm provider",
			yaml:    "server:\n  log_level: info\n",
			wantSub: "providers.llm.name is required",
		},
		{
			name: "bad log level",
			yaml: `
server:
  log_level: verbose
providers:
  llm:
    name: gemini
`,
			wantSub: "server.log_level",
		},
		{
			name: "threshold out of range",
			yaml: `
providers:
  llm:
    name: gemini
kb:
  relevance_threshold: 1.5
`,
			wantSub: "kb.relevance_threshold",
		},
		{
			name: "negative cooldown",
			yaml: `
providers:
  llm:
    name: gemini
session:
  cooldown_ms: -5
`,
			wantSub: "session.cooldown_ms",
		},
		{
			name: "persona without prompt",
			yaml: `
providers:
  llm:
    name: gemini
personas:
  - id: sales
`,
			wantSub: "personas[0].system_prompt",
		},
		{
			name: "duplicate persona id",
			yaml: `
providers:
  llm:
    name: gemini
personas:
  - id: sales
    system_prompt: a
  - id: sales
    system_prompt: b
`,
			wantSub: "duplicate",
		},
		{
			name: "tls missing key file",
			yaml: `
server:
  tls:
    cert_file: /etc/tls/cert.pem
providers:
  llm:
    name: gemini
`,
			wantSub: "server.tls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("config accepted")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestSessionConfigDurations(t *testing.T) {
	t.Parallel()

	s := SessionConfig{CooldownMs: 15000, EndpointFallbackMs: 700}
	if got := s.Cooldown().Seconds(); got != 15 {
		t.Errorf("Cooldown = %vs", got)
	}
	if got := s.EndpointFallback().Milliseconds(); got != 700 {
		t.Errorf("EndpointFallback = %vms", got)
	}
}
