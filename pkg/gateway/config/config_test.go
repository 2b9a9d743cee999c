package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr=%q, want :8080", cfg.Addr)
	}
	if cfg.SilenceThreshold != 5000*time.Millisecond {
		t.Fatalf("SilenceThreshold=%v, want 5s", cfg.SilenceThreshold)
	}
	if cfg.FinalTranscriptBuffer != 1500*time.Millisecond {
		t.Fatalf("FinalTranscriptBuffer=%v, want 1.5s", cfg.FinalTranscriptBuffer)
	}
	if cfg.WaitAfterFinal != 2000*time.Millisecond {
		t.Fatalf("WaitAfterFinal=%v, want 2s", cfg.WaitAfterFinal)
	}
	if cfg.MaxFinalizeWait != 5000*time.Millisecond {
		t.Fatalf("MaxFinalizeWait=%v, want 5s", cfg.MaxFinalizeWait)
	}
	if cfg.EndpointTick != 100*time.Millisecond {
		t.Fatalf("EndpointTick=%v, want 100ms", cfg.EndpointTick)
	}
	if cfg.AuthMode != AuthModeDisabled {
		t.Fatalf("AuthMode=%q, want disabled", cfg.AuthMode)
	}
	if cfg.NewUtteranceLengthRatio != 0.5 {
		t.Fatalf("NewUtteranceLengthRatio=%v, want 0.5", cfg.NewUtteranceLengthRatio)
	}
	if cfg.EdgeOverlapChars != 10 {
		t.Fatalf("EdgeOverlapChars=%d, want 10", cfg.EdgeOverlapChars)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("FRONTDESK_ADDR", ":9999")
	t.Setenv("FRONTDESK_SILENCE_THRESHOLD", "3s")
	t.Setenv("FRONTDESK_API_KEYS", "k1, k2 ,")
	t.Setenv("FRONTDESK_AUTH_MODE", "required")
	t.Setenv("FRONTDESK_NEW_UTTERANCE_RATIO", "0.4")
	t.Setenv("FRONTDESK_EDGE_OVERLAP_CHARS", "6")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.SilenceThreshold != 3*time.Second {
		t.Fatalf("SilenceThreshold=%v", cfg.SilenceThreshold)
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("APIKeys=%v, want 2 entries", cfg.APIKeys)
	}
	if _, ok := cfg.APIKeys["k2"]; !ok {
		t.Fatalf("k2 missing from APIKeys")
	}
	if cfg.NewUtteranceLengthRatio != 0.4 {
		t.Fatalf("NewUtteranceLengthRatio=%v", cfg.NewUtteranceLengthRatio)
	}
	if cfg.EdgeOverlapChars != 6 {
		t.Fatalf("EdgeOverlapChars=%d", cfg.EdgeOverlapChars)
	}
}

func TestLoadFromEnv_Validation(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"bad auth mode", "FRONTDESK_AUTH_MODE", "sometimes"},
		{"bad provider", "FRONTDESK_COMPLETION_PROVIDER", "llama"},
		{"required auth without keys", "FRONTDESK_AUTH_MODE", "required"},
		{"max wait below buffer", "FRONTDESK_MAX_FINALIZE_WAIT", "1s"},
		{"ratio above one", "FRONTDESK_NEW_UTTERANCE_RATIO", "1.5"},
		{"ratio negative", "FRONTDESK_NEW_UTTERANCE_RATIO", "-0.1"},
		{"edge overlap zero", "FRONTDESK_EDGE_OVERLAP_CHARS", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestLoad_YAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frontdesk.yaml")
	content := `
addr: ":7070"
completion_model: gpt-4o
silence_threshold_ms: 4000
turn_timeout_seconds: 90
new_utterance_length_ratio: 0.6
edge_overlap_chars: 8
cors_origins:
  - https://app.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.CompletionModel != "gpt-4o" {
		t.Fatalf("CompletionModel=%q", cfg.CompletionModel)
	}
	if cfg.SilenceThreshold != 4*time.Second {
		t.Fatalf("SilenceThreshold=%v", cfg.SilenceThreshold)
	}
	if cfg.TurnTimeout != 90*time.Second {
		t.Fatalf("TurnTimeout=%v", cfg.TurnTimeout)
	}
	if cfg.NewUtteranceLengthRatio != 0.6 {
		t.Fatalf("NewUtteranceLengthRatio=%v", cfg.NewUtteranceLengthRatio)
	}
	if cfg.EdgeOverlapChars != 8 {
		t.Fatalf("EdgeOverlapChars=%d", cfg.EdgeOverlapChars)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.example.com"]; !ok {
		t.Fatalf("CORS origin missing: %v", cfg.CORSAllowedOrigins)
	}
	// Values the file does not set keep their env defaults.
	if cfg.FinalTranscriptBuffer != 1500*time.Millisecond {
		t.Fatalf("FinalTranscriptBuffer=%v", cfg.FinalTranscriptBuffer)
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
