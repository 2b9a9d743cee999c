package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// Overrides is the file-backed configuration layer. Environment variables
// load first; any value set in the file replaces the env-derived value.
// Credentials stay env-only.
type Overrides struct {
	Addr               *string  `yaml:"addr" json:"addr"`
	CompletionProvider *string  `yaml:"completion_provider" json:"completion_provider"`
	CompletionModel    *string  `yaml:"completion_model" json:"completion_model"`
	STTModel           *string  `yaml:"stt_model" json:"stt_model"`
	SystemPrompt       *string  `yaml:"system_prompt" json:"system_prompt"`
	CORSOrigins        []string `yaml:"cors_origins" json:"cors_origins"`

	SilenceThresholdMS      *int `yaml:"silence_threshold_ms" json:"silence_threshold_ms"`
	FinalTranscriptBufferMS *int `yaml:"final_transcript_buffer_ms" json:"final_transcript_buffer_ms"`
	WaitAfterFinalMS        *int `yaml:"wait_after_final_ms" json:"wait_after_final_ms"`
	MaxFinalizeWaitMS       *int `yaml:"max_finalize_wait_ms" json:"max_finalize_wait_ms"`

	NewUtteranceLengthRatio *float64 `yaml:"new_utterance_length_ratio" json:"new_utterance_length_ratio"`
	EdgeOverlapChars        *int     `yaml:"edge_overlap_chars" json:"edge_overlap_chars"`

	MaxSessionDurationMinutes *int `yaml:"max_session_duration_minutes" json:"max_session_duration_minutes"`
	TurnTimeoutSeconds        *int `yaml:"turn_timeout_seconds" json:"turn_timeout_seconds"`
}

// Load builds the effective configuration: env first, then the optional
// overrides file. If path is empty, FRONTDESK_CONFIG is consulted; if that
// is also empty, the env-derived config is returned as-is.
func Load(path string) (Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return Config{}, err
	}

	if path == "" {
		path = os.Getenv("FRONTDESK_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var ov Overrides
	ext := filepath.Ext(path)
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &ov); err != nil {
			return Config{}, fmt.Errorf("parse json config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ov); err != nil {
			return Config{}, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &ov); err != nil {
			if jerr := json.Unmarshal(data, &ov); jerr != nil {
				return Config{}, fmt.Errorf("unsupported config format: %s", ext)
			}
		}
	}

	applyOverrides(&cfg, ov)
	return cfg, nil
}

func applyOverrides(cfg *Config, ov Overrides) {
	if ov.Addr != nil {
		cfg.Addr = *ov.Addr
	}
	if ov.CompletionProvider != nil {
		cfg.CompletionProvider = *ov.CompletionProvider
	}
	if ov.CompletionModel != nil {
		cfg.CompletionModel = *ov.CompletionModel
	}
	if ov.STTModel != nil {
		cfg.STTModel = *ov.STTModel
	}
	if ov.SystemPrompt != nil {
		cfg.SystemPrompt = *ov.SystemPrompt
	}
	if len(ov.CORSOrigins) > 0 {
		cfg.CORSAllowedOrigins = make(map[string]struct{}, len(ov.CORSOrigins))
		for _, origin := range ov.CORSOrigins {
			cfg.CORSAllowedOrigins[origin] = struct{}{}
		}
	}
	if ov.SilenceThresholdMS != nil {
		cfg.SilenceThreshold = time.Duration(*ov.SilenceThresholdMS) * time.Millisecond
	}
	if ov.FinalTranscriptBufferMS != nil {
		cfg.FinalTranscriptBuffer = time.Duration(*ov.FinalTranscriptBufferMS) * time.Millisecond
	}
	if ov.WaitAfterFinalMS != nil {
		cfg.WaitAfterFinal = time.Duration(*ov.WaitAfterFinalMS) * time.Millisecond
	}
	if ov.MaxFinalizeWaitMS != nil {
		cfg.MaxFinalizeWait = time.Duration(*ov.MaxFinalizeWaitMS) * time.Millisecond
	}
	if ov.NewUtteranceLengthRatio != nil {
		cfg.NewUtteranceLengthRatio = *ov.NewUtteranceLengthRatio
	}
	if ov.EdgeOverlapChars != nil {
		cfg.EdgeOverlapChars = *ov.EdgeOverlapChars
	}
	if ov.MaxSessionDurationMinutes != nil {
		cfg.MaxSessionDuration = time.Duration(*ov.MaxSessionDurationMinutes) * time.Minute
	}
	if ov.TurnTimeoutSeconds != nil {
		cfg.TurnTimeout = time.Duration(*ov.TurnTimeoutSeconds) * time.Second
	}
}
