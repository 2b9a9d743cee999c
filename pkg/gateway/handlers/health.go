package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                 bool     `json:"ok"`
		AuthMode           string   `json:"auth_mode"`
		CompletionProvider string   `json:"completion_provider"`
		STTConfigured      bool     `json:"stt_configured"`
		StoreConfigured    bool     `json:"store_configured"`
		BookingConfigured  bool     `json:"booking_configured"`
		Issues             []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.MaxMessageBytes <= 0 {
		issues = append(issues, "max_message_bytes must be > 0")
	}
	if h.Config.MaxAudioChunkBytes <= 0 {
		issues = append(issues, "max_audio_chunk_bytes must be > 0")
	}
	if h.Config.SilenceThreshold <= 0 || h.Config.FinalTranscriptBuffer <= 0 ||
		h.Config.WaitAfterFinal <= 0 || h.Config.EndpointTick <= 0 {
		issues = append(issues, "endpointing timings must be > 0")
	}
	if h.Config.MaxFinalizeWait < h.Config.FinalTranscriptBuffer {
		issues = append(issues, "max_finalize_wait must be >= final_transcript_buffer")
	}
	if h.Config.MaxSessionDuration <= 0 || h.Config.TurnTimeout <= 0 {
		issues = append(issues, "session timeouts must be > 0")
	}
	switch h.Config.CompletionProvider {
	case "openai", "gemini", "placeholder":
	default:
		issues = append(issues, "invalid completion_provider")
	}
	if h.Config.CompletionProvider == "openai" && h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "completion_provider=openai but OPENAI_API_KEY not set")
	}
	if h.Config.CompletionProvider == "gemini" && h.Config.GeminiAPIKey == "" {
		issues = append(issues, "completion_provider=gemini but GEMINI_API_KEY not set")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                 ok,
		AuthMode:           string(h.Config.AuthMode),
		CompletionProvider: h.Config.CompletionProvider,
		STTConfigured:      h.Config.DeepgramAPIKey != "",
		StoreConfigured:    h.Config.DatabaseURL != "",
		BookingConfigured:  h.Config.BookingWebhookURL != "",
		Issues:             issues,
	})
}
