package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Collaborator credentials. Missing values degrade the corresponding
	// collaborator to its noop form; they never fail startup.
	OpenAIAPIKey      string
	GeminiAPIKey      string
	DeepgramAPIKey    string
	DatabaseURL       string
	BookingWebhookURL string

	CompletionProvider string // "openai", "gemini", or "placeholder"
	CompletionModel    string
	STTModel           string
	SystemPrompt       string

	// Inbound websocket limits.
	MaxMessageBytes        int64
	MaxAudioChunkBytes     int
	MaxAudioFPS            int
	MaxAudioBytesPerSecond int
	InboundBurstSeconds    int

	// Endpointing timings.
	SilenceThreshold      time.Duration
	FinalTranscriptBuffer time.Duration
	WaitAfterFinal        time.Duration
	MaxFinalizeWait       time.Duration
	EndpointTick          time.Duration

	// Transcript merge heuristics.
	NewUtteranceLengthRatio float64
	EdgeOverlapChars        int

	// Session lifecycle.
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSReadTimeout      time.Duration
	MaxSessionDuration time.Duration
	TurnTimeout        time.Duration
	OutboundQueueSize  int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	MetricsNamespace string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("FRONTDESK_ADDR", ":8080"),
		AuthMode:                AuthMode(envOr("FRONTDESK_AUTH_MODE", string(AuthModeDisabled))),
		APIKeys:                 make(map[string]struct{}),
		CORSAllowedOrigins:      make(map[string]struct{}),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:            os.Getenv("GEMINI_API_KEY"),
		DeepgramAPIKey:          os.Getenv("DEEPGRAM_API_KEY"),
		DatabaseURL:             os.Getenv("FRONTDESK_DATABASE_URL"),
		BookingWebhookURL:       os.Getenv("FRONTDESK_BOOKING_WEBHOOK_URL"),
		CompletionProvider:      envOr("FRONTDESK_COMPLETION_PROVIDER", "openai"),
		CompletionModel:         envOr("FRONTDESK_COMPLETION_MODEL", "gpt-4o-mini"),
		STTModel:                envOr("FRONTDESK_STT_MODEL", "nova-2"),
		SystemPrompt:            os.Getenv("FRONTDESK_SYSTEM_PROMPT"),
		MaxMessageBytes:         envInt64Or("FRONTDESK_MAX_MESSAGE_BYTES", 1<<20),
		MaxAudioChunkBytes:      envIntOr("FRONTDESK_MAX_AUDIO_CHUNK_BYTES", 256*1024),
		MaxAudioFPS:             envIntOr("FRONTDESK_MAX_AUDIO_FPS", 120),
		MaxAudioBytesPerSecond:  envIntOr("FRONTDESK_MAX_AUDIO_BPS", 128*1024),
		InboundBurstSeconds:     envIntOr("FRONTDESK_INBOUND_BURST_SECONDS", 2),
		SilenceThreshold:        envDurationOr("FRONTDESK_SILENCE_THRESHOLD", 5000*time.Millisecond),
		FinalTranscriptBuffer:   envDurationOr("FRONTDESK_FINAL_TRANSCRIPT_BUFFER", 1500*time.Millisecond),
		WaitAfterFinal:          envDurationOr("FRONTDESK_WAIT_AFTER_FINAL", 2000*time.Millisecond),
		MaxFinalizeWait:         envDurationOr("FRONTDESK_MAX_FINALIZE_WAIT", 5000*time.Millisecond),
		EndpointTick:            envDurationOr("FRONTDESK_ENDPOINT_TICK", 100*time.Millisecond),
		NewUtteranceLengthRatio: envFloatOr("FRONTDESK_NEW_UTTERANCE_RATIO", 0.5),
		EdgeOverlapChars:        envIntOr("FRONTDESK_EDGE_OVERLAP_CHARS", 10),
		WSPingInterval:          envDurationOr("FRONTDESK_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:          envDurationOr("FRONTDESK_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:           envDurationOr("FRONTDESK_WS_READ_TIMEOUT", 60*time.Second),
		MaxSessionDuration:      envDurationOr("FRONTDESK_MAX_SESSION_DURATION", 30*time.Minute),
		TurnTimeout:             envDurationOr("FRONTDESK_TURN_TIMEOUT", 60*time.Second),
		OutboundQueueSize:       envIntOr("FRONTDESK_OUTBOUND_QUEUE_SIZE", 256),
		ReadHeaderTimeout:       envDurationOr("FRONTDESK_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:     envDurationOr("FRONTDESK_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MetricsNamespace:        envOr("FRONTDESK_METRICS_NAMESPACE", "frontdesk"),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("FRONTDESK_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("FRONTDESK_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("FRONTDESK_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.CompletionProvider {
	case "openai", "gemini", "placeholder":
	default:
		return Config{}, fmt.Errorf("FRONTDESK_COMPLETION_PROVIDER must be one of openai|gemini|placeholder")
	}

	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.MaxAudioChunkBytes <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_AUDIO_CHUNK_BYTES must be > 0")
	}
	if cfg.MaxAudioFPS < 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_AUDIO_FPS must be >= 0")
	}
	if cfg.MaxAudioBytesPerSecond < 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_AUDIO_BPS must be >= 0")
	}
	if cfg.InboundBurstSeconds < 0 {
		return Config{}, fmt.Errorf("FRONTDESK_INBOUND_BURST_SECONDS must be >= 0")
	}
	if (cfg.MaxAudioFPS > 0 || cfg.MaxAudioBytesPerSecond > 0) && cfg.InboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("FRONTDESK_INBOUND_BURST_SECONDS must be >= 1 when inbound audio limits are enabled")
	}
	if cfg.SilenceThreshold <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_SILENCE_THRESHOLD must be > 0")
	}
	if cfg.FinalTranscriptBuffer <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_FINAL_TRANSCRIPT_BUFFER must be > 0")
	}
	if cfg.WaitAfterFinal <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WAIT_AFTER_FINAL must be > 0")
	}
	if cfg.MaxFinalizeWait < cfg.FinalTranscriptBuffer {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_FINALIZE_WAIT must be >= FRONTDESK_FINAL_TRANSCRIPT_BUFFER")
	}
	if cfg.EndpointTick <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_ENDPOINT_TICK must be > 0")
	}
	if cfg.NewUtteranceLengthRatio <= 0 || cfg.NewUtteranceLengthRatio > 1 {
		return Config{}, fmt.Errorf("FRONTDESK_NEW_UTTERANCE_RATIO must be in (0, 1]")
	}
	if cfg.EdgeOverlapChars <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_EDGE_OVERLAP_CHARS must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_WS_READ_TIMEOUT must be > 0")
	}
	if cfg.MaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.TurnTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_TURN_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("FRONTDESK_API_KEYS must be set when FRONTDESK_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloatOr(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
