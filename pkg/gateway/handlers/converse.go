package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/stt"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/synth"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/booking"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/live/session"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/live/sessions"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/metrics"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/mw"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/store"
)

// ConverseHandler upgrades /v1/converse to a websocket and runs one live
// session per connection.
type ConverseHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Tracker  *sessions.Tracker
	Draining func() bool

	Provider core.Provider
	STT      stt.Provider
	Synth    synth.Synthesizer
	Store    store.Store
	Booking  booking.Service
}

func (h ConverseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "method not allowed",
			Code:      "method_not_allowed",
			RequestID: reqID,
		})
		return
	}
	if h.Draining != nil && h.Draining() {
		writeJSONError(w, http.StatusServiceUnavailable, &core.Error{
			Type:      core.ErrOverloaded,
			Message:   "gateway is draining",
			Code:      "draining",
			RequestID: reqID,
		})
		return
	}
	if !h.originAllowed(r) {
		writeJSONError(w, http.StatusForbidden, &core.Error{
			Type:      core.ErrPermission,
			Message:   "origin is not allowed",
			Param:     "Origin",
			RequestID: reqID,
		})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}

	sessionID := "sess_" + mw.RandHex(10)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    h.Logger,
		Metrics:   h.Metrics,
		Provider:  h.Provider,
		STT:       h.STT,
		Synth:     h.Synth,
		Store:     h.Store,
		Booking:   h.Booking,
		SessionID: sessionID,
		RequestID: reqID,
	}, session.Config{
		MaxMessageBytes:        h.Config.MaxMessageBytes,
		MaxAudioChunkBytes:     h.Config.MaxAudioChunkBytes,
		MaxAudioFPS:            h.Config.MaxAudioFPS,
		MaxAudioBytesPerSecond: h.Config.MaxAudioBytesPerSecond,
		InboundBurstSeconds:    float64(h.Config.InboundBurstSeconds),
		Accumulator: session.AccumulatorConfig{
			NewUtteranceLengthRatio: h.Config.NewUtteranceLengthRatio,
			EdgeOverlapChars:        h.Config.EdgeOverlapChars,
		},
		Endpointer: session.EndpointerConfig{
			SilenceThreshold:      h.Config.SilenceThreshold,
			FinalTranscriptBuffer: h.Config.FinalTranscriptBuffer,
			WaitAfterFinal:        h.Config.WaitAfterFinal,
			MaxFinalizeWait:       h.Config.MaxFinalizeWait,
			Tick:                  h.Config.EndpointTick,
		},
		PingInterval:       h.Config.WSPingInterval,
		WriteTimeout:       h.Config.WSWriteTimeout,
		ReadTimeout:        h.Config.WSReadTimeout,
		MaxSessionDuration: h.Config.MaxSessionDuration,
		TurnTimeout:        h.Config.TurnTimeout,
		OutboundQueueSize:  h.Config.OutboundQueueSize,
		STTModel:           h.Config.STTModel,
	})

	unregister := h.Tracker.Register(sessionID, sessions.Handle{
		Cancel: cancel,
		Notify: sess.Notify,
	})
	defer unregister()

	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		h.Logger.Warn("session ended with error", "session_id", sessionID, "error", err)
	}
}

func (h ConverseHandler) originAllowed(r *http.Request) bool {
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients carry no Origin header.
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, err *core.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: err})
}
