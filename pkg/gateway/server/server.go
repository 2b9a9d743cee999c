// Package server assembles the HTTP surface: health, metrics, and the
// /v1/converse websocket endpoint, wrapped in the shared middleware chain.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/stt"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/synth"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/booking"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/handlers"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/live/sessions"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/metrics"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/mw"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/store"
)

// Deps are the collaborators the server hands to each session.
type Deps struct {
	Provider core.Provider
	STT      stt.Provider
	Synth    synth.Synthesizer
	Store    store.Store
	Booking  booking.Service
	Metrics  *metrics.Metrics
}

// Server is the assembled gateway.
type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	handler  http.Handler
	tracker  *sessions.Tracker
	draining atomic.Bool
}

// New builds the route table and middleware chain.
func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		tracker: sessions.NewTracker(),
	}

	converse := handlers.ConverseHandler{
		Config:   cfg,
		Logger:   logger,
		Metrics:  deps.Metrics,
		Tracker:  s.tracker,
		Draining: s.draining.Load,
		Provider: deps.Provider,
		STT:      deps.STT,
		Synth:    deps.Synth,
		Store:    deps.Store,
		Booking:  deps.Booking,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.HealthHandler{})
	mux.Handle("/readyz", handlers.ReadyHandler{Config: cfg})
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}
	mux.Handle("/v1/converse", mw.Auth(cfg, converse))
	mux.Handle("/", handlers.NotFoundHandler{})

	var h http.Handler = mux
	h = mw.CORS(cfg, h)
	h = mw.AccessLog(logger, h)
	h = mw.Recover(logger, h)
	h = mw.RequestID(h)
	s.handler = h
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// SetDraining flips the drain flag; new websocket sessions are refused
// while draining.
func (s *Server) SetDraining(v bool) { s.draining.Store(v) }

// LiveSessionCount returns the number of open sessions.
func (s *Server) LiveSessionCount() int { return s.tracker.Count() }

// NotifyLiveSessions warns every open session, best effort.
func (s *Server) NotifyLiveSessions(code, message string) int {
	return s.tracker.NotifyAll(code, message)
}

// WaitLiveSessions blocks until open sessions finish or ctx expires.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

// CancelLiveSessions force-closes every open session.
func (s *Server) CancelLiveSessions() int {
	return s.tracker.CancelAll()
}
