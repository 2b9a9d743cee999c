package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/providers/gemini"
	"github.com/frontdesk-ai/frontdesk/pkg/core/providers/openai"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/stt"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/synth"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/booking"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/metrics"
	gatewayserver "github.com/frontdesk-ai/frontdesk/pkg/gateway/server"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	buildServer  func(context.Context, config.Config, *slog.Logger) (*gatewayserver.Server, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:  func() (config.Config, error) { return config.Load("") },
		buildServer: buildServer,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildServer assembles collaborators from config. Missing credentials
// degrade the affected collaborator to its noop form; the gateway still
// starts and serves what it can.
func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error) {
	deps := gatewayserver.Deps{
		Metrics: metrics.New(cfg.MetricsNamespace),
		Synth:   synth.Noop{},
	}

	registry := core.NewProviderRegistry()
	registry.Register(&core.PlaceholderProvider{})
	if cfg.OpenAIAPIKey != "" {
		registry.Register(openai.New(cfg.OpenAIAPIKey, cfg.CompletionModel,
			openai.WithSystemPrompt(cfg.SystemPrompt)))
	}
	if cfg.GeminiAPIKey != "" {
		p, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.CompletionModel, cfg.SystemPrompt)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini provider: %w", err)
		}
		registry.Register(p)
	}

	provider, ok := registry.Get(cfg.CompletionProvider)
	if !ok {
		logger.Warn("completion provider has no credentials, using placeholder completions",
			"provider", cfg.CompletionProvider, "configured", registry.List())
		provider, _ = registry.Get("placeholder")
	}
	deps.Provider = provider

	if cfg.DeepgramAPIKey != "" {
		deps.STT = stt.NewDeepgram(cfg.DeepgramAPIKey)
	} else {
		logger.Warn("DEEPGRAM_API_KEY not set, voice transcription disabled")
		deps.STT = stt.NewNoop()
	}

	cleanup := func() {}
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPG(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect store: %w", err)
		}
		deps.Store = pg
		cleanup = pg.Close
	} else {
		logger.Warn("FRONTDESK_DATABASE_URL not set, conversation turns will not be persisted")
		deps.Store = store.Noop{}
	}

	if cfg.BookingWebhookURL != "" {
		deps.Booking = booking.NewHTTP(cfg.BookingWebhookURL)
	} else {
		logger.Warn("FRONTDESK_BOOKING_WEBHOOK_URL not set, bookings disabled")
		deps.Booking = booking.Noop{}
	}

	return gatewayserver.New(cfg, logger, deps), cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildServer == nil {
		return errors.New("missing buildServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, cleanup, err := deps.buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"completion_provider", cfg.CompletionProvider,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining(true)
	gw.NotifyLiveSessions("draining", "server is shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitLiveSessions(waitCtx) {
		gw.CancelLiveSessions()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "frontdesk: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "frontdesk: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
