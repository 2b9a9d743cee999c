// Package session implements the live conversation engine: one goroutine
// per connection owning all session state, fed by websocket reads, timer
// ticks, and collaborator results. Collaborator I/O runs in helper
// goroutines whose results re-enter the loop through channels, so no state
// is ever touched concurrently.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/stt"
	"github.com/frontdesk-ai/frontdesk/pkg/core/voice/synth"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/booking"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/live/protocol"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/metrics"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/store"
)

// errorPlaceholderMessage stands in for agent output when the completion
// provider fails. The turn is still recorded so the transcript shows the
// user what happened.
const errorPlaceholderMessage = "Sorry, something went wrong on my end. Could you try that again?"

// bookingConfirmationMessage is delivered once a booking is accepted
// downstream.
const bookingConfirmationMessage = "You're all set! I've booked that appointment for you."

// Config bounds and tunes one live session.
type Config struct {
	MaxMessageBytes        int64
	MaxAudioChunkBytes     int
	MaxAudioFPS            int
	MaxAudioBytesPerSecond int
	InboundBurstSeconds    float64

	Accumulator AccumulatorConfig
	Endpointer  EndpointerConfig

	PingInterval       time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	MaxSessionDuration time.Duration
	TurnTimeout        time.Duration
	OutboundQueueSize  int

	STTModel string
}

func (c Config) withDefaults() Config {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.MaxAudioChunkBytes <= 0 {
		c.MaxAudioChunkBytes = 256 * 1024
	}
	if c.InboundBurstSeconds <= 0 {
		c.InboundBurstSeconds = 2
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.MaxSessionDuration <= 0 {
		c.MaxSessionDuration = 30 * time.Minute
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 60 * time.Second
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 256
	}
	c.Accumulator = c.Accumulator.withDefaults()
	c.Endpointer = c.Endpointer.withDefaults()
	return c
}

// Dependencies are the collaborators one session talks to. Conn and Logger
// are required; nil collaborators degrade to their noop forms.
type Dependencies struct {
	Conn    wsConn
	Logger  *slog.Logger
	Clock   func() time.Time
	Metrics *metrics.Metrics

	Provider core.Provider
	STT      stt.Provider
	Synth    synth.Synthesizer
	Store    store.Store
	Booking  booking.Service

	SessionID string
	RequestID string
}

// wsConn is the subset of *websocket.Conn the session uses. Split out so
// tests can drive the loop with a fake connection.
type wsConn interface {
	wsWriter
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
}

// Session is one live conversation over a websocket connection.
type Session struct {
	cfg  Config
	deps Dependencies
	log  *slog.Logger

	// loopCtx is the Run context. Helper goroutines delivering results back
	// into the loop select on it, not on their own turn context: a turn
	// result must still arrive after the turn's deadline so the loop can
	// surface the failure.
	loopCtx context.Context

	acc     *transcriptAccumulator
	ep      *endpointer
	history conversationLog
	limiter *inboundAudioLimiter

	// latestTurn is shared with the outbound writer; frames tagged with an
	// older turn are dropped at write time.
	latestTurn atomic.Int64

	priorityCh chan outboundFrame
	normalCh   chan outboundFrame

	// Captured first-wins from inbound envelope metadata.
	browserSessionID string
	timezone         string
	metaCaptured     bool
	identityID       string

	recording  bool
	sttSession stt.LiveSession
	sttEvents  <-chan stt.TranscriptEvent

	turnCancel  context.CancelFunc
	turnMode    types.TurnMode
	turnUser    string
	turnStarted time.Time
	turnFilter  *bookingFilter
	turnActive  bool
	synthCancel context.CancelFunc
}

// New creates a session. Run drives it.
func New(deps Dependencies, cfg Config) *Session {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", deps.SessionID, "request_id", deps.RequestID)
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Provider == nil {
		deps.Provider = &core.PlaceholderProvider{}
	}
	if deps.STT == nil {
		deps.STT = stt.NewNoop()
	}
	if deps.Synth == nil {
		deps.Synth = synth.Noop{}
	}
	if deps.Store == nil {
		deps.Store = store.Noop{}
	}
	if deps.Booking == nil {
		deps.Booking = booking.Noop{}
	}

	s := &Session{
		cfg:        cfg,
		deps:       deps,
		log:        logger,
		acc:        newTranscriptAccumulator(cfg.Accumulator),
		ep:         newEndpointer(cfg.Endpointer),
		priorityCh: make(chan outboundFrame, cfg.OutboundQueueSize),
		normalCh:   make(chan outboundFrame, cfg.OutboundQueueSize),
	}
	s.limiter = newInboundAudioLimiter(cfg.MaxAudioFPS, cfg.MaxAudioBytesPerSecond, cfg.InboundBurstSeconds, deps.Clock())
	return s
}

type readResult struct {
	data []byte
	err  error
}

type turnToken struct {
	turnID int64
	token  string
}

type turnResult struct {
	turnID    int64
	mode      types.TurnMode
	userText  string
	agentText string
	err       error
	startedAt time.Time
}

type bookingResult struct {
	turnID  int64
	message string
	ok      bool
}

type synthDone struct {
	turnID int64
	err    error
}

type identityResult struct {
	id  string
	err error
}

// Run owns the session until the client disconnects, the session duration
// cap fires, or the parent context is canceled. It always returns after
// tearing down collaborators.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session panic", "panic", r)
			err = fmt.Errorf("session panic: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.loopCtx = ctx

	startedAt := s.deps.Clock()
	s.deps.Metrics.RecordSessionStart()
	endStatus := "ok"
	defer func() {
		s.deps.Metrics.RecordSessionEnd(endStatus, s.deps.Clock().Sub(startedAt))
	}()

	writer := &outboundWriter{
		ws:         s.deps.Conn,
		ctx:        ctx,
		cfg:        s.cfg,
		priority:   s.priorityCh,
		normal:     s.normalCh,
		latestTurn: &s.latestTurn,
	}
	writerErrCh := make(chan error, 1)
	go func() { writerErrCh <- writer.Run() }()

	readCh := make(chan readResult, 8)
	go s.readLoop(readCh)

	tokenCh := make(chan turnToken, 64)
	resultCh := make(chan turnResult, 4)
	bookingCh := make(chan bookingResult, 4)
	synthCh := make(chan synthDone, 4)
	identityCh := make(chan identityResult, 1)

	sessionTimer := time.NewTimer(s.cfg.MaxSessionDuration)
	defer sessionTimer.Stop()

	var tickCh <-chan time.Time
	var ticker *time.Ticker
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		tickCh = nil
	}
	defer stopTicker()
	defer s.closeSTT()
	defer s.cancelTurn(false)

	s.sendStatus(protocol.StateConnected, "")

	for {
		select {
		case <-ctx.Done():
			s.finalizeOnShutdown("context canceled")
			return ctx.Err()

		case <-sessionTimer.C:
			s.log.Info("session duration cap reached")
			endStatus = "expired"
			s.finalizeOnShutdown("session expired")
			return nil

		case werr := <-writerErrCh:
			if werr != nil {
				s.log.Warn("outbound writer stopped", "error", werr)
				endStatus = "write_error"
			}
			s.finalizeOnShutdown("writer stopped")
			return werr

		case res := <-identityCh:
			if res.err != nil {
				s.log.Warn("identity resolve failed", "error", res.err)
				s.deps.Metrics.RecordError("store", "identity")
				continue
			}
			s.identityID = res.id

		case rr := <-readCh:
			if rr.err != nil {
				s.log.Info("client disconnected", "error", rr.err)
				s.finalizeOnShutdown("disconnect")
				return nil
			}
			s.handleInbound(ctx, rr.data, identityCh, tokenCh, resultCh, func() {
				if ticker == nil {
					ticker = time.NewTicker(s.cfg.Endpointer.Tick)
					tickCh = ticker.C
				}
			}, stopTicker)

		case ev, ok := <-s.sttEvents:
			if !ok {
				s.sttEvents = nil
				continue
			}
			s.handleTranscriptEvent(ev)

		case now := <-tickCh:
			if text, ok := s.ep.Tick(now, s.acc); ok {
				s.deps.Metrics.RecordFinalize("silence")
				s.sendTranscript(text, true)
				s.startTurn(ctx, text, types.ModeVoice, tokenCh, resultCh)
			}

		case tok := <-tokenCh:
			if tok.turnID != s.latestTurn.Load() {
				continue
			}
			forward, placeholder := s.turnFilter.Feed(tok.token)
			if placeholder {
				s.sendAgentToken(tok.turnID, BookingPlaceholderMessage)
			}
			if forward != "" {
				s.sendAgentToken(tok.turnID, forward)
			}

		case res := <-resultCh:
			if res.turnID != s.latestTurn.Load() {
				continue
			}
			s.handleTurnResult(ctx, res, bookingCh, synthCh)

		case br := <-bookingCh:
			status := "ok"
			if !br.ok {
				status = "error"
			}
			s.deps.Metrics.RecordBooking(status)
			if br.turnID != s.latestTurn.Load() {
				continue
			}
			s.sendAgentToken(br.turnID, br.message)

		case sd := <-synthCh:
			if sd.err != nil && sd.err != context.Canceled {
				s.log.Warn("synthesis failed", "error", sd.err)
				s.deps.Metrics.RecordError("synth", "stream")
			}
			if sd.turnID != s.latestTurn.Load() {
				continue
			}
			s.sendStatus(protocol.StateIdle, "")
		}
	}
}

func (s *Session) readLoop(out chan<- readResult) {
	conn := s.deps.Conn
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			out <- readResult{err: err}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		out <- readResult{data: data}
	}
}

func (s *Session) handleInbound(ctx context.Context, data []byte, identityCh chan identityResult, tokenCh chan turnToken, resultCh chan turnResult, startTicker func(), stopTicker func()) {
	msg, meta, err := protocol.DecodeClientMessage(data)
	s.captureMetadata(ctx, meta, identityCh)
	if err != nil {
		if protocol.IsUnknownType(err) {
			s.log.Info("ignoring unknown message type", "error", err)
		} else {
			s.log.Warn("dropping malformed frame", "error", err)
			s.deps.Metrics.RecordError("protocol", "decode")
		}
		return
	}

	switch m := msg.(type) {
	case protocol.ClientStartRecording:
		s.handleStartRecording(ctx, startTicker)

	case protocol.ClientStopRecording:
		s.handleStopRecording(ctx, stopTicker, tokenCh, resultCh)

	case protocol.ClientAudioChunk:
		s.handleAudioChunk(m)

	case protocol.ClientChatMessage:
		s.startTurn(ctx, m.Text, types.ModeChat, tokenCh, resultCh)

	case protocol.ClientInterrupt:
		s.handleInterrupt()
	}
}

func (s *Session) captureMetadata(ctx context.Context, meta *protocol.Metadata, identityCh chan identityResult) {
	if meta == nil || s.metaCaptured {
		return
	}
	if meta.BrowserSessionID == "" && meta.Timezone == "" {
		return
	}
	// First frame carrying metadata wins for the connection lifetime.
	s.metaCaptured = true
	s.browserSessionID = meta.BrowserSessionID
	s.timezone = meta.Timezone

	browserID, tz := s.browserSessionID, s.timezone
	st := s.deps.Store
	go func() {
		id, err := st.ResolveIdentity(ctx, browserID, tz)
		select {
		case identityCh <- identityResult{id: id, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) handleStartRecording(ctx context.Context, startTicker func()) {
	if s.recording {
		s.log.Info("start_recording while already recording, ignoring")
		return
	}
	live, err := s.deps.STT.NewLiveSession(ctx, stt.LiveOptions{
		Model:      s.cfg.STTModel,
		Encoding:   "linear16",
		SampleRate: 16000,
	})
	if err != nil {
		s.log.Error("failed to open transcription session", "error", err)
		s.deps.Metrics.RecordError("stt", "connect")
		s.sendStatus(protocol.StateError, "transcription unavailable")
		return
	}
	s.sttSession = live
	s.sttEvents = live.Events()
	s.recording = true
	startTicker()
	s.sendStatus(protocol.StateListening, "")
}

func (s *Session) handleStopRecording(ctx context.Context, stopTicker func(), tokenCh chan turnToken, resultCh chan turnResult) {
	if !s.recording {
		s.log.Info("stop_recording while not recording, ignoring")
		return
	}
	s.recording = false
	s.closeSTT()
	stopTicker()

	if text, ok := s.ep.ForceFinalize(s.acc); ok {
		s.deps.Metrics.RecordFinalize("stop_recording")
		s.sendTranscript(text, true)
		s.startTurn(ctx, text, types.ModeVoice, tokenCh, resultCh)
		return
	}
	if !s.turnActive {
		s.sendStatus(protocol.StateIdle, "")
	}
}

func (s *Session) handleAudioChunk(m protocol.ClientAudioChunk) {
	if !s.recording {
		s.log.Debug("audio_chunk outside recording, dropping")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(m.Audio)
	if err != nil {
		s.log.Warn("dropping undecodable audio chunk", "error", err)
		s.deps.Metrics.RecordError("protocol", "audio_decode")
		return
	}
	if len(audio) > s.cfg.MaxAudioChunkBytes {
		s.log.Warn("dropping oversized audio chunk", "bytes", len(audio))
		return
	}
	if !s.limiter.allow(len(audio), s.deps.Clock()) {
		s.log.Warn("dropping audio chunk over rate limit", "bytes", len(audio))
		return
	}
	s.deps.Metrics.RecordAudio("in", len(audio))
	if err := s.sttSession.SendAudio(audio); err != nil {
		s.log.Warn("failed to forward audio", "error", err)
		s.deps.Metrics.RecordError("stt", "send")
	}
}

func (s *Session) handleTranscriptEvent(ev stt.TranscriptEvent) {
	merged, newUtterance := s.acc.Observe(ev.Text, ev.FinalHint, s.deps.Clock())
	if newUtterance {
		// The buffered finalize (if any) belongs to the previous utterance.
		s.ep.Rearm()
	}
	if merged != "" && merged != s.acc.LastSent() {
		s.sendTranscript(merged, false)
		s.acc.MarkSent(merged)
	}
}

func (s *Session) handleInterrupt() {
	s.cancelTurn(true)
	s.sendStatus(protocol.StateInterrupted, "")
	s.sendStatus(protocol.StateIdle, "")
}

// startTurn submits one user turn. Any in-flight completion or synthesis
// for the previous turn is canceled first; its late tokens are dropped by
// the turn id check.
func (s *Session) startTurn(ctx context.Context, text string, mode types.TurnMode, tokenCh chan turnToken, resultCh chan turnResult) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.log.Info("ignoring empty turn submission", "mode", string(mode))
		return
	}
	s.cancelTurn(false)

	turnID := s.latestTurn.Add(1)
	s.turnMode = mode
	s.turnUser = text
	s.turnStarted = s.deps.Clock()
	s.turnFilter = &bookingFilter{}
	s.turnActive = true
	s.history.appendUser(text)

	s.sendStatus(protocol.StateThinking, "")
	s.sendPriority(protocol.TypeAgentText, protocol.ServerAgentText{Clear: true})

	messages := s.history.snapshot()
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	s.turnCancel = cancel
	go s.runTurn(runCtx, turnID, mode, text, messages, tokenCh, resultCh)
}

// runTurn streams one completion off the loop goroutine.
func (s *Session) runTurn(ctx context.Context, turnID int64, mode types.TurnMode, userText string, messages []types.Message, tokenCh chan<- turnToken, resultCh chan<- turnResult) {
	tracer := otel.Tracer("frontdesk/session")
	ctx, span := tracer.Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("turn.mode", string(mode)),
			attribute.Int64("turn.id", turnID),
		))
	defer span.End()

	startedAt := s.deps.Clock()
	result := turnResult{turnID: turnID, mode: mode, userText: userText, startedAt: startedAt}

	stream, err := s.deps.Provider.StreamCompletion(ctx, messages)
	if err != nil {
		result.err = err
		s.deliverResult(result, resultCh)
		return
	}
	defer stream.Close()

	var full strings.Builder
	for {
		token, err := stream.Next()
		if token != "" {
			full.WriteString(token)
			select {
			case tokenCh <- turnToken{turnID: turnID, token: token}:
			case <-ctx.Done():
				result.err = ctx.Err()
				s.deliverResult(result, resultCh)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			result.err = err
			s.deliverResult(result, resultCh)
			return
		}
	}
	result.agentText = full.String()
	s.deliverResult(result, resultCh)
}

// deliverResult hands the turn outcome back to the loop. It deliberately
// ignores the turn context: a timed-out or superseded turn still reports,
// and the loop decides whether the result is stale.
func (s *Session) deliverResult(result turnResult, resultCh chan<- turnResult) {
	select {
	case resultCh <- result:
	case <-s.loopCtx.Done():
	}
}

func (s *Session) handleTurnResult(ctx context.Context, res turnResult, bookingCh chan bookingResult, synthCh chan synthDone) {
	s.turnActive = false
	s.turnCancel = nil
	duration := s.deps.Clock().Sub(res.startedAt)

	if res.err != nil {
		s.log.Error("completion failed", "error", res.err, "mode", string(res.mode))
		s.deps.Metrics.RecordTurn(string(res.mode), "error", duration)
		s.deps.Metrics.RecordError("provider", errorType(res.err))
		s.history.appendAssistant(errorPlaceholderMessage)
		s.sendAgentToken(res.turnID, errorPlaceholderMessage)
		s.sendConversationTurn(res.mode, res.userText, errorPlaceholderMessage)
		s.persistTurn(ctx, res.mode, res.userText, errorPlaceholderMessage)
		s.sendStatus(protocol.StateError, res.err.Error())
		s.sendStatus(protocol.StateIdle, "")
		return
	}

	s.deps.Metrics.RecordTurn(string(res.mode), "ok", duration)
	s.history.appendAssistant(res.agentText)

	spoken := res.agentText
	if s.turnFilter != nil && s.turnFilter.Suppressing() {
		spoken = s.evaluateBooking(ctx, res, bookingCh)
	}

	s.sendConversationTurn(res.mode, res.userText, res.agentText)
	s.persistTurn(ctx, res.mode, res.userText, res.agentText)

	if res.mode == types.ModeVoice {
		s.speak(ctx, res.turnID, spoken, synthCh)
		return
	}
	s.sendStatus(protocol.StateIdle, "")
}

// evaluateBooking handles a turn whose streamed output was suppressed as a
// suspected booking action. It returns the user-visible text for the turn.
func (s *Session) evaluateBooking(ctx context.Context, res turnResult, bookingCh chan bookingResult) string {
	req, matched := parseBookingIntent(res.agentText)
	if !matched {
		// Not a booking after all. The stream was withheld, so deliver the
		// full text now as ordinary agent output.
		s.log.Info("suspected booking did not parse, forwarding as text")
		s.sendAgentToken(res.turnID, res.agentText)
		return res.agentText
	}
	if err := req.Validate(); err != nil {
		s.log.Warn("booking rejected", "error", err)
		s.deps.Metrics.RecordBooking("invalid")
		msg := "I couldn't complete the booking: " + err.Error()
		s.sendAgentToken(res.turnID, msg)
		return msg
	}

	req.BrowserSessionID = s.browserSessionID
	if req.Timezone == "" {
		req.Timezone = s.timezone
	}
	svc := s.deps.Booking
	turnID := res.turnID
	go func() {
		ctx, span := otel.Tracer("frontdesk/session").Start(ctx, "booking.create")
		defer span.End()
		if err := svc.Create(ctx, req); err != nil {
			s.log.Error("booking failed", "error", err)
			select {
			case bookingCh <- bookingResult{turnID: turnID, message: "I couldn't complete the booking: " + err.Error()}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case bookingCh <- bookingResult{turnID: turnID, message: bookingConfirmationMessage, ok: true}:
		case <-ctx.Done():
		}
	}()
	return BookingPlaceholderMessage
}

// speak runs the speaking phase for a voice turn. Audio frames are queued
// as normal-priority agent output so an interrupt invalidates them.
func (s *Session) speak(ctx context.Context, turnID int64, text string, synthCh chan synthDone) {
	s.sendStatus(protocol.StateSpeaking, "")

	synthCtx, cancel := context.WithCancel(ctx)
	s.synthCancel = cancel
	syn := s.deps.Synth
	go func() {
		defer cancel()
		audioCh, err := syn.Synthesize(synthCtx, text)
		if err != nil {
			s.deliverSynthDone(ctx, synthCh, synthDone{turnID: turnID, err: err})
			return
		}
		for chunk := range audioCh {
			s.deps.Metrics.RecordAudio("out", len(chunk))
			s.sendNormal(turnID, protocol.TypeAgentAudio, protocol.ServerAgentAudio{
				Audio: base64.StdEncoding.EncodeToString(chunk),
			})
		}
		s.deliverSynthDone(ctx, synthCh, synthDone{turnID: turnID, err: synthCtx.Err()})
	}()
}

func (s *Session) deliverSynthDone(ctx context.Context, synthCh chan synthDone, done synthDone) {
	select {
	case synthCh <- done:
	case <-ctx.Done():
	}
}

func (s *Session) persistTurn(ctx context.Context, mode types.TurnMode, userText, agentText string) {
	turn := types.ConversationTurn{
		User:      userText,
		Agent:     agentText,
		Mode:      mode,
		Timestamp: s.deps.Clock(),
	}
	st := s.deps.Store
	identityID := s.identityID
	log := s.log
	m := s.deps.Metrics
	go func() {
		ctx, span := otel.Tracer("frontdesk/session").Start(ctx, "store.save_turn")
		defer span.End()
		if err := st.SaveTurn(ctx, identityID, turn); err != nil {
			log.Warn("failed to persist turn", "error", err)
			m.RecordError("store", "save_turn")
		}
	}()
}

// cancelTurn stops the in-flight completion and synthesis. invalidate also
// bumps the turn id when either is in flight, so already-queued agent
// output (text or audio) is dropped at write time; used for explicit
// interrupts where no new turn follows. An interrupt with nothing in
// flight does not bump, leaving the finished turn's frames valid.
func (s *Session) cancelTurn(invalidate bool) {
	inFlight := s.turnActive || s.synthCancel != nil
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	if s.synthCancel != nil {
		s.synthCancel()
		s.synthCancel = nil
	}
	if invalidate && inFlight {
		s.latestTurn.Add(1)
	}
	s.turnActive = false
}

func (s *Session) closeSTT() {
	if s.sttSession == nil {
		return
	}
	_ = s.sttSession.Finalize()
	if err := s.sttSession.Close(); err != nil {
		s.log.Warn("failed to close transcription session", "error", err)
	}
	s.sttSession = nil
}

// finalizeOnShutdown drains endpointing state on disconnect or shutdown.
// There is no client left to answer, so a pending transcript is logged
// rather than submitted.
func (s *Session) finalizeOnShutdown(reason string) {
	s.recording = false
	s.closeSTT()
	if text, ok := s.ep.ForceFinalize(s.acc); ok {
		s.deps.Metrics.RecordFinalize("shutdown")
		s.log.Info("discarding unprocessed transcript on shutdown", "reason", reason, "chars", len(text))
	}
	s.cancelTurn(true)
}

// Notify queues a best-effort advisory frame (for example a drain
// warning). Safe to call from outside the loop goroutine; delivery goes
// through the session's own writer.
func (s *Session) Notify(code, message string) error {
	data, err := protocol.EncodeServerMessage(protocol.TypeNotice, protocol.ServerNotice{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return err
	}
	select {
	case s.priorityCh <- outboundFrame{textPayload: data}:
		return nil
	default:
		return fmt.Errorf("outbound queue full")
	}
}

func (s *Session) sendStatus(state protocol.SessionState, errMsg string) {
	s.sendPriority(protocol.TypeStatus, protocol.ServerStatus{State: state, Error: errMsg})
}

func (s *Session) sendTranscript(text string, isFinal bool) {
	s.sendPriority(protocol.TypeTranscript, protocol.ServerTranscript{Text: text, IsFinal: isFinal})
}

func (s *Session) sendAgentToken(turnID int64, token string) {
	s.sendNormal(turnID, protocol.TypeAgentText, protocol.ServerAgentText{Token: token})
}

func (s *Session) sendConversationTurn(mode types.TurnMode, userText, agentText string) {
	s.sendPriority(protocol.TypeConversationTurn, protocol.ServerConversationTurn{
		Mode:  string(mode),
		User:  userText,
		Agent: agentText,
	})
}

func (s *Session) sendPriority(typ string, payload any) {
	data, err := protocol.EncodeServerMessage(typ, payload)
	if err != nil {
		s.log.Error("failed to encode outbound frame", "type", typ, "error", err)
		return
	}
	select {
	case s.priorityCh <- outboundFrame{textPayload: data}:
	default:
		s.log.Warn("priority queue full, dropping frame", "type", typ)
	}
}

func (s *Session) sendNormal(turnID int64, typ string, payload any) {
	data, err := protocol.EncodeServerMessage(typ, payload)
	if err != nil {
		s.log.Error("failed to encode outbound frame", "type", typ, "error", err)
		return
	}
	select {
	case s.normalCh <- outboundFrame{textPayload: data, turnID: turnID, agentOutput: true}:
	default:
		s.log.Warn("outbound queue full, dropping frame", "type", typ)
	}
}

func errorType(err error) string {
	if ce, ok := err.(*core.Error); ok {
		return string(ce.Type)
	}
	return "unknown"
}
