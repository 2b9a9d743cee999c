package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramWSBaseURL = "wss://api.deepgram.com/v1/listen"

	// Liveness frames keep the upstream socket open through long silences.
	deepgramKeepAliveInterval = 5 * time.Second
)

// DeepgramProvider implements the transcription port using Deepgram's live
// streaming API.
type DeepgramProvider struct {
	apiKey    string
	wsBaseURL string
}

// DeepgramOption configures the provider.
type DeepgramOption func(*DeepgramProvider)

// WithWSBaseURL overrides the websocket endpoint (used by tests).
func WithWSBaseURL(base string) DeepgramOption {
	return func(p *DeepgramProvider) { p.wsBaseURL = base }
}

// NewDeepgram creates a Deepgram STT provider.
func NewDeepgram(apiKey string, opts ...DeepgramOption) *DeepgramProvider {
	p := &DeepgramProvider{
		apiKey:    apiKey,
		wsBaseURL: deepgramWSBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *DeepgramProvider) Name() string { return "deepgram" }

// NewLiveSession opens a streaming transcription session over websocket.
// Audio is sent incrementally via SendAudio; hypotheses arrive on Events.
func (p *DeepgramProvider) NewLiveSession(ctx context.Context, opts LiveOptions) (LiveSession, error) {
	u, err := url.Parse(p.wsBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", language)
	q.Set("encoding", encoding)
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("channels", "1")
	// Interim hypotheses are the whole point: the engine does its own
	// endpointing and needs the evolving full-utterance restatements.
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &deepgramSession{
		conn:   conn,
		events: make(chan TranscriptEvent, 100),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.readLoop()
	go s.keepAliveLoop()
	return s, nil
}

// deepgramSession is one live transcription stream.
type deepgramSession struct {
	conn    *websocket.Conn
	events  chan TranscriptEvent
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	// speech_final marks the provider's own endpoint guess for the segment.
	SpeechFinal bool `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramSession) readLoop() {
	defer func() {
		close(s.events)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		var msg deepgramResponse
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
			continue
		}
		text := msg.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}
		event := TranscriptEvent{
			Text:      text,
			FinalHint: msg.IsFinal || msg.SpeechFinal,
		}
		select {
		case s.events <- event:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *deepgramSession) keepAliveLoop() {
	ticker := time.NewTicker(deepgramKeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeControl(`{"type":"KeepAlive"}`)
		}
	}
}

func (s *deepgramSession) writeControl(payload string) {
	if s.closed.Load() {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

// SendAudio forwards raw audio in the format negotiated at session creation.
func (s *deepgramSession) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize flushes buffered audio so the provider emits a final hypothesis.
// The session stays open for the next utterance.
func (s *deepgramSession) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
}

// Events returns the transcript event channel.
func (s *deepgramSession) Events() <-chan TranscriptEvent {
	return s.events
}

// Close tears down the streaming session.
func (s *deepgramSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
