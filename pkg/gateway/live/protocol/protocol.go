// Package protocol defines the websocket wire protocol: one JSON envelope
// per text frame, {type, payload, metadata?} in both directions.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError describes a rejected inbound frame. Malformed frames are
// logged and dropped; they never terminate the connection.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// UnknownType marks a frame whose type the engine does not recognize.
// These are ignored with a log line and no state change.
func unknownType(typ string) *DecodeError {
	return &DecodeError{Code: "unknown_type", Message: "unknown message type", Param: typ}
}

// IsUnknownType reports whether err is the unknown-message-type decode error.
func IsUnknownType(err error) bool {
	de, ok := err.(*DecodeError)
	return ok && de != nil && de.Code == "unknown_type"
}

// Metadata rides on any inbound envelope. browser_session_id and timezone
// are captured from the first message that carries them and are immutable
// for the rest of the connection.
type Metadata struct {
	BrowserSessionID string `json:"browser_session_id,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
}

// Envelope is the wire framing for every message in both directions.
type Envelope struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// Inbound message types.
const (
	TypeStartRecording = "start_recording"
	TypeStopRecording  = "stop_recording"
	TypeAudioChunk     = "audio_chunk"
	TypeChatMessage    = "chat_message"
	TypeInterrupt      = "interrupt"
)

// Outbound message types.
const (
	TypeStatus           = "status"
	TypeTranscript       = "transcript"
	TypeAgentText        = "agent_text"
	TypeAgentAudio       = "agent_audio"
	TypeConversationTurn = "conversation_turn"
	TypeNotice           = "notice"
)

// ClientStartRecording opens the listening phase.
type ClientStartRecording struct{}

// ClientStopRecording ends the listening phase, forcing a finalize when a
// pending transcript exists.
type ClientStopRecording struct{}

// ClientAudioChunk carries base64 PCM16 16kHz mono audio.
type ClientAudioChunk struct {
	Audio string `json:"audio"`
}

// ClientChatMessage is typed input; it bypasses endpointing entirely.
type ClientChatMessage struct {
	Text string `json:"text"`
}

// ClientInterrupt cancels the in-flight agent response (barge-in).
type ClientInterrupt struct{}

// DecodeClientMessage parses one inbound frame. It returns the typed
// message, the envelope metadata when present, and a *DecodeError for
// malformed or unknown frames.
func DecodeClientMessage(data []byte) (any, *Metadata, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		return nil, env.Metadata, badRequest("missing type", "type")
	}

	switch typ {
	case TypeStartRecording:
		return ClientStartRecording{}, env.Metadata, nil
	case TypeStopRecording:
		return ClientStopRecording{}, env.Metadata, nil
	case TypeAudioChunk:
		var msg ClientAudioChunk
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &msg); err != nil {
				return nil, env.Metadata, badRequest("invalid audio_chunk payload", "payload")
			}
		}
		if strings.TrimSpace(msg.Audio) == "" {
			return nil, env.Metadata, badRequest("audio_chunk.audio is required", "payload.audio")
		}
		return msg, env.Metadata, nil
	case TypeChatMessage:
		var msg ClientChatMessage
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &msg); err != nil {
				return nil, env.Metadata, badRequest("invalid chat_message payload", "payload")
			}
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, env.Metadata, badRequest("chat_message.text is required", "payload.text")
		}
		return msg, env.Metadata, nil
	case TypeInterrupt:
		return ClientInterrupt{}, env.Metadata, nil
	default:
		return nil, env.Metadata, unknownType(typ)
	}
}

// SessionState is the connection-scoped state advertised in status frames.
type SessionState string

const (
	StateConnected   SessionState = "connected"
	StateListening   SessionState = "listening"
	StateThinking    SessionState = "thinking"
	StateSpeaking    SessionState = "speaking"
	StateIdle        SessionState = "idle"
	StateInterrupted SessionState = "interrupted"
	StateError       SessionState = "error"
)

// ServerStatus reports a session state transition.
type ServerStatus struct {
	State SessionState `json:"state"`
	Error string       `json:"error,omitempty"`
}

// ServerTranscript forwards the evolving or finalized pending transcript.
type ServerTranscript struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// ServerAgentText streams one agent token. Clear tells the far end to drop
// previously displayed agent output before rendering this turn.
type ServerAgentText struct {
	Token string `json:"token,omitempty"`
	Clear bool   `json:"clear,omitempty"`
}

// ServerAgentAudio carries one base64 chunk of synthesized speech.
type ServerAgentAudio struct {
	Audio string `json:"audio"`
}

// ServerNotice is an out-of-band advisory, currently only drain warnings.
type ServerNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerConversationTurn reports one completed exchange.
type ServerConversationTurn struct {
	Mode  string `json:"mode"`
	User  string `json:"user"`
	Agent string `json:"agent"`
}

// EncodeServerMessage wraps an outbound payload in the wire envelope.
func EncodeServerMessage(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}
