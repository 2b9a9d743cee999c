package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeClientMessage_Types(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  any
	}{
		{"start_recording", `{"type":"start_recording"}`, ClientStartRecording{}},
		{"stop_recording", `{"type":"stop_recording"}`, ClientStopRecording{}},
		{"interrupt", `{"type":"interrupt"}`, ClientInterrupt{}},
		{"audio_chunk", `{"type":"audio_chunk","payload":{"audio":"AAAA"}}`, ClientAudioChunk{Audio: "AAAA"}},
		{"chat_message", `{"type":"chat_message","payload":{"text":"hi"}}`, ClientChatMessage{Text: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := DecodeClientMessage([]byte(tc.frame))
			if err != nil {
				t.Fatalf("DecodeClientMessage error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeClientMessage_Metadata(t *testing.T) {
	frame := `{"type":"start_recording","metadata":{"browser_session_id":"b_1","timezone":"Europe/Berlin"}}`
	_, meta, err := DecodeClientMessage([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeClientMessage error: %v", err)
	}
	if meta == nil || meta.BrowserSessionID != "b_1" || meta.Timezone != "Europe/Berlin" {
		t.Fatalf("metadata = %+v", meta)
	}
}

func TestDecodeClientMessage_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		unknown bool
	}{
		{"not json", `garbage`, false},
		{"missing type", `{"payload":{}}`, false},
		{"audio chunk without audio", `{"type":"audio_chunk","payload":{}}`, false},
		{"audio chunk bad payload", `{"type":"audio_chunk","payload":"nope"}`, false},
		{"chat message without text", `{"type":"chat_message","payload":{"text":"  "}}`, false},
		{"unknown type", `{"type":"zzz"}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := DecodeClientMessage([]byte(tc.frame))
			if err == nil {
				t.Fatalf("expected error")
			}
			if IsUnknownType(err) != tc.unknown {
				t.Fatalf("IsUnknownType = %v, want %v (err=%v)", IsUnknownType(err), tc.unknown, err)
			}
		})
	}
}

func TestDecodeClientMessage_UnknownTypeStillCarriesMetadata(t *testing.T) {
	frame := `{"type":"zzz","metadata":{"browser_session_id":"b_1"}}`
	_, meta, err := DecodeClientMessage([]byte(frame))
	if !IsUnknownType(err) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if meta == nil || meta.BrowserSessionID != "b_1" {
		t.Fatalf("metadata lost on unknown frame: %+v", meta)
	}
}

func TestEncodeServerMessage(t *testing.T) {
	data, err := EncodeServerMessage(TypeStatus, ServerStatus{State: StateListening})
	if err != nil {
		t.Fatalf("EncodeServerMessage error: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != TypeStatus {
		t.Fatalf("type=%q, want status", env.Type)
	}
	var status ServerStatus
	if err := json.Unmarshal(env.Payload, &status); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if status.State != StateListening {
		t.Fatalf("state=%q, want listening", status.State)
	}
}
