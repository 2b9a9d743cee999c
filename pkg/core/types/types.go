// Package types holds the conversation data model shared by providers and
// the gateway.
package types

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation history. Histories are append-only
// for the life of a connection.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// TurnMode distinguishes how the user side of a turn arrived.
type TurnMode string

const (
	ModeVoice TurnMode = "voice"
	ModeChat  TurnMode = "chat"
)

// ConversationTurn is an immutable record of one completed exchange. It is
// produced once per finished agent response and handed to persistence.
type ConversationTurn struct {
	User      string    `json:"user"`
	Agent     string    `json:"agent"`
	Mode      TurnMode  `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}
