package streaming

import (
	"encoding/json"
	"fmt"
)

// Message type constants for the host link protocol.
const (
	TypeHello    = "hello"
	TypeCall     = "call"
	TypeReply    = "reply"
	TypeCallback = "callback"
	TypeAck      = "ack"
)

// Reply status values, first element of ReplyPayload.Result.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the host's acknowledgement of a callback.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the callback id being acknowledged
}

// HelloPayload is sent by the extension after every (re)connect.
type HelloPayload struct {
	Extension string   `json:"extension"`
	Version   string   `json:"version"`
	Commands  []string `json:"commands"`
}

// CallPayload is a host event or command to run on the event loop.
type CallPayload struct {
	ID      string   `json:"id"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// ReplyPayload answers a CallPayload with the same id. Result is
// ["ok", command] or ["ok", command, result] on success and
// ["error", command, message] on failure.
type ReplyPayload struct {
	ID     string `json:"id"`
	Result []any  `json:"result"`
}

// CallbackPayload asks the host to run a named function. The host acks it by id.
type CallbackPayload struct {
	ID       string `json:"id"`
	Function string `json:"function"`
	Args     []any  `json:"args"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// FormatResult builds the ReplyPayload result array for a handler outcome.
func FormatResult(command string, result any, err error) []any {
	if err != nil {
		return []any{StatusError, command, err.Error()}
	}
	if result == nil {
		return []any{StatusOK, command}
	}
	return []any{StatusOK, command, result}
}
