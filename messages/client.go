package messages

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Client message types
const (
	TypeClientText    = "text"
	TypeClientControl = "control"
	TypeClientConfig  = "config"
)

// Control actions
const (
	ActionPing    = "ping"
	ActionEndTurn = "end_turn"
	ActionReset   = "reset"
)

// ClientMessage represents a JSON frame from the browser. Microphone audio
// arrives separately as binary frames.
type ClientMessage struct {
	Type    string          `json:"type"` // "text", "control", "config"
	Payload json.RawMessage `json:"payload"`
}

// TextPayload carries a typed prompt.
type TextPayload struct {
	Text string `json:"text"`
}

// ConfigPayload changes the session's generation settings. Missing fields
// keep their current value.
type ConfigPayload struct {
	Model           *string  `json:"model,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int32   `json:"maxOutputTokens,omitempty"`
	SystemPrompt    *string  `json:"systemPrompt,omitempty"`
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"` // "ping", "end_turn", "reset"
}

// DecodeClientMessage parses a JSON frame.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("decode client message: missing type")
	}
	return &msg, nil
}

// DecodePayload unmarshals the message payload into v.
func (m *ClientMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	return sonic.Unmarshal(m.Payload, v)
}
