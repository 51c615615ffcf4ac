package messages

import "github.com/bytedance/sonic"

// Error codes
const (
	ErrCodeInvalidMessage      = "INVALID_MESSAGE"
	ErrCodeGeminiError         = "GEMINI_ERROR"
	ErrCodeSafetyBlock         = "SAFETY_BLOCK"
	ErrCodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
	ErrCodeCapabilityMismatch  = "CAPABILITY_MISMATCH"
	ErrCodeUnsupportedFormat   = "UNSUPPORTED_FORMAT"
	ErrCodeDecodeFailure       = "DECODE_FAILURE"
	ErrCodeSessionFailed       = "SESSION_FAILED"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeBufferFull          = "BUFFER_FULL"
	ErrCodeEmptyAudio          = "EMPTY_AUDIO"
	ErrCodeInvalidConfig       = "INVALID_CONFIG"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// Server message types
const (
	TypeText       = "text"
	TypeTranscript = "transcript"
	TypeStatus     = "status"
	TypeError      = "error"
)

// Status values
const (
	StatusConnected    = "connected"
	StatusProcessing   = "processing"
	StatusTurnComplete = "turn_complete"
	StatusReset        = "reset"
	StatusPong         = "pong"
	StatusConfig       = "config_updated"
)

// ServerMessage represents a message sent to frontend client
type ServerMessage struct {
	Type      string `json:"type"` // "text", "transcript", "status", "error"
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload"`
}

// TextResponsePayload contains text response
type TextResponsePayload struct {
	Text string `json:"text"`
}

// StatusPayload contains status updates
type StatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewTextMessage creates an assistant reply message
func NewTextMessage(sessionID, text string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeText,
		SessionID: sessionID,
		Payload:   TextResponsePayload{Text: text},
	}
}

// NewTranscriptMessage echoes what the user said
func NewTranscriptMessage(sessionID, text string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTranscript,
		SessionID: sessionID,
		Payload:   TextResponsePayload{Text: text},
	}
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// Encode serializes a server message for the wire.
func (m *ServerMessage) Encode() ([]byte, error) {
	return sonic.Marshal(m)
}
