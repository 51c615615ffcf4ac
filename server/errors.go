package server

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/chat"
	"github.com/room4-2/gemini-chat/gemini"
	"github.com/room4-2/gemini-chat/ingest"
	"github.com/room4-2/gemini-chat/knowledge"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/messages"
	"github.com/room4-2/gemini-chat/session"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		log.Errorf("❌ Failed to encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// errorCode maps a domain error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrTranscriptionFailed):
		return messages.ErrCodeTranscriptionFailed
	case errors.Is(err, chat.ErrCapabilityMismatch):
		return messages.ErrCodeCapabilityMismatch
	case errors.Is(err, chat.ErrEmptyPrompt), errors.Is(err, knowledge.ErrInvalidName):
		return messages.ErrCodeInvalidMessage
	case errors.Is(err, gemini.ErrSafetyBlock):
		return messages.ErrCodeSafetyBlock
	case errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, audio.ErrUnsupportedAudio):
		return messages.ErrCodeUnsupportedFormat
	case errors.Is(err, ingest.ErrDecodeFailure), errors.Is(err, knowledge.ErrEmptyDocument):
		return messages.ErrCodeDecodeFailure
	case errors.Is(err, audio.ErrBufferFull):
		return messages.ErrCodeBufferFull
	case errors.Is(err, session.ErrNotFound):
		return messages.ErrCodeSessionNotFound
	case errors.Is(err, session.ErrMaxSessions):
		return messages.ErrCodeSessionFailed
	case errors.Is(err, session.ErrUnknownModel):
		return messages.ErrCodeInvalidConfig
	case errors.Is(err, gemini.ErrRemote):
		return messages.ErrCodeGeminiError
	default:
		return messages.ErrCodeInternal
	}
}

// errorStatus maps a domain error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyPrompt),
		errors.Is(err, session.ErrUnknownModel),
		errors.Is(err, knowledge.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, audio.ErrUnsupportedAudio):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, chat.ErrCapabilityMismatch),
		errors.Is(err, gemini.ErrSafetyBlock),
		errors.Is(err, ingest.ErrDecodeFailure),
		errors.Is(err, knowledge.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotFound), errors.Is(err, knowledge.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrMaxSessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, chat.ErrTranscriptionFailed), errors.Is(err, gemini.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
