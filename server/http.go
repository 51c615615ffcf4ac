package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/chat"
	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/ingest"
	"github.com/room4-2/gemini-chat/knowledge"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/messages"
	"github.com/room4-2/gemini-chat/session"
)

const previewLength = 500

type ctxKey struct{}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, ok := s.sessions.GetSession(id)
		if !ok {
			writeError(w, http.StatusNotFound, messages.ErrCodeSessionNotFound, "session not found")
			return
		}
		sess.Touch()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

type sessionResponse struct {
	SessionID string                   `json:"sessionId"`
	Config    session.GenerationConfig `json:"config"`
}

type messagesResponse struct {
	SessionID string             `json:"sessionId"`
	Messages  []session.ChatTurn `json:"messages"`
}

type configResponse struct {
	Config session.GenerationConfig `json:"config"`
	Models []config.Model           `json:"models"`
}

type uploadResponse struct {
	FileName string `json:"fileName"`
	Kind     string `json:"kind"`
	Preview  string `json:"preview,omitempty"`
	Error    string `json:"error,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.Models)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.CreateSession(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: sess.ID, Config: sess.Config()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.RemoveSession(r.Context(), sessionFrom(r).ID); err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Reset()
	s.sessions.Sync(r.Context(), sess)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.ID, Config: sess.Config()})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	writeJSON(w, http.StatusOK, messagesResponse{SessionID: sess.ID, Messages: sess.Ledger()})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{Config: sessionFrom(r).Config(), Models: config.Models})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var payload messages.ConfigPayload
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil || sonic.Unmarshal(body, &payload) != nil {
		writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "invalid JSON body")
		return
	}

	sess := sessionFrom(r)
	cfg, err := applyConfig(sess, payload)
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	s.sessions.Sync(r.Context(), sess)
	writeJSON(w, http.StatusOK, configResponse{Config: cfg, Models: config.Models})
}

// applyConfig merges the fields present in p into the session's settings.
func applyConfig(sess *session.Session, p messages.ConfigPayload) (session.GenerationConfig, error) {
	cfg := sess.Config()
	if p.Model != nil {
		cfg.Model = *p.Model
	}
	if p.Temperature != nil {
		cfg.Temperature = *p.Temperature
	}
	if p.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *p.MaxOutputTokens
	}
	if p.SystemPrompt != nil {
		cfg.SystemPrompt = *p.SystemPrompt
	}
	return sess.SetConfig(cfg)
}

// readUpload returns the multipart "file" field. It writes the error
// response itself and returns false on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)
	if err := r.ParseMultipartForm(s.config.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, messages.ErrCodeInvalidMessage,
				fmt.Sprintf("file exceeds %d bytes", s.config.MaxUploadSize))
			return "", nil, false
		}
		writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "invalid multipart form")
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "file is required (field 'file')")
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "could not read file")
		return "", nil, false
	}
	return header.Filename, data, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if !ingest.AcceptsUpload(name) {
		writeError(w, http.StatusUnsupportedMediaType, messages.ErrCodeUnsupportedFormat, "Unsupported file format")
		return
	}

	sess := sessionFrom(r)
	content, err := ingest.Normalize(ingest.Artifact{Name: name, Data: data})
	sess.SetContent(content)
	s.sessions.Sync(r.Context(), sess)

	if err != nil {
		reason, _ := content.Reason()
		if ingest.IsUserError(err) {
			log.Warnf("⚠️ [%s] Upload %s rejected: %v", sess.Short(), name, err)
		} else {
			log.Errorf("❌ [%s] Upload %s failed: %v", sess.Short(), name, err)
		}
		writeJSON(w, errorStatus(err), uploadResponse{FileName: name, Kind: content.Kind().String(), Error: reason})
		return
	}
	log.Infof("📎 [%s] Uploaded %s (%s)", sess.Short(), name, content.Kind())
	writeJSON(w, http.StatusOK, uploadResponse{FileName: name, Kind: content.Kind().String(), Preview: content.Preview(previewLength)})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || sonic.Unmarshal(body, &req) != nil {
		writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "invalid JSON body")
		return
	}

	sess := sessionFrom(r)
	s.writeOutcome(w, r, sess, s.chat.HandleText(r.Context(), sess, req.Message))
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if !audio.AcceptsUpload(name) {
		writeError(w, http.StatusUnsupportedMediaType, messages.ErrCodeUnsupportedFormat, "audio must be mp3 or wav")
		return
	}

	sess := sessionFrom(r)
	clip := audio.Clip{Data: data, Origin: audio.OriginUpload, Filename: name}
	s.writeOutcome(w, r, sess, s.chat.HandleAudio(r.Context(), sess, clip))
}

func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, sess *session.Session, out chat.Outcome) {
	s.sessions.Sync(r.Context(), sess)
	if out.State == chat.Errored {
		writeJSON(w, errorStatus(out.Err), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if !ingest.AcceptsKnowledge(name) {
		writeError(w, http.StatusUnsupportedMediaType, messages.ErrCodeUnsupportedFormat, "Unsupported file type for knowledge base.")
		return
	}

	doc, err := s.knowledge.Add(r.Context(), ingest.Artifact{Name: name, Data: data})
	if err != nil {
		writeError(w, errorStatus(err), errorCode(err), err.Error())
		return
	}
	doc.Content = ""
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	docs, err := s.knowledge.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, messages.ErrCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	doc, err := s.knowledge.Get(r.Context(), chi.URLParam(r, "name"))
	if errors.Is(err, knowledge.ErrNotFound) {
		writeError(w, http.StatusNotFound, messages.ErrCodeNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, messages.ErrCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
