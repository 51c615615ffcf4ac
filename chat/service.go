package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/gemini"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/session"
)

var (
	ErrTranscriptionFailed = errors.New("audio transcription failed")
	ErrEmptyPrompt         = errors.New("empty prompt")
)

// AudioPrefix marks a user turn that came from speech.
const AudioPrefix = "🎤 (Audio): "

// Generator is the remote generation capability.
type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (*gemini.Reply, error)
}

// Transcriber turns a clip into text, reporting false when it cannot.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, bool)
}

// Outcome is the result of one turn. Err and UserMessage are set when the
// turn ended in Errored.
type Outcome struct {
	State       State   `json:"state"`
	Reply       string  `json:"reply,omitempty"`
	Transcript  string  `json:"transcript,omitempty"`
	UserMessage string  `json:"error,omitempty"`
	History     []State `json:"history"`
	Err         error   `json:"-"`
}

// Service runs turns against a session.
type Service struct {
	gen Generator
	stt Transcriber
}

func NewService(gen Generator, stt Transcriber) *Service {
	return &Service{gen: gen, stt: stt}
}

// HandleText runs a turn triggered by typed text.
func (s *Service) HandleText(ctx context.Context, sess *session.Session, text string) Outcome {
	unlock := sess.LockTurn()
	defer unlock()

	turn := NewTurn()
	turn.Advance(AwaitingInput)
	turn.Advance(TextTyped)

	text = strings.TrimSpace(text)
	if text == "" {
		return s.fail(sess, turn, ErrEmptyPrompt, "")
	}
	sess.Append(session.RoleUser, text)

	turn.Advance(Normalizing)
	return s.submit(ctx, sess, turn, text, "")
}

// HandleAudio runs a turn triggered by a recorded or uploaded clip. The
// transcript stands in for typed text.
func (s *Service) HandleAudio(ctx context.Context, sess *session.Session, clip audio.Clip) Outcome {
	unlock := sess.LockTurn()
	defer unlock()

	turn := NewTurn()
	turn.Advance(AwaitingInput)
	turn.Advance(AudioCaptured)
	turn.Advance(Normalizing)

	transcript, ok := s.stt.Transcribe(ctx, clip)
	if !ok {
		return s.fail(sess, turn, ErrTranscriptionFailed, "")
	}
	log.Infof("🎤 [%s] Transcript: %s", sess.Short(), transcript)
	sess.Append(session.RoleUser, AudioPrefix+transcript)

	return s.submit(ctx, sess, turn, transcript, transcript)
}

func (s *Service) submit(ctx context.Context, sess *session.Session, turn *Turn, prompt, transcript string) Outcome {
	cfg := sess.Config()

	turn.Advance(Assembling)
	parts, err := Assemble(prompt, sess.Content(), cfg.ModelInfo())
	if err != nil {
		return s.fail(sess, turn, err, transcript)
	}

	turn.Advance(Submitting)
	log.Infof("📤 [%s] Sending %d part(s) to %s", sess.Short(), len(parts), cfg.Model)
	reply, err := s.gen.Generate(ctx, gemini.Request{
		Model:           cfg.Model,
		Parts:           parts,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		SystemPrompt:    cfg.SystemPrompt,
	})
	if err != nil {
		return s.fail(sess, turn, err, transcript)
	}

	sess.Append(session.RoleAssistant, reply.Text)
	turn.Advance(Rendered)
	return Outcome{
		State:      turn.State(),
		Reply:      reply.Text,
		Transcript: transcript,
		History:    turn.History(),
	}
}

func (s *Service) fail(sess *session.Session, turn *Turn, err error, transcript string) Outcome {
	turn.Advance(Errored)
	msg := UserMessage(err)
	log.Warnf("❌ [%s] Turn failed: %v", sess.Short(), err)
	return Outcome{
		State:       turn.State(),
		Transcript:  transcript,
		UserMessage: msg,
		History:     turn.History(),
		Err:         err,
	}
}

// UserMessage is the text shown to the user for a failed turn.
func UserMessage(err error) string {
	var blocked *gemini.SafetyBlockError
	switch {
	case errors.Is(err, ErrTranscriptionFailed):
		return "Audio transcription failed."
	case errors.Is(err, ErrCapabilityMismatch):
		return "Please select a vision model for images!"
	case errors.Is(err, ErrEmptyPrompt):
		return "Please enter a message."
	case errors.As(err, &blocked):
		if blocked.Reason != "" {
			return "The response was blocked for safety reasons: " + blocked.Reason
		}
		return "The response was blocked for safety reasons"
	default:
		return "API Error: " + err.Error()
	}
}
