package audio

import (
	"context"
	"strings"

	"github.com/room4-2/gemini-chat/log"
)

// Remote is the speech-to-text capable model.
type Remote interface {
	Transcribe(ctx context.Context, path, mimeType, instruction string) (string, error)
}

// Transcriber turns clips into text.
type Transcriber struct {
	remote      Remote
	dir         string
	instruction string
}

// NewTranscriber stages clips under dir and sends them to remote with the
// given instruction.
func NewTranscriber(remote Remote, dir, instruction string) *Transcriber {
	return &Transcriber{remote: remote, dir: dir, instruction: instruction}
}

// Transcribe returns the trimmed transcript of clip. The boolean is false
// when nothing usable came back; the cause is logged, not returned. The
// staged file is removed on every path.
func (t *Transcriber) Transcribe(ctx context.Context, clip Clip) (string, bool) {
	staged, err := Stage(clip, t.dir)
	if err != nil {
		log.Warnf("❌ Could not stage %s audio: %v", clip.Origin, err)
		return "", false
	}
	defer func() {
		if err := staged.Release(); err != nil {
			log.Warnf("⚠️ Failed to remove %s: %v", staged.Path, err)
		}
	}()

	log.Debugf("🎤 Transcribing %s audio (%s, %d bytes)", clip.Origin, staged.MIMEType, len(clip.Data))
	text, err := t.remote.Transcribe(ctx, staged.Path, staged.MIMEType, t.instruction)
	if err != nil {
		log.Errorf("❌ Transcription failed: %v", err)
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		log.Infof("🔇 Empty transcript for %s audio", clip.Origin)
		return "", false
	}
	return text, true
}
