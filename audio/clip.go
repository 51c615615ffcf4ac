package audio

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// ErrUnsupportedAudio is returned for uploads that are not mp3 or wav.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// Origin tells where a clip came from.
type Origin int

const (
	OriginMicrophone Origin = iota
	OriginUpload
)

func (o Origin) String() string {
	if o == OriginUpload {
		return "uploaded-file"
	}
	return "microphone"
}

// Clip is one piece of captured or uploaded speech.
type Clip struct {
	Data     []byte
	Origin   Origin
	Filename string // set for uploads
}

// AcceptsUpload reports whether name is an audio file the service transcribes.
func AcceptsUpload(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".wav":
		return true
	}
	return false
}

// Prepare returns the bytes to send for transcription and their MIME type.
// Raw microphone PCM is wrapped in a WAV container.
func (c Clip) Prepare() ([]byte, string, error) {
	if len(c.Data) == 0 {
		return nil, "", errors.New("empty audio clip")
	}

	if c.Origin == OriginMicrophone {
		if IsRIFF(c.Data) {
			return c.Data, "audio/wav", nil
		}
		wrapped, err := WrapPCM(c.Data)
		if err != nil {
			return nil, "", err
		}
		return wrapped, "audio/wav", nil
	}

	switch strings.ToLower(filepath.Ext(c.Filename)) {
	case ".mp3":
		return c.Data, "audio/mpeg", nil
	case ".wav":
		if !wav.NewDecoder(bytes.NewReader(c.Data)).IsValidFile() {
			return nil, "", fmt.Errorf("%w: %s is not a valid wav file", ErrUnsupportedAudio, c.Filename)
		}
		return c.Data, "audio/wav", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedAudio, c.Filename)
	}
}

func (c Clip) extension() string {
	if c.Origin == OriginUpload {
		if ext := strings.ToLower(filepath.Ext(c.Filename)); ext != "" {
			return ext
		}
	}
	return ".wav"
}
