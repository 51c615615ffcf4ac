// Package chat runs one conversational turn: it merges the user's words with
// the session's latest upload, calls the model and records the result.
package chat

import (
	"errors"
	"fmt"

	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/gemini"
	"github.com/room4-2/gemini-chat/ingest"
)

// ErrCapabilityMismatch is returned when an image is paired with a model
// that does not accept images.
var ErrCapabilityMismatch = errors.New("model does not support images")

const fileContentHeader = "\n\n[File Content]\n"

// Assemble builds the parts of one request. Part 0 is always the prompt text,
// with any extracted file text appended under a header. An image becomes a
// second, inline JPEG part. Error and empty content contribute nothing.
func Assemble(prompt string, content ingest.Content, model config.Model) ([]gemini.Part, error) {
	switch content.Kind() {
	case ingest.ContentText:
		text, _ := content.Text()
		return []gemini.Part{gemini.TextPart(prompt + fileContentHeader + text)}, nil
	case ingest.ContentImage:
		if !model.Vision {
			return nil, fmt.Errorf("%w: %s", ErrCapabilityMismatch, model.Name)
		}
		bmp, _ := content.Image()
		jpeg, err := bmp.EncodeJPEG()
		if err != nil {
			return nil, err
		}
		return []gemini.Part{gemini.TextPart(prompt), gemini.BlobPart("image/jpeg", jpeg)}, nil
	default:
		return []gemini.Part{gemini.TextPart(prompt)}, nil
	}
}
