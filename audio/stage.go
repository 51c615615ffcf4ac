package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Staged is a clip written to a temporary file for upload.
type Staged struct {
	Path     string
	MIMEType string

	once sync.Once
	err  error
}

// Stage writes clip to a new temporary file under dir. The caller must
// Release it.
func Stage(clip Clip, dir string) (*Staged, error) {
	data, mimeType, err := clip.Prepare()
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(dir, "clip-*"+clip.extension())
	if err != nil {
		return nil, fmt.Errorf("create temp audio: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write temp audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp audio: %w", err)
	}
	return &Staged{Path: f.Name(), MIMEType: mimeType}, nil
}

// Release removes the staged file. It is safe to call more than once.
func (s *Staged) Release() error {
	s.once.Do(func() {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.err = err
		}
	})
	return s.err
}
