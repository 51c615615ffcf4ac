// Package audio handles voice input: buffering microphone frames, wrapping
// them for upload and turning a clip into a transcript.
package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrBufferFull is returned when a frame would push a Buffer past its limit.
var ErrBufferFull = errors.New("audio buffer full")

// Buffer accumulates microphone PCM frames until the client ends its turn.
// It is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	data    []byte
	frames  int
	maxSize int
}

// NewBuffer creates a buffer holding at most maxSize bytes.
func NewBuffer(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize}
}

// MaxSize is the byte limit given to NewBuffer.
func (b *Buffer) MaxSize() int {
	return b.maxSize
}

// Append copies frame into the buffer. It returns ErrBufferFull, leaving the
// buffer unchanged, when the frame would push it past MaxSize.
func (b *Buffer) Append(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data)+len(frame) > b.maxSize {
		return ErrBufferFull
	}
	b.data = append(b.data, frame...)
	b.frames++
	return nil
}

// Flush returns the buffered bytes in arrival order and empties the buffer.
// It returns nil when nothing was buffered.
func (b *Buffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.data
	b.data, b.frames = nil, 0
	if len(out) == 0 {
		return nil
	}
	return out
}

// Clear drops everything buffered.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.data, b.frames = nil, 0
	b.mu.Unlock()
}

// Size is the number of buffered bytes.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// IsEmpty reports whether no frame has been appended since the last flush.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames == 0
}

// Frames is the number of frames appended since the last flush.
func (b *Buffer) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Duration estimates how much speech is buffered, assuming 16-bit mono PCM
// at PCMSampleRate.
func (b *Buffer) Duration() time.Duration {
	samples := b.Size() / 2
	return time.Duration(samples) * time.Second / PCMSampleRate
}
