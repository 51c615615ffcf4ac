package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// Microphone frames are 16-bit little-endian mono PCM at this rate.
const PCMSampleRate = 16000

// IsRIFF reports whether data already starts with a WAV header.
func IsRIFF(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// WrapPCM encodes raw microphone PCM as a WAV file. A trailing odd byte is dropped.
func WrapPCM(pcm []byte) ([]byte, error) {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: PCMSampleRate, NumChannels: 1},
		Data:           samples,
		SourceBitDepth: 16,
	}

	file := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(file, PCMSampleRate, 16, 1, 1)
	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("wav encode: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("wav close: %w", err)
	}
	return io.ReadAll(file.Reader())
}
