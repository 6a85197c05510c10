package audioconv

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// EncodeWAV writes mono float PCM at sampleRate as 16-bit WAV.
func EncodeWAV(w io.WriteSeeker, pcm []float32, sampleRate int) error {
	if len(pcm) == 0 {
		return errors.New("no samples to encode")
	}

	data := make([]int, len(pcm))
	for i, x := range pcm {
		data[i] = int(clamp(float64(x), -1.0, 1.0) * 32767)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return enc.Close()
}

// WriteTempWAV encodes pcm into a new temp file and rewinds it for reading.
// The caller owns the file and removes it.
func WriteTempWAV(pcm []float32, sampleRate int) (*os.File, error) {
	f, err := os.CreateTemp("", "llamavox-*.wav")
	if err != nil {
		return nil, err
	}
	if err := EncodeWAV(f, pcm, sampleRate); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}
