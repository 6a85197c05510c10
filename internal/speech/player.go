package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// SpeakerPlayer plays wav and mp3 files on the default output device. The
// device is opened on first use at that file's sample rate and kept open;
// later files at other rates are resampled to it.
type SpeakerPlayer struct {
	mu   sync.Mutex
	rate beep.SampleRate
}

func NewSpeakerPlayer() *SpeakerPlayer { return &SpeakerPlayer{} }

func (p *SpeakerPlayer) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	streamer, format, err := decode(f, path)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	defer streamer.Close()

	if p.rate == 0 {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			return fmt.Errorf("init speaker: %w", err)
		}
		p.rate = format.SampleRate
	}

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return mp3.Decode(f)
	}
	return wav.Decode(f)
}
