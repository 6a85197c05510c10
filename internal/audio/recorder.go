package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "log/slog"

	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate = 16000
	frameSize  = 320 // 20ms
	frameDur   = 20 * time.Millisecond
)

type RecorderConfig struct {
	CalibrationDuration time.Duration
	ThresholdMultiplier float64 // ambient level * multiplier = speech threshold
	ThresholdFloor      float64
	PauseDuration       time.Duration // silence that ends an utterance
	MaxPhrase           time.Duration
	Preroll             time.Duration
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		CalibrationDuration: time.Second,
		ThresholdMultiplier: 1.5,
		ThresholdFloor:      0.01,
		PauseDuration:       800 * time.Millisecond,
		MaxPhrase:           15 * time.Second,
		Preroll:             300 * time.Millisecond,
	}
}

// Recorder captures utterances from the default input device.
type Recorder struct {
	cfg       RecorderConfig
	threshold float64
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	return &Recorder{cfg: cfg, threshold: cfg.ThresholdFloor}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Calibrate samples ambient noise and sets the speech threshold from it.
func (r *Recorder) Calibrate(ctx context.Context) error {
	buf := make([]float32, frameSize)

	stream, err := openInput(buf)
	if err != nil {
		return err
	}
	defer stream.Close()
	defer stream.Stop()

	frames := int(r.cfg.CalibrationDuration / frameDur)
	if frames < 1 {
		frames = 1
	}

	levels := make([]float64, 0, frames)
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.Read(); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		levels = append(levels, FrameRMS(buf))
	}

	r.threshold = AmbientThreshold(levels, r.cfg.ThresholdMultiplier, r.cfg.ThresholdFloor)
	log.Debug("Calibrated microphone", "threshold", r.threshold, "frames", frames)

	return nil
}

// Capture blocks until an utterance starts and ends in silence.
func (r *Recorder) Capture(ctx context.Context) ([]float32, error) {
	buf := make([]float32, frameSize)

	stream, err := openInput(buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	defer stream.Stop()

	ep := NewEndpointer(EndpointConfig{
		Threshold:     r.threshold,
		SilenceFrames: int(r.cfg.PauseDuration / frameDur),
		MaxFrames:     int(r.cfg.MaxPhrase / frameDur),
		PrerollFrames: int(r.cfg.Preroll / frameDur),
	})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			return nil, fmt.Errorf("read: %w", err)
		}

		if ep.Push(buf) {
			return ep.Samples(), nil
		}
	}
}

func openInput(buf []float32) (*portaudio.Stream, error) {
	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input: %w", err)
	}
	return stream, nil
}
