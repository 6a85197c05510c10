package audio

import (
	"math"
	"sort"
)

// Endpointer splits a frame stream into one utterance: it waits for a frame
// above the energy threshold, keeps a little pre-roll so the first syllable is
// not clipped, and ends the utterance after enough consecutive quiet frames.
type Endpointer struct {
	threshold     float64
	silenceFrames int // quiet frames that end an utterance
	maxFrames     int // hard cap once speech started
	prerollFrames int

	speaking bool
	quiet    int
	voiced   int
	preroll  [][]float32
	out      []float32
}

type EndpointConfig struct {
	Threshold     float64
	SilenceFrames int
	MaxFrames     int
	PrerollFrames int
}

func NewEndpointer(cfg EndpointConfig) *Endpointer {
	if cfg.SilenceFrames < 1 {
		cfg.SilenceFrames = 1
	}
	return &Endpointer{
		threshold:     cfg.Threshold,
		silenceFrames: cfg.SilenceFrames,
		maxFrames:     cfg.MaxFrames,
		prerollFrames: cfg.PrerollFrames,
	}
}

// Push feeds one frame and reports whether the utterance is complete.
func (e *Endpointer) Push(frame []float32) bool {
	loud := FrameRMS(frame) > e.threshold

	if !e.speaking {
		if !loud {
			e.keepPreroll(frame)
			return false
		}
		e.speaking = true
		for _, p := range e.preroll {
			e.out = append(e.out, p...)
		}
		e.preroll = nil
	}

	e.out = append(e.out, frame...)
	e.voiced++

	if loud {
		e.quiet = 0
	} else {
		e.quiet++
	}

	if e.quiet >= e.silenceFrames {
		return true
	}
	return e.maxFrames > 0 && e.voiced >= e.maxFrames
}

func (e *Endpointer) keepPreroll(frame []float32) {
	if e.prerollFrames <= 0 {
		return
	}
	e.preroll = append(e.preroll, append([]float32(nil), frame...))
	if len(e.preroll) > e.prerollFrames {
		e.preroll = e.preroll[1:]
	}
}

// Speaking reports whether speech onset has been seen.
func (e *Endpointer) Speaking() bool { return e.speaking }

// Samples returns the captured utterance, trailing silence included.
func (e *Endpointer) Samples() []float32 { return e.out }

func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}

// AmbientThreshold derives the speech threshold from ambient frame levels.
// The 90th percentile keeps a single click from inflating it.
func AmbientThreshold(levels []float64, multiplier, floor float64) float64 {
	if len(levels) == 0 {
		return floor
	}
	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)
	p90 := sorted[(len(sorted)*9)/10]
	if len(sorted) < 10 {
		p90 = sorted[len(sorted)-1]
	}
	return math.Max(floor, p90*multiplier)
}
