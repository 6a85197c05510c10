package audio

import (
	"context"

	log "log/slog"

	"llamavox/pkg/audioconv"
)

// FileSource replays recorded utterances in order, one per Capture. Once the
// list is exhausted Capture blocks until ctx is done, like a silent room.
type FileSource struct {
	paths  []string
	next   int
	decode func(ctx context.Context, path string, opt audioconv.Options) ([]float32, error)
}

func NewFileSource(paths []string) *FileSource {
	return &FileSource{
		paths:  append([]string(nil), paths...),
		decode: audioconv.DecodeFile,
	}
}

func (s *FileSource) Calibrate(context.Context) error { return nil }

func (s *FileSource) Capture(ctx context.Context) ([]float32, error) {
	if s.next >= len(s.paths) {
		log.Info("Input files exhausted, idling")
		<-ctx.Done()
		return nil, ctx.Err()
	}

	path := s.paths[s.next]
	s.next++

	log.Debug("Replaying utterance", "file", path)

	return s.decode(ctx, path, audioconv.Options{MaxSamples: 30 * audioconv.SampleRate})
}
