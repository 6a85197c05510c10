// Package speech synthesizes reply text into a single on-disk audio artifact
// and plays it back to completion.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "log/slog"
)

// Stages reported in Error.
const (
	StageRemove     = "remove"
	StageSynthesize = "synthesize"
	StagePlay       = "play"
)

// Error is returned by Speak for a failure at any stage.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string { return "speak: " + e.Stage + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Engine writes the speech for text to path.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text, path string) error
}

// Player plays an audio file and returns once playback has finished.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Ducker quiets other audio while we speak.
type Ducker interface {
	DuckOthers(ctx context.Context, factor float64, duration time.Duration) error
	UnduckOthers(ctx context.Context, duration time.Duration) error
}

type Config struct {
	Artifact string        // audio file path, reused every turn
	Settle   time.Duration // pause after removing and after writing the artifact
	Ducker   Ducker        // optional
}

func DefaultArtifact() string {
	return filepath.Join(os.TempDir(), "audio.wav")
}

type Synthesizer struct {
	engine Engine
	player Player
	cfg    Config
}

func New(engine Engine, player Player, cfg Config) *Synthesizer {
	if cfg.Artifact == "" {
		cfg.Artifact = DefaultArtifact()
	}
	return &Synthesizer{engine: engine, player: player, cfg: cfg}
}

func (s *Synthesizer) Artifact() string { return s.cfg.Artifact }

// Speak synthesizes text into the artifact and plays it. Any failure,
// including a panic in the engine or audio stack, comes back as *Error and
// is logged here; nothing escapes as a panic.
func (s *Synthesizer) Speak(ctx context.Context, text string) (err error) {
	stage := StageRemove
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			log.Error("Failed to speak", "engine", s.engine.Name(), "stage", stage, "err", err)
		}
	}()

	if err := s.removeArtifact(); err != nil {
		return &Error{Stage: stage, Err: err}
	}

	stage = StageSynthesize
	if strings.TrimSpace(text) == "" {
		return &Error{Stage: stage, Err: errors.New("empty text")}
	}
	if err := s.engine.Synthesize(ctx, text, s.cfg.Artifact); err != nil {
		return &Error{Stage: stage, Err: err}
	}
	if err := sleep(ctx, s.cfg.Settle); err != nil {
		return &Error{Stage: stage, Err: err}
	}

	stage = StagePlay
	log.Info("Speaking...")

	if s.cfg.Ducker != nil {
		if err := s.cfg.Ducker.DuckOthers(ctx, 0.3, 150*time.Millisecond); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			if err := s.cfg.Ducker.UnduckOthers(context.WithoutCancel(ctx), 300*time.Millisecond); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	if err := s.player.Play(ctx, s.cfg.Artifact); err != nil {
		return &Error{Stage: stage, Err: err}
	}

	log.Info("Done speaking")
	return nil
}

func (s *Synthesizer) removeArtifact() error {
	if _, err := os.Stat(s.cfg.Artifact); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Remove(s.cfg.Artifact); err != nil {
		return err
	}
	// Give players holding the old file time to let go of it.
	return sleep(context.Background(), s.cfg.Settle)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
