// Package transcribe turns one spoken utterance into text: it captures audio
// from a Source and hands it to a Recognizer.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	log "log/slog"
)

var (
	// ErrUnintelligible means audio was captured but yielded no text.
	ErrUnintelligible = errors.New("speech was unintelligible")
	// ErrServiceUnavailable wraps any recognizer backend failure.
	ErrServiceUnavailable = errors.New("speech recognition service unavailable")
)

type Source interface {
	Calibrate(ctx context.Context) error
	Capture(ctx context.Context) ([]float32, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, pcm []float32) (string, error)
}

type Transcriber struct {
	src     Source
	rec     Recognizer
	timeout time.Duration
}

// New builds a Transcriber; timeout bounds each recognition call, 0 means none.
func New(src Source, rec Recognizer, timeout time.Duration) *Transcriber {
	return &Transcriber{src: src, rec: rec, timeout: timeout}
}

// Calibrate must run once before the first Listen.
func (t *Transcriber) Calibrate(ctx context.Context) error {
	log.Info("Calibrating microphone for ambient noise")
	if err := t.src.Calibrate(ctx); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	return nil
}

// Listen captures one utterance and recognizes it.
func (t *Transcriber) Listen(ctx context.Context) (string, error) {
	pcm, err := t.src.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	if len(pcm) == 0 {
		return "", ErrUnintelligible
	}

	log.Debug("Captured utterance", "samples", len(pcm))

	rctx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	raw, err := t.rec.Recognize(rctx, pcm)
	if err != nil {
		// Shutdown, not a backend failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	text := Clean(raw)
	if !strings.ContainsFunc(text, isWordRune) {
		return "", ErrUnintelligible
	}
	return text, nil
}

// Whisper marks non-speech as [BLANK_AUDIO], (music), *coughs* and the like.
var annotationRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// Clean drops non-speech annotations and collapses whitespace.
func Clean(s string) string {
	s = annotationRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
