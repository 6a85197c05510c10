// Package stt holds the speech-to-text backends. Every backend takes mono
// 16 kHz float PCM in [-1, 1] and returns the recognized text.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type WhisperConfig struct {
	Language string   // "" or "auto" lets the model detect it
	Threads  int      // <=0 uses every CPU
	Phrases  []string // activation phrases, used to bias decoding
}

// Whisper recognizes speech locally with a whisper.cpp model.
type Whisper struct {
	model    whisper.Model
	language string
	threads  uint
	prompt   string
}

func NewWhisper(modelPath string, cfg WhisperConfig) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Whisper{
		model:    m,
		language: language(cfg.Language),
		threads:  threads(cfg.Threads),
		prompt:   PhrasePrompt(cfg.Phrases),
	}, nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

// Recognize decodes pcm and joins the segment texts with single spaces.
func (w *Whisper) Recognize(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("no audio samples")
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("set language %q: %w", w.language, err)
	}
	wctx.SetThreads(w.threads)
	if w.prompt != "" {
		wctx.SetInitialPrompt(w.prompt)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// PhrasePrompt turns the activation phrases into an initial prompt so the
// model prefers their spelling ("llama" over "lama").
func PhrasePrompt(phrases []string) string {
	var out []string
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, ", ") + "."
}

func language(l string) string {
	if l == "" {
		return "auto"
	}
	return l
}

func threads(n int) uint {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return uint(n)
}
