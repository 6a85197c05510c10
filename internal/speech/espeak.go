package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const DefaultEspeakVoice = "en"

// Espeak synthesizes offline with espeak-ng. Robotic, but has no model files
// to download.
type Espeak struct {
	ExecPath string
	Voice    string
	Rate     int // words per minute, 0 keeps espeak's default
}

func NewEspeak(voice string, rate int) *Espeak {
	if voice == "" {
		voice = DefaultEspeakVoice
	}
	return &Espeak{ExecPath: "espeak-ng", Voice: voice, Rate: rate}
}

func (e *Espeak) Name() string { return "espeak" }

func (e *Espeak) Synthesize(ctx context.Context, text, path string) error {
	args := []string{"-v", e.Voice, "-w", path}
	if e.Rate > 0 {
		args = append(args, "-s", fmt.Sprint(e.Rate))
	}
	// "--" keeps a reply starting with "-" from being read as a flag.
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, e.ExecPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("espeak-ng: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
