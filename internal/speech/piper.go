package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const DefaultPiperModel = "en_US-lessac-medium.onnx"

// Piper synthesizes offline with a piper neural voice model.
type Piper struct {
	ExecPath string
	Model    string
}

func NewPiper(execPath, model string) *Piper {
	if execPath == "" {
		execPath = "piper"
	}
	if model == "" {
		model = DefaultPiperModel
	}
	return &Piper{ExecPath: execPath, Model: model}
}

func (p *Piper) Name() string { return "piper" }

// Synthesize pipes text to piper, which writes a wav to path.
func (p *Piper) Synthesize(ctx context.Context, text, path string) error {
	cmd := exec.CommandContext(ctx, p.ExecPath, "--model", p.Model, "--output_file", path)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
