package speech

import (
	"context"
	"fmt"
	"io"
	"os"

	openai "github.com/openai/openai-go/v3"
)

const (
	DefaultCloudVoice = "alloy"
	DefaultCloudModel = openai.SpeechModelTTS1
)

// Cloud synthesizes with OpenAI text-to-speech. Needs network access.
type Cloud struct {
	client openai.Client
	model  string
	voice  string
}

func NewCloud(client openai.Client, model, voice string) *Cloud {
	if model == "" {
		model = DefaultCloudModel
	}
	if voice == "" {
		voice = DefaultCloudVoice
	}
	return &Cloud{client: client, model: model, voice: voice}
}

func (c *Cloud) Name() string { return "cloud" }

func (c *Cloud) Synthesize(ctx context.Context, text, path string) error {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          c.model,
		Voice:          openai.AudioSpeechNewParamsVoice(c.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	return writeArtifact(path, resp.Body)
}

func writeArtifact(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
