package stt

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/openai/openai-go/v3"

	"llamavox/pkg/audioconv"
)

// OpenAI recognizes speech with the hosted transcription endpoint.
type OpenAI struct {
	client   openai.Client
	model    string
	language string
}

func NewOpenAI(client openai.Client, model, language string) *OpenAI {
	if model == "" {
		model = openai.AudioModelWhisper1
	}
	return &OpenAI{client: client, model: model, language: language}
}

func (o *OpenAI) Recognize(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("no audio samples provided")
	}

	f, err := audioconv.WriteTempWAV(pcm, audioconv.SampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, "utterance.wav", "audio/wav"),
		Model: o.model,
	}
	if o.language != "" && o.language != "auto" {
		params.Language = openai.String(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}
