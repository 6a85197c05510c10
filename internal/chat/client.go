// Package chat sends a user's spoken query to an OpenAI-compatible chat
// completion endpoint (Ollama by default) and returns the reply text.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "log/slog"

	openai "github.com/openai/openai-go/v3"
)

// Fallback is spoken whenever the backend cannot produce a reply.
const Fallback = "I'm sorry, I couldn't process your request."

const DefaultModel = "llama3.2:1b"

const DefaultSystemPrompt = "You are a funny and self-deprecating AI assistant. " +
	"Each of your replies will be a maximum of 2 sentences long. " +
	"Short responses are crucial to your success as an AI assistant. " +
	"Long replies take a long time to process and ruin the user experience. " +
	"Just use any useful data and respond in short responses as an intelligent AI assistant."

type Config struct {
	Model        string
	SystemPrompt string
	Seed         Transcript    // replaces the system prompt when non-empty
	Timeout      time.Duration // per request, 0 means none
}

type Client struct {
	api openai.Client
	cfg Config
}

func NewClient(api openai.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	cfg.Seed = append(Transcript(nil), cfg.Seed...)
	return &Client{api: api, cfg: cfg}
}

// Transcript builds the request transcript for prompt: the seed when one was
// given, otherwise a single system entry, followed by one user entry.
func (c *Client) Transcript(prompt string) Transcript {
	var t Transcript
	if len(c.cfg.Seed) > 0 {
		t = make(Transcript, 0, len(c.cfg.Seed)+1)
		t = append(t, c.cfg.Seed...)
	} else {
		t = Transcript{{Role: RoleSystem, Content: c.cfg.SystemPrompt}}
	}
	return append(t, Message{Role: RoleUser, Content: prompt})
}

// Complete returns the assistant's reply verbatim.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	msgs, err := toParams(c.Transcript(prompt))
	if err != nil {
		return "", err
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    c.cfg.Model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty message content")
	}

	return content, nil
}

// Query is Complete that never fails: errors are logged and replaced by
// Fallback, so every accepted query gets a spoken answer.
func (c *Client) Query(ctx context.Context, prompt string) string {
	reply, err := c.Complete(ctx, prompt)
	if err != nil {
		log.Error("Failed to query chat model", "model", c.cfg.Model, "err", err)
		return Fallback
	}
	log.Debug("Chat reply ready", "model", c.cfg.Model, "chars", len(reply))
	return reply
}

func toParams(t Transcript) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(t))
	for i, m := range t {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return out, nil
}
