// Package config turns command-line flags, the env file and environment
// variables into the settings the assistant is wired from.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	log "log/slog"

	"llamavox/internal/chat"
	"llamavox/internal/speech"
)

const (
	DefaultBaseURL      = "http://localhost:11434/v1"
	DefaultSocket       = "/tmp/llamavox.sock"
	DefaultWhisperModel = "models/ggml-base.en.bin"

	STTWhisper = "whisper"
	STTOpenAI  = "openai"
)

// Timings that are not exposed as flags.
const (
	Pause            = time.Second
	Settle           = 500 * time.Millisecond
	RecognizeTimeout = 30 * time.Second
	ChatTimeout      = 60 * time.Second
)

var DefaultActivationPhrases = []string{"hello llama", "hey llama"}

type Config struct {
	Model             string
	SystemPrompt      string
	MessagesFile      string
	ActivationPhrases []string

	EnvFile  string
	LogLevel string

	BaseURL string
	APIKey  string
	Proxy   string

	STT            string
	WhisperModel   string
	WhisperThreads int
	Language       string

	TTS        string
	Voice      string
	SpeechRate int
	Artifact   string

	Inputs []string
	Duck   bool
	Chime  string
	Notify bool
	Socket string
}

// Parse reads args (without the program name). The env file named by --env is
// loaded before environment overrides are applied; a missing env file is not
// an error.
func Parse(args []string) (Config, error) {
	var c Config

	fs := cli.NewFlagSet("llamavox", cli.ContinueOnError)
	fs.StringVarP(&c.Model, "model", "m", chat.DefaultModel, "Chat model identifier")
	fs.StringVarP(&c.SystemPrompt, "system-prompt", "s", chat.DefaultSystemPrompt, "System prompt")
	fs.StringVarP(&c.MessagesFile, "messages-file", "f", "", "JSON file with the seed transcript")
	fs.StringArrayVarP(&c.ActivationPhrases, "activation-phrase", "a", nil, "Activation phrase (repeatable)")
	fs.StringVarP(&c.EnvFile, "env", "e", ".env", "Env file path")
	fs.StringVarP(&c.LogLevel, "log", "l", "info", "Log level")
	fs.StringVar(&c.BaseURL, "base-url", DefaultBaseURL, "OpenAI-compatible chat endpoint")
	fs.StringVarP(&c.Proxy, "proxy", "p", "", "Socks proxy address for cloud requests")
	fs.StringVar(&c.STT, "stt", STTWhisper, "Speech recognizer: whisper or openai")
	fs.StringVar(&c.WhisperModel, "whisper-model", DefaultWhisperModel, "whisper.cpp model path")
	fs.IntVar(&c.WhisperThreads, "whisper-threads", 0, "whisper.cpp threads, 0 uses every CPU")
	fs.StringVar(&c.Language, "language", "en", "Recognition language")
	fs.StringVar(&c.TTS, "tts", speech.EngineCloud, "Speech engine: cloud, piper or espeak")
	fs.StringVar(&c.Voice, "voice", "", "Engine voice, piper model or espeak voice")
	fs.IntVar(&c.SpeechRate, "speech-rate", 0, "espeak words per minute, 0 keeps the engine default")
	fs.StringVar(&c.Artifact, "artifact", speech.DefaultArtifact(), "Synthesized audio file")
	fs.StringSliceVar(&c.Inputs, "input", nil, "Replay these audio files instead of the microphone")
	fs.BoolVar(&c.Duck, "duck", false, "Lower other audio streams while speaking")
	fs.StringVar(&c.Chime, "chime", "", "Sound played when the assistant starts listening")
	fs.BoolVar(&c.Notify, "notify", false, "Desktop notification when the assistant starts listening")
	fs.StringVar(&c.Socket, "socket", DefaultSocket, "Control socket path")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(c.EnvFile); err != nil {
		log.Debug("Env file not loaded", "path", c.EnvFile, "err", err)
	}

	if v := os.Getenv("LLAMAVOX_BASE_URL"); v != "" && !fs.Changed("base-url") {
		c.BaseURL = v
	}
	if v := os.Getenv("LLAMAVOX_MODEL"); v != "" && !fs.Changed("model") {
		c.Model = v
	}
	c.APIKey = os.Getenv("OPENAI_API_KEY")

	// Without a key the cloud voice cannot work; espeak needs nothing.
	if c.APIKey == "" && !fs.Changed("tts") {
		c.TTS = speech.EngineEspeak
		log.Info("OPENAI_API_KEY not set, speaking with espeak")
	}

	c.ActivationPhrases = NormalizePhrases(c.ActivationPhrases)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("empty model")
	}
	if c.BaseURL == "" {
		return errors.New("empty base url")
	}
	if c.STT != STTWhisper && c.STT != STTOpenAI {
		return fmt.Errorf("unknown recognizer %q (want whisper or openai)", c.STT)
	}
	if !slices.Contains([]string{speech.EngineCloud, speech.EnginePiper, speech.EngineEspeak}, c.TTS) {
		return fmt.Errorf("unknown tts engine %q (want cloud, piper or espeak)", c.TTS)
	}
	if c.STT == STTOpenAI && c.APIKey == "" {
		return errors.New("OPENAI_API_KEY not set, required by --stt openai")
	}
	if c.TTS == speech.EngineCloud && c.APIKey == "" {
		return errors.New("OPENAI_API_KEY not set, required by --tts cloud")
	}
	if len(c.ActivationPhrases) == 0 {
		return errors.New("no activation phrases")
	}
	return nil
}

// NormalizePhrases lower-cases, trims and de-duplicates phrases. An empty
// result falls back to DefaultActivationPhrases.
func NormalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if p == "" || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return slices.Clone(DefaultActivationPhrases)
	}
	return out
}

// LoadSeed reads the seed transcript. Any problem is logged and the
// assistant continues with the default system prompt.
func LoadSeed(path string) chat.Transcript {
	if path == "" {
		return nil
	}
	t, err := chat.LoadTranscript(path)
	if err != nil {
		log.Warn("Ignoring messages file", "path", path, "err", err)
		return nil
	}
	log.Info("Loaded seed transcript", "path", path, "messages", len(t))
	return t
}
