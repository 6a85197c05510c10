package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"llamavox/internal/assistant"
	"llamavox/internal/audio"
	"llamavox/internal/chat"
	"llamavox/internal/config"
	"llamavox/internal/ipc"
	"llamavox/internal/notify"
	"llamavox/internal/proxy"
	"llamavox/internal/speech"
	"llamavox/internal/transcribe"
	"llamavox/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Error("Bad arguments", "err", err)
		os.Exit(2)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.LogLevel],
	})))

	log.Info("Booting up", "model", cfg.Model, "base_url", cfg.BaseURL, "stt", cfg.STT, "tts", cfg.TTS)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, config.ChatTimeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	// Cloud speech services talk to OpenAI itself; chat goes to --base-url.
	cloud := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	)

	chatKey := cfg.APIKey
	if chatKey == "" {
		// Ollama ignores the key but the client insists on one.
		chatKey = "ollama"
	}
	chatAPI := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(chatKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	)

	log.Debug("Loaded API clients")

	var src transcribe.Source
	if len(cfg.Inputs) > 0 {
		src = audio.NewFileSource(cfg.Inputs)
		log.Info("Replaying input files", "count", len(cfg.Inputs))
	} else {
		rec := audio.NewRecorder(audio.DefaultRecorderConfig())
		if err := rec.Init(); err != nil {
			log.Error("Failed to init audio", "err", err)
			os.Exit(1)
		}
		defer rec.Close()
		src = rec
	}

	log.Debug("Loaded audio source")

	var recognizer transcribe.Recognizer
	switch cfg.STT {
	case config.STTOpenAI:
		recognizer = stt.NewOpenAI(cloud, "", cfg.Language)
	default:
		w, err := stt.NewWhisper(cfg.WhisperModel, stt.WhisperConfig{
			Language: cfg.Language,
			Threads:  cfg.WhisperThreads,
			Phrases:  cfg.ActivationPhrases,
		})
		if err != nil {
			log.Error("Failed to init whisper", "model", cfg.WhisperModel, "err", err)
			os.Exit(1)
		}
		defer w.Close()
		recognizer = w
	}

	log.Debug("Loaded recognizer")

	engine, err := speech.NewEngine(cfg.TTS, cfg.Voice, cfg.SpeechRate, cloud)
	if err != nil {
		log.Error("Failed to init speech engine", "err", err)
		os.Exit(1)
	}

	player := speech.NewSpeakerPlayer()
	speechCfg := speech.Config{Artifact: cfg.Artifact, Settle: config.Settle}
	if cfg.Duck {
		speechCfg.Ducker = audio.NewDucker([]string{"llamavox"}, 10)
	}
	synth := speech.New(engine, player, speechCfg)

	bot := chat.NewClient(chatAPI, chat.Config{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Seed:         config.LoadSeed(cfg.MessagesFile),
		Timeout:      config.ChatTimeout,
	})

	ctrlCfg := assistant.Config{
		ActivationPhrases: cfg.ActivationPhrases,
		Pause:             config.Pause,
	}
	if n := notify.New(player, cfg.Chime, cfg.Notify); n.Enabled() {
		ctrlCfg.Notifier = n
	}

	ctrl := assistant.New(
		transcribe.New(src, recognizer, config.RecognizeTimeout),
		synth,
		bot,
		ctrlCfg,
	)

	srv, err := ipc.StartServer(cfg.Socket, func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case ipc.CmdTrigger:
			ctrl.Trigger()
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	})
	if err != nil {
		// The assistant still works by voice.
		log.Warn("Control socket disabled", "path", cfg.Socket, "err", err)
	} else {
		defer srv.Close()
	}

	log.Info("Boot up - successful", "artifact", synth.Artifact())

	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Assistant stopped", "err", err)
		os.Exit(1)
	}

	log.Info("Shutting down")
}
