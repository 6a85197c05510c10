package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type fakeEngine struct {
	err     error
	panics  bool
	texts   []string
	content string
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Synthesize(_ context.Context, text, path string) error {
	if f.panics {
		panic("engine blew up")
	}
	f.texts = append(f.texts, text)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte(f.content), 0o644)
}

type fakePlayer struct {
	err    error
	played []string
}

func (f *fakePlayer) Play(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.played = append(f.played, string(data))
	return f.err
}

type fakeDucker struct {
	ducked, unducked int
}

func (f *fakeDucker) DuckOthers(context.Context, float64, time.Duration) error {
	f.ducked++
	return nil
}

func (f *fakeDucker) UnduckOthers(context.Context, time.Duration) error {
	f.unducked++
	return errors.New("pactl missing")
}

func newSynth(t *testing.T, e Engine, p Player) *Synthesizer {
	t.Helper()
	return New(e, p, Config{Artifact: filepath.Join(t.TempDir(), "audio.wav")})
}

func TestSpeakPlaysArtifact(t *testing.T) {
	engine := &fakeEngine{content: "RIFF-1"}
	player := &fakePlayer{}
	s := newSynth(t, engine, player)

	if err := s.Speak(context.Background(), "Hello!"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(engine.texts) != 1 || engine.texts[0] != "Hello!" {
		t.Errorf("unexpected synthesized texts %v", engine.texts)
	}
	if len(player.played) != 1 || player.played[0] != "RIFF-1" {
		t.Errorf("unexpected playback %v", player.played)
	}

	if _, err := os.Stat(s.Artifact()); err != nil {
		t.Errorf("artifact should stay on disk after playback: %v", err)
	}
}

func TestSpeakReplacesPreviousArtifact(t *testing.T) {
	engine := &fakeEngine{content: "first"}
	player := &fakePlayer{}
	s := newSynth(t, engine, player)

	if err := s.Speak(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}

	engine.err = errors.New("offline")
	if err := s.Speak(context.Background(), "two"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(s.Artifact()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale artifact must be removed before synthesis, stat err: %v", err)
	}
	if len(player.played) != 1 {
		t.Errorf("failed synthesis must not play, got %v", player.played)
	}
}

func TestSpeakNeverPanics(t *testing.T) {
	tests := []struct {
		name   string
		engine *fakeEngine
		player *fakePlayer
		text   string
		stage  string
	}{
		{"empty text", &fakeEngine{}, &fakePlayer{}, "  ", StageSynthesize},
		{"engine error", &fakeEngine{err: errors.New("no network")}, &fakePlayer{}, "hi", StageSynthesize},
		{"engine panic", &fakeEngine{panics: true}, &fakePlayer{}, "hi", StageSynthesize},
		{"no audio device", &fakeEngine{content: "x"}, &fakePlayer{err: errors.New("no default output device")}, "hi", StagePlay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSynth(t, tt.engine, tt.player)

			err := s.Speak(context.Background(), tt.text)

			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if serr.Stage != tt.stage {
				t.Errorf("expected stage %q, got %q", tt.stage, serr.Stage)
			}
		})
	}
}

func TestSpeakDucksAroundPlayback(t *testing.T) {
	d := &fakeDucker{}
	s := New(&fakeEngine{content: "x"}, &fakePlayer{}, Config{
		Artifact: filepath.Join(t.TempDir(), "audio.wav"),
		Ducker:   d,
	})

	// A failing restore is only logged.
	if err := s.Speak(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ducked != 1 || d.unducked != 1 {
		t.Errorf("expected one duck and one restore, got %d/%d", d.ducked, d.unducked)
	}
}

func TestCloudEngineWritesArtifact(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFfake"))
	}))
	defer srv.Close()

	client := openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	engine := NewCloud(client, "", "")
	path := filepath.Join(t.TempDir(), "audio.wav")

	if err := engine.Synthesize(context.Background(), "hello", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "RIFFfake" {
		t.Errorf("unexpected artifact %q", data)
	}
	for _, want := range []string{`"voice":"alloy"`, `"response_format":"wav"`, `"input":"hello"`} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("request body %s missing %s", gotBody, want)
		}
	}
}

func TestCloudEngineBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	client := openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if err := NewCloud(client, "", "").Synthesize(context.Background(), "hello", filepath.Join(t.TempDir(), "a.wav")); err == nil {
		t.Error("expected error")
	}
}

func TestLocalEnginesMissingBinary(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	path := filepath.Join(t.TempDir(), "a.wav")

	p := NewPiper(missing, "")
	if p.Model != DefaultPiperModel {
		t.Errorf("expected default model, got %q", p.Model)
	}
	if err := p.Synthesize(context.Background(), "hi", path); err == nil {
		t.Error("expected piper error")
	}

	e := NewEspeak("", 0)
	e.ExecPath = missing
	if err := e.Synthesize(context.Background(), "hi", path); err == nil {
		t.Error("expected espeak error")
	}
}

func TestNewEngine(t *testing.T) {
	client := openai.NewClient(option.WithAPIKey("test"))

	for name, want := range map[string]string{"": "cloud", "cloud": "cloud", "piper": "piper", "espeak": "espeak"} {
		e, err := NewEngine(name, "", 0, client)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", name, err)
		}
		if e.Name() != want {
			t.Errorf("%q: expected %s, got %s", name, want, e.Name())
		}
	}

	if _, err := NewEngine("gtts", "", 0, client); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestEspeakArgs(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	bin := filepath.Join(dir, "espeak-ng")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsFile + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		rate int
		want string
	}{
		{"default rate", 0, "-v\nen-us\n-w\nOUT\n--\n-hi there\n"},
		{"custom rate", 150, "-v\nen-us\n-w\nOUT\n-s\n150\n--\n-hi there\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(EngineEspeak, "en-us", tt.rate, openai.NewClient(option.WithAPIKey("test")))
			if err != nil {
				t.Fatal(err)
			}
			espeak := e.(*Espeak)
			espeak.ExecPath = bin

			out := filepath.Join(dir, "a.wav")
			if err := espeak.Synthesize(context.Background(), "-hi there", out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := os.ReadFile(argsFile)
			if err != nil {
				t.Fatal(err)
			}
			if want := strings.ReplaceAll(tt.want, "OUT", out); string(got) != want {
				t.Errorf("expected args %q, got %q", want, got)
			}
		})
	}
}
