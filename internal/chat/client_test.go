package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type capturedRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   *bool     `json:"stream"`
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func newBackend(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newAPI(url string) openai.Client {
	return openai.NewClient(
		option.WithAPIKey("ollama"),
		option.WithBaseURL(url),
		option.WithMaxRetries(0),
	)
}

func TestQueryReturnsReplyVerbatim(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, completion("I don't know, I'm an AI."))
	c := NewClient(newAPI(srv.URL), Config{})

	reply := c.Query(context.Background(), "what time is it")
	if reply != "I don't know, I'm an AI." {
		t.Errorf("unexpected reply %q", reply)
	}

	if got.Model != DefaultModel {
		t.Errorf("expected model %q, got %q", DefaultModel, got.Model)
	}
	if got.Stream != nil && *got.Stream {
		t.Error("expected streaming to be disabled")
	}
	want := Transcript{
		{Role: RoleSystem, Content: DefaultSystemPrompt},
		{Role: RoleUser, Content: "what time is it"},
	}
	assertTranscript(t, Transcript(got.Messages), want)
}

func TestQuerySeedSuppressesSystemPrompt(t *testing.T) {
	srv, got := newBackend(t, http.StatusOK, completion("Noon."))
	seed := Transcript{{Role: RoleSystem, Content: "Be terse."}}
	c := NewClient(newAPI(srv.URL), Config{Model: "mistral", SystemPrompt: "ignored", Seed: seed})

	if reply := c.Query(context.Background(), "what time is it"); reply != "Noon." {
		t.Errorf("unexpected reply %q", reply)
	}

	want := Transcript{
		{Role: RoleSystem, Content: "Be terse."},
		{Role: RoleUser, Content: "what time is it"},
	}
	assertTranscript(t, Transcript(got.Messages), want)
	if got.Model != "mistral" {
		t.Errorf("expected model mistral, got %q", got.Model)
	}

	// The seed itself is never extended by a query.
	c.Query(context.Background(), "and now")
	assertTranscript(t, Transcript(got.Messages), Transcript{
		{Role: RoleSystem, Content: "Be terse."},
		{Role: RoleUser, Content: "and now"},
	})
	if len(seed) != 1 {
		t.Errorf("caller's seed was mutated: %+v", seed)
	}
}

func TestQueryFallback(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"model not found"}}`},
		{"malformed body", http.StatusOK, `not-json`},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`},
		{"empty content", http.StatusOK, completion("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBackend(t, tt.status, tt.body)
			c := NewClient(newAPI(srv.URL), Config{})

			if reply := c.Query(context.Background(), "hi"); reply != Fallback {
				t.Errorf("expected fallback, got %q", reply)
			}
		})
	}
}

func TestQueryFallbackOnUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(newAPI(url), Config{Timeout: time.Second})
	if reply := c.Query(context.Background(), "hi"); reply != "I'm sorry, I couldn't process your request." {
		t.Errorf("expected fallback, got %q", reply)
	}
}

func TestCompleteReportsError(t *testing.T) {
	srv, _ := newBackend(t, http.StatusBadGateway, `{"error":{"message":"upstream"}}`)
	c := NewClient(newAPI(srv.URL), Config{})

	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Error("expected error from Complete")
	}
}

func TestLoadTranscript(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(good, []byte(`[{"role":"system","content":"Be terse."},{"role":"assistant","content":"Ok."}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := LoadTranscript(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTranscript(t, tr, Transcript{
		{Role: RoleSystem, Content: "Be terse."},
		{Role: RoleAssistant, Content: "Ok."},
	})

	badRole := filepath.Join(dir, "role.json")
	if err := os.WriteFile(badRole, []byte(`[{"role":"tool","content":"x"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTranscript(badRole); err == nil {
		t.Error("expected error for unknown role")
	}

	badJSON := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badJSON, []byte(`{`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTranscript(badJSON); err == nil {
		t.Error("expected error for malformed json")
	}

	if _, err := LoadTranscript(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func assertTranscript(t *testing.T, got, want Transcript) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
