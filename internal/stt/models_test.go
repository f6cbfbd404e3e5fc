package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ent0n29/shadowing/internal/reliability"
)

func TestParseWhisperJSON(t *testing.T) {
	raw := []byte(`{
		"systeminfo": "AVX = 1",
		"result": {"language": "en"},
		"transcription": [
			{"timestamps": {"from": "00:00:00,000", "to": "00:00:02,340"}, "offsets": {"from": 0, "to": 2340}, "text": " Hello there."},
			{"timestamps": {"from": "00:00:02,340", "to": "00:00:05,000"}, "offsets": {"from": 2340, "to": 5000}, "text": " How are you?"}
		]
	}`)
	res, err := parseWhisperJSON(raw)
	if err != nil {
		t.Fatalf("parseWhisperJSON() error = %v", err)
	}
	if res.Language != "en" {
		t.Fatalf("Language = %q, want en", res.Language)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(res.Segments))
	}
	if s := res.Segments[1]; s.Start != 2.34 || s.End != 5 || s.Text != " How are you?" {
		t.Fatalf("Segments[1] = %+v", s)
	}
}

func TestParseWhisperJSONRejectsGarbage(t *testing.T) {
	if _, err := parseWhisperJSON([]byte(`not json`)); err == nil {
		t.Fatalf("parseWhisperJSON() expected error")
	}
	if _, err := parseWhisperJSON([]byte(`{"result": {}}`)); err == nil {
		t.Fatalf("parseWhisperJSON() expected error when transcription is missing")
	}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.webm")
	if err := os.WriteFile(path, []byte("fake audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAIModelVerboseJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("response_format") != "verbose_json" || r.FormValue("language") != "en" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		if string(b) != "fake audio" {
			http.Error(w, "bad file", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"language": "english",
			"duration": 3.5,
			"text":     "Hello there. How are you?",
			"segments": []map[string]any{
				{"start": 0.0, "end": 1.5, "text": " Hello there."},
				{"start": 1.5, "end": 3.5, "text": " How are you?"},
			},
		})
	}))
	defer srv.Close()

	m, err := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIModel() error = %v", err)
	}
	res, err := m.Transcribe(context.Background(), writeAudio(t), Options{Language: "en", Task: TaskTranscribe})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Duration != 3.5 || res.Language != "english" || len(res.Segments) != 2 {
		t.Fatalf("Transcribe() = %+v", res)
	}
}

func TestOpenAIModelStatusErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m, err := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIModel() error = %v", err)
	}
	_, err = m.Transcribe(context.Background(), writeAudio(t), Options{})
	if got := reliability.ClassifyError(err); got != reliability.ReasonRateLimited {
		t.Fatalf("ClassifyError() = %q, want rate_limited (err = %v)", got, err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want a single attempt", got)
	}
}

func TestOpenAIModelAcceptsBaseURLWithVersion(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"language":"english","duration":1.0,"text":"hello there"}`))
	}))
	defer srv.Close()

	for _, base := range []string{srv.URL, srv.URL + "/", srv.URL + "/v1", srv.URL + "/v1/"} {
		m, err := NewOpenAIModel(OpenAIConfig{APIKey: "sk-test", BaseURL: base})
		if err != nil {
			t.Fatalf("NewOpenAIModel(%q) error = %v", base, err)
		}
		res, err := m.Transcribe(context.Background(), writeAudio(t), Options{})
		if err != nil {
			t.Fatalf("Transcribe(%q) error = %v", base, err)
		}
		if path != "/v1/audio/transcriptions" {
			t.Fatalf("base %q: request path = %q, want /v1/audio/transcriptions", base, path)
		}
		if len(res.Segments) != 1 || res.Segments[0].Text != "hello there" {
			t.Fatalf("Transcribe(%q) = %+v", base, res)
		}
	}
}

func TestNewOpenAIModelRequiresKey(t *testing.T) {
	if _, err := NewOpenAIModel(OpenAIConfig{}); err == nil {
		t.Fatalf("NewOpenAIModel() expected error without api key")
	}
}
