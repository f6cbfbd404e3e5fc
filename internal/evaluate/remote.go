package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/reliability"
)

const DefaultTimeout = 60 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &reliability.StatusError{Provider: provider, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", reliability.ErrInvalidResponse, provider, err)
	}
	return nil
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaScorer asks a local Ollama server for a JSON evaluation.
type OllamaScorer struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaScorer(cfg OllamaConfig) *OllamaScorer {
	m := strings.TrimSpace(cfg.Model)
	if m == "" {
		m = "llama3.2"
	}
	return &OllamaScorer{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:   m,
		client:  newHTTPClient(cfg.Timeout),
	}
}

func (s *OllamaScorer) Name() string { return "ollama" }

func (s *OllamaScorer) Score(ctx context.Context, req Request) (model.Evaluation, error) {
	if s.baseURL == "" {
		return model.Evaluation{}, ErrDeclined
	}
	var out struct {
		Response string `json:"response"`
	}
	err := postJSON(ctx, s.client, "ollama", s.baseURL+"/api/generate", nil, map[string]any{
		"model":  s.model,
		"prompt": Prompt(req.Reference, req.Transcription),
		"stream": false,
		"format": "json",
	}, &out)
	if err != nil {
		return model.Evaluation{}, err
	}
	return ParseEvaluation(out.Response)
}

type ClaudeConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// ClaudeScorer uses the Anthropic Messages API.
type ClaudeScorer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClaudeScorer(cfg ClaudeConfig) *ClaudeScorer {
	m := strings.TrimSpace(cfg.Model)
	if m == "" {
		m = "claude-3-haiku-20240307"
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &ClaudeScorer{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   m,
		baseURL: base,
		client:  newHTTPClient(cfg.Timeout),
	}
}

func (s *ClaudeScorer) Name() string { return "claude" }

func (s *ClaudeScorer) Score(ctx context.Context, req Request) (model.Evaluation, error) {
	if s.apiKey == "" {
		return model.Evaluation{}, ErrDeclined
	}
	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	err := postJSON(ctx, s.client, "claude", s.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         s.apiKey,
		"anthropic-version": "2023-06-01",
	}, map[string]any{
		"model":      s.model,
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": Prompt(req.Reference, req.Transcription)},
		},
	}, &out)
	if err != nil {
		return model.Evaluation{}, err
	}
	if len(out.Content) == 0 {
		return model.Evaluation{}, fmt.Errorf("%w: claude returned no content", reliability.ErrInvalidResponse)
	}
	return ParseEvaluation(out.Content[0].Text)
}
