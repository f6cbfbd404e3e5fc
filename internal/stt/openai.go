package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ent0n29/shadowing/internal/reliability"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIModel calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type OpenAIModel struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	// Endpoints carry their own /v1 prefix.
	baseURL := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"), "/v1")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIModel{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Minute},
	}, nil
}

type openAIVerbose struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (m *OpenAIModel) Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"model":           m.model,
		"response_format": "verbose_json",
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" {
		fields["language"] = lang
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return Result{}, err
		}
	}
	if opts.WordTimestamps {
		if err := mw.WriteField("timestamp_granularities[]", "segment"); err != nil {
			return Result{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	endpoint := m.baseURL + "/v1/audio/transcriptions"
	if opts.Task == TaskTranslate {
		endpoint = m.baseURL + "/v1/audio/translations"
	}
	// Single attempt: retrying is left to the caller.
	var out openAIVerbose
	if err := m.post(ctx, endpoint, mw.FormDataContentType(), body.Bytes(), &out); err != nil {
		return Result{}, err
	}
	res := Result{Language: out.Language, Duration: out.Duration}
	for _, s := range out.Segments {
		res.Segments = append(res.Segments, Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
	if len(res.Segments) == 0 && strings.TrimSpace(out.Text) != "" {
		res.Segments = []Segment{{Text: out.Text, Start: 0, End: out.Duration}}
	}
	return res, nil
}

func (m *OpenAIModel) post(ctx context.Context, endpoint, contentType string, payload []byte, out *openAIVerbose) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &reliability.StatusError{Provider: "openai", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", reliability.ErrInvalidResponse, err)
	}
	return nil
}
