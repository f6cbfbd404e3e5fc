package evaluate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/reliability"
)

type GeminiConfig struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
	Timeout         time.Duration
}

// GeminiScorer uses Vertex AI Gemini with a JSON response type.
type GeminiScorer struct {
	generate func(ctx context.Context, prompt string) (string, error)
	close    func() error
	timeout  time.Duration
}

// NewGeminiScorer connects to Vertex AI when a project is configured.
// Without one the scorer declines every request.
func NewGeminiScorer(ctx context.Context, cfg GeminiConfig) (*GeminiScorer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return &GeminiScorer{timeout: timeout}, nil
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us-central1"
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = "gemini-2.0-flash-001"
	}

	var opts []option.ClientOption
	if f := strings.TrimSpace(cfg.CredentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	client, err := genai.NewClient(ctx, project, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	gm := client.GenerativeModel(modelName)
	gm.ResponseMIMEType = "application/json"

	return &GeminiScorer{
		timeout: timeout,
		close:   client.Close,
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return "", err
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				return "", fmt.Errorf("%w: gemini returned no candidates", reliability.ErrInvalidResponse)
			}
			var b strings.Builder
			for _, part := range resp.Candidates[0].Content.Parts {
				if t, ok := part.(genai.Text); ok {
					b.WriteString(string(t))
				}
			}
			return b.String(), nil
		},
	}, nil
}

func (s *GeminiScorer) Name() string { return "gemini" }

func (s *GeminiScorer) Score(ctx context.Context, req Request) (model.Evaluation, error) {
	if s.generate == nil {
		return model.Evaluation{}, ErrDeclined
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.generate(ctx, Prompt(req.Reference, req.Transcription))
	if err != nil {
		return model.Evaluation{}, err
	}
	return ParseEvaluation(text)
}

func (s *GeminiScorer) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
