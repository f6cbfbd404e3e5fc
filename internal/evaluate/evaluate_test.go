package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/reliability"
)

const (
	foxReference     = "The quick brown fox jumps over the lazy dog."
	foxTranscription = "The quick brown fox jumped over the lazy dog"
)

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100.0, Similarity("Hello world", "Hello world"))
	assert.Equal(t, 100.0, Similarity("  Hello World ", "hello world"), "case and outer whitespace are ignored")
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.Equal(t, 0.0, Similarity("Some reference text", ""))
	// 2 * 42 matching characters over 88 total.
	assert.Equal(t, 95.5, Similarity(foxReference, foxTranscription))
}

func TestBasicEvaluation(t *testing.T) {
	ev := Basic(foxReference, foxTranscription, 95.5)
	assert.Equal(t, 95.5, ev.AccuracyScore)
	assert.Equal(t, []string{"jumps", "dog."}, ev.MissingWords)
	assert.Equal(t, []string{"jumped", "dog"}, ev.AddedWords)
	assert.Equal(t, "LLM evaluation not available", ev.PronunciationNotes)
	assert.Equal(t, "Accuracy: 95.5%. Keep practicing!", ev.OverallFeedback)
	assert.Empty(t, ev.Strengths)
	assert.NotNil(t, ev.Strengths)
	assert.Equal(t, []string{"jumps", "dog."}, ev.AreasToImprove)
}

func TestBasicEvaluationEmptyTranscription(t *testing.T) {
	ref := "One two three four five six seven"
	ev := Basic(ref, "", Similarity(ref, ""))
	assert.Equal(t, 0.0, ev.AccuracyScore)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, ev.MissingWords)
	assert.Empty(t, ev.AddedWords)
	assert.Equal(t, []string{"one", "two", "three"}, ev.AreasToImprove)
	assert.Equal(t, "Accuracy: 0.0%. Keep practicing!", ev.OverallFeedback)
	require.NoError(t, ev.Validate())
}

func TestBasicEvaluationDeduplicatesWords(t *testing.T) {
	ev := Basic("the the cat sat", "the dog dog sat", 50)
	assert.Equal(t, []string{"cat"}, ev.MissingWords)
	assert.Equal(t, []string{"dog"}, ev.AddedWords)
}

func TestParseEvaluation(t *testing.T) {
	raw := "```json\n" + `{
		"accuracy_score": 87.46,
		"missing_words": ["a","b","c","d","e","f","g"],
		"added_words": null,
		"pronunciation_notes": " watch the -ed endings ",
		"overall_feedback": "Nice work.",
		"strengths": ["rhythm"]
	}` + "\n```"
	ev, err := ParseEvaluation(raw)
	require.NoError(t, err)
	assert.Equal(t, 87.5, ev.AccuracyScore)
	assert.Len(t, ev.MissingWords, model.MaxWordList)
	assert.Equal(t, []string{}, ev.AddedWords)
	assert.Equal(t, "watch the -ed endings", ev.PronunciationNotes)
	assert.Equal(t, []string{}, ev.AreasToImprove)
}

func TestParseEvaluationAcceptsSurroundingProse(t *testing.T) {
	ev, err := ParseEvaluation(`Sure! Here it is: {"accuracy_score": "72%", "overall_feedback": "Good."} Hope that helps.`)
	require.NoError(t, err)
	assert.Equal(t, 72.0, ev.AccuracyScore)
}

func TestParseEvaluationRejects(t *testing.T) {
	cases := map[string]string{
		"no object":    "I cannot evaluate this.",
		"bad json":     `{"accuracy_score": 80, "overall_feedback": }`,
		"no score":     `{"overall_feedback": "ok"}`,
		"no feedback":  `{"accuracy_score": 80, "overall_feedback": "  "}`,
		"out of range": `{"accuracy_score": 140, "overall_feedback": "ok"}`,
		"negative":     `{"accuracy_score": -1, "overall_feedback": "ok"}`,
		"non-numeric":  `{"accuracy_score": "high", "overall_feedback": "ok"}`,
		"nan":          `{"accuracy_score": "NaN", "overall_feedback": "ok"}`,
		"infinite":     `{"accuracy_score": "Infinity", "overall_feedback": "ok"}`,
	}
	for name, raw := range cases {
		_, err := ParseEvaluation(raw)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, reliability.ErrInvalidResponse, name)
	}
}

func TestPromptEmbedsTexts(t *testing.T) {
	p := Prompt("Original words.", "spoken words")
	assert.Contains(t, p, "Original text: Original words.")
	assert.Contains(t, p, "User's transcription: spoken words")
	assert.Contains(t, p, `"accuracy_score": <0-100>`)
	assert.NotContains(t, p, "%!")
}

func ollamaServer(t *testing.T, reply func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reply(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaScorer(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, body map[string]any) {
		if body["format"] != "json" || body["stream"] != false || body["model"] != "llama3.2" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": `{"accuracy_score": 91, "missing_words": ["jumps"], "added_words": ["jumped"], "pronunciation_notes": "past tense", "overall_feedback": "Great job!", "strengths": ["fluency"], "areas_to_improve": ["verb endings"]}`,
		})
	})

	ev, err := NewOllamaScorer(OllamaConfig{BaseURL: srv.URL}).Score(context.Background(), Request{Reference: foxReference, Transcription: foxTranscription})
	require.NoError(t, err)
	assert.Equal(t, 91.0, ev.AccuracyScore)
	assert.Equal(t, "Great job!", ev.OverallFeedback)
	assert.Equal(t, []string{"verb endings"}, ev.AreasToImprove)
}

func TestClaudeScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") != "2023-06-01" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "claude-3-haiku-20240307" || body.MaxTokens != 1024 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": `{"accuracy_score": 88.04, "overall_feedback": "Solid."}`}},
		})
	}))
	defer srv.Close()

	ev, err := NewClaudeScorer(ClaudeConfig{APIKey: "key", BaseURL: srv.URL}).Score(context.Background(), Request{Reference: "a", Transcription: "b"})
	require.NoError(t, err)
	assert.Equal(t, 88.0, ev.AccuracyScore)
}

func TestUnconfiguredScorersDecline(t *testing.T) {
	ctx := context.Background()
	_, err := NewClaudeScorer(ClaudeConfig{}).Score(ctx, Request{})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, reliability.ReasonUnconfigured, reliability.ClassifyError(err))

	_, err = NewOllamaScorer(OllamaConfig{}).Score(ctx, Request{})
	assert.ErrorIs(t, err, ErrDeclined)

	gem, err := NewGeminiScorer(ctx, GeminiConfig{})
	require.NoError(t, err)
	_, err = gem.Score(ctx, Request{})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.NoError(t, gem.Close())
}

func TestGeminiScorerParsesReply(t *testing.T) {
	var prompt string
	s := &GeminiScorer{
		timeout: time.Second,
		generate: func(_ context.Context, p string) (string, error) {
			prompt = p
			return `{"accuracy_score": 64, "overall_feedback": "Keep going."}`, nil
		},
	}
	ev, err := s.Score(context.Background(), Request{Reference: "ref text", Transcription: "said text"})
	require.NoError(t, err)
	assert.Equal(t, 64.0, ev.AccuracyScore)
	assert.True(t, strings.Contains(prompt, "ref text") && strings.Contains(prompt, "said text"))
}

// The evaluation must degrade to the basic result when the remote provider
// cannot be reached.
func TestEvaluatorFallsBackWhenProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	unreachable := srv.URL
	srv.Close()

	metrics := observability.NewMetrics("eval_test")
	ev := NewEvaluator([]Scorer{NewOllamaScorer(OllamaConfig{BaseURL: unreachable, Timeout: 2 * time.Second})}, Config{Metrics: metrics})

	res := ev.Evaluate(context.Background(), foxReference, foxTranscription)
	assert.Equal(t, "basic", res.Scorer)
	assert.Equal(t, res.Baseline, res.Evaluation.AccuracyScore)
	assert.Greater(t, res.Evaluation.AccuracyScore, 90.0)
	assert.Contains(t, res.Evaluation.MissingWords, "jumps")
	assert.Contains(t, res.Evaluation.AddedWords, "jumped")
	assert.Contains(t, res.Evaluation.OverallFeedback, formatScore(res.Evaluation.AccuracyScore))
	assert.Equal(t, res.Evaluation, Basic(foxReference, foxTranscription, res.Baseline))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScorerDeclines.WithLabelValues("ollama", reliability.ReasonUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Evaluations.WithLabelValues("basic")))
}

func TestEvaluatorFallsBackOnMalformedReply(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, _ map[string]any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "not json at all"})
	})
	ev := NewEvaluator([]Scorer{NewOllamaScorer(OllamaConfig{BaseURL: srv.URL})}, Config{})
	res := ev.Evaluate(context.Background(), "Hello world", "Hello world")
	assert.Equal(t, "basic", res.Scorer)
	assert.Equal(t, 100.0, res.Evaluation.AccuracyScore)
}

func TestEvaluatorDeclinesNaNScore(t *testing.T) {
	srv := ollamaServer(t, func(w http.ResponseWriter, _ map[string]any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"accuracy_score": "NaN", "overall_feedback": "ok"}`})
	})
	metrics := observability.NewMetrics("eval_nan_test")
	ev := NewEvaluator([]Scorer{NewOllamaScorer(OllamaConfig{BaseURL: srv.URL})}, Config{Metrics: metrics})

	res := ev.Evaluate(context.Background(), "Hello world", "Hello world")
	assert.Equal(t, "basic", res.Scorer)
	assert.Equal(t, 100.0, res.Evaluation.AccuracyScore)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScorerDeclines.WithLabelValues("ollama", reliability.ReasonInvalidResponse)))

	_, err := json.Marshal(res.Evaluation)
	require.NoError(t, err)
}

type panickingScorer struct{}

func (panickingScorer) Name() string { return "panicky" }

func (panickingScorer) Score(context.Context, Request) (model.Evaluation, error) {
	panic("sdk exploded")
}

func TestEvaluatorRecoversScorerPanic(t *testing.T) {
	metrics := observability.NewMetrics("eval_panic_test")
	ev := NewEvaluator([]Scorer{panickingScorer{}}, Config{Metrics: metrics})

	var res Result
	require.NotPanics(t, func() {
		res = ev.Evaluate(context.Background(), foxReference, foxTranscription)
	})
	assert.Equal(t, "basic", res.Scorer)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScorerDeclines.WithLabelValues("panicky", reliability.ReasonUnavailable)))
}

func TestEvaluatorDeclinesOutOfRangeResult(t *testing.T) {
	bad := &stubScorer{name: "remote", ev: model.Evaluation{AccuracyScore: 250, OverallFeedback: "too good"}}
	res := NewEvaluator([]Scorer{bad}, Config{}).Evaluate(context.Background(), "alpha beta", "alpha beta")
	assert.Equal(t, "basic", res.Scorer)
	assert.Equal(t, 1, bad.calls)
}

func TestEvaluatorFallsBackOnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := ollamaServer(t, func(w http.ResponseWriter, _ map[string]any) {
		<-release
	})
	defer close(release)

	ev := NewEvaluator([]Scorer{NewOllamaScorer(OllamaConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})}, Config{})
	res := ev.Evaluate(context.Background(), foxReference, foxTranscription)
	assert.Equal(t, "basic", res.Scorer)
}

type stubScorer struct {
	name  string
	ev    model.Evaluation
	err   error
	calls int
}

func (s *stubScorer) Name() string { return s.name }

func (s *stubScorer) Score(context.Context, Request) (model.Evaluation, error) {
	s.calls++
	return s.ev, s.err
}

func TestEvaluatorPriorityOrder(t *testing.T) {
	first := &stubScorer{name: "first", err: errors.New("boom")}
	second := &stubScorer{name: "second", ev: model.Evaluation{AccuracyScore: 42, OverallFeedback: "remote"}}
	third := &stubScorer{name: "third"}
	ev := NewEvaluator([]Scorer{first, second, third, BasicScorer{}}, Config{})

	assert.Equal(t, []string{"first", "second", "third", "basic"}, ev.Scorers())

	res := ev.Evaluate(context.Background(), "alpha beta", "alpha")
	assert.Equal(t, "second", res.Scorer)
	assert.Equal(t, 42.0, res.Evaluation.AccuracyScore, "remote score wins over the baseline")
	assert.NotEqual(t, res.Baseline, res.Evaluation.AccuracyScore)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, third.calls)
}

func TestEvaluatorWithoutScorersUsesBasic(t *testing.T) {
	res := NewEvaluator(nil, Config{}).Evaluate(context.Background(), "same text here", "same text here")
	assert.Equal(t, "basic", res.Scorer)
	assert.Equal(t, 100.0, res.Evaluation.AccuracyScore)
	assert.Empty(t, res.Evaluation.MissingWords)
	assert.Equal(t, "Accuracy: 100.0%. Keep practicing!", res.Evaluation.OverallFeedback)
}
