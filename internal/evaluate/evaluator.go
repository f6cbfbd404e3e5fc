package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/reliability"
)

type Result struct {
	Evaluation model.Evaluation
	Scorer     string
	Baseline   float64
}

type Config struct {
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Evaluator tries scorers in order and always ends with BasicScorer.
type Evaluator struct {
	scorers []Scorer
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewEvaluator(scorers []Scorer, cfg Config) *Evaluator {
	chain := make([]Scorer, 0, len(scorers)+1)
	for _, s := range scorers {
		if s == nil {
			continue
		}
		if _, ok := s.(BasicScorer); ok {
			continue
		}
		chain = append(chain, s)
	}
	chain = append(chain, BasicScorer{})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{scorers: chain, metrics: cfg.Metrics, logger: logger}
}

// Scorers returns the chain names in priority order.
func (e *Evaluator) Scorers() []string {
	names := make([]string, 0, len(e.scorers))
	for _, s := range e.scorers {
		names = append(names, s.Name())
	}
	return names
}

func (e *Evaluator) Evaluate(ctx context.Context, reference, transcription string) Result {
	req := Request{
		Reference:     reference,
		Transcription: transcription,
		Baseline:      Similarity(reference, transcription),
	}
	start := time.Now()
	for _, s := range e.scorers {
		ev, err := tryScorer(ctx, s, req)
		if err != nil {
			reason := reliability.ClassifyError(err)
			e.metrics.ObserveScorerDecline(s.Name(), reason)
			e.logger.Warn("scorer declined", "scorer", s.Name(), "reason", reason, "err", err)
			continue
		}
		e.metrics.ObserveEvaluation(s.Name(), time.Since(start))
		return Result{Evaluation: ev, Scorer: s.Name(), Baseline: req.Baseline}
	}
	// Unreachable: the chain ends with BasicScorer.
	return Result{Evaluation: Basic(reference, transcription, req.Baseline), Scorer: "basic", Baseline: req.Baseline}
}

// tryScorer runs one scorer, turning a panic or an out-of-range result into a
// decline so the chain moves on.
func tryScorer(ctx context.Context, s Scorer, req Request) (ev model.Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = model.Evaluation{}, fmt.Errorf("scorer %s panicked: %v", s.Name(), r)
		}
	}()
	ev, err = s.Score(ctx, req)
	if err != nil {
		return model.Evaluation{}, err
	}
	if verr := ev.Validate(); verr != nil {
		return model.Evaluation{}, fmt.Errorf("%w: %v", reliability.ErrInvalidResponse, verr)
	}
	return ev, nil
}
