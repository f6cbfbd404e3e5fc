package evaluate

import (
	"context"
	"fmt"

	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/reliability"
)

// ErrDeclined is returned by a scorer that is not configured to run.
var ErrDeclined = fmt.Errorf("scorer declined: %w", reliability.ErrUnconfigured)

type Request struct {
	Reference     string
	Transcription string
	// Baseline is the character similarity score, always computed.
	Baseline float64
}

// Scorer produces an evaluation or declines with an error, letting the
// next scorer in the chain try.
type Scorer interface {
	Name() string
	Score(ctx context.Context, req Request) (model.Evaluation, error)
}

// BasicScorer derives an evaluation from the baseline and word set
// differences. It never fails.
type BasicScorer struct{}

func (BasicScorer) Name() string { return "basic" }

func (BasicScorer) Score(_ context.Context, req Request) (model.Evaluation, error) {
	return Basic(req.Reference, req.Transcription, req.Baseline), nil
}

func Basic(reference, transcription string, baseline float64) model.Evaluation {
	ref := wordSet(reference)
	got := wordSet(transcription)
	missing := difference(ref, got)
	added := difference(got, ref)

	return model.Evaluation{
		AccuracyScore:      baseline,
		MissingWords:       head(missing, model.MaxWordList),
		AddedWords:         head(added, model.MaxWordList),
		PronunciationNotes: "LLM evaluation not available",
		OverallFeedback:    fmt.Sprintf("Accuracy: %s%%. Keep practicing!", formatScore(baseline)),
		Strengths:          []string{},
		AreasToImprove:     head(missing, 3),
	}
}
