package evaluate

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/ent0n29/shadowing/internal/model"
)

// CachedScorer remembers successful evaluations of a remote scorer so that
// re-evaluating an identical attempt returns the same feedback without
// another provider call. Declines are never cached.
type CachedScorer struct {
	inner Scorer
	cache *ristretto.Cache[string, model.Evaluation]
}

// NewCachedScorer wraps inner with a cache holding up to maxEntries results.
// Each entry costs one unit regardless of its size.
func NewCachedScorer(inner Scorer, maxEntries int64) (*CachedScorer, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxEntries)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, model.Evaluation]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create evaluation cache: %w", err)
	}
	return &CachedScorer{inner: inner, cache: c}, nil
}

func (s *CachedScorer) Name() string { return s.inner.Name() }

func (s *CachedScorer) Score(ctx context.Context, req Request) (model.Evaluation, error) {
	key := req.Reference + "\x00" + req.Transcription
	if ev, ok := s.cache.Get(key); ok {
		return cloneEvaluation(ev), nil
	}
	ev, err := s.inner.Score(ctx, req)
	if err != nil {
		return model.Evaluation{}, err
	}
	s.cache.Set(key, cloneEvaluation(ev), 1)
	s.cache.Wait()
	return ev, nil
}

func (s *CachedScorer) Close() error {
	s.cache.Close()
	return nil
}

func cloneEvaluation(ev model.Evaluation) model.Evaluation {
	ev.MissingWords = slices.Clone(ev.MissingWords)
	ev.AddedWords = slices.Clone(ev.AddedWords)
	ev.Strengths = slices.Clone(ev.Strengths)
	ev.AreasToImprove = slices.Clone(ev.AreasToImprove)
	return ev
}
