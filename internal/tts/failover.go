package tts

import (
	"context"
	"fmt"
	"sync/atomic"
)

// FailoverSynthesizer prefers the primary backend and switches to the
// fallback when the primary fails. Once the fallback succeeds it stays
// active until it fails; then the primary is retried.
type FailoverSynthesizer struct {
	primary        Synthesizer
	fallback       Synthesizer
	fallbackActive atomic.Bool
}

func NewFailoverSynthesizer(primary, fallback Synthesizer) *FailoverSynthesizer {
	return &FailoverSynthesizer{primary: primary, fallback: fallback}
}

func (s *FailoverSynthesizer) Synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, error) {
	art, _, err := s.synthesize(ctx, text, base, voice)
	return art, err
}

// synthesize also returns the backend that produced the artifact.
func (s *FailoverSynthesizer) synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, Synthesizer, error) {
	if s.fallbackActive.Load() {
		art, fbErr := s.fallback.Synthesize(ctx, text, base, voice)
		if fbErr == nil {
			return art, s.fallback, nil
		}
		// Fallback failed after being active; try primary again.
		art, prErr := s.primary.Synthesize(ctx, text, base, voice)
		if prErr == nil {
			s.fallbackActive.Store(false)
			return art, s.primary, nil
		}
		return Artifact{}, nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	art, prErr := s.primary.Synthesize(ctx, text, base, voice)
	if prErr == nil {
		return art, s.primary, nil
	}
	if ctx.Err() != nil {
		return Artifact{}, nil, prErr
	}
	art, fbErr := s.fallback.Synthesize(ctx, text, base, voice)
	if fbErr != nil {
		return Artifact{}, nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	s.fallbackActive.Store(true)
	return art, s.fallback, nil
}

// Pinned returns a Synthesizer for one material. Its first call fails over
// like Synthesize; every later call goes to the backend that answered it,
// so a material never mixes voices or encodings.
func (s *FailoverSynthesizer) Pinned() Synthesizer {
	return &pinnedSynthesizer{parent: s}
}

type pinnedSynthesizer struct {
	parent *FailoverSynthesizer
	chosen Synthesizer
}

func (p *pinnedSynthesizer) Synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, error) {
	if p.chosen != nil {
		return p.chosen.Synthesize(ctx, text, base, voice)
	}
	art, chosen, err := p.parent.synthesize(ctx, text, base, voice)
	if err != nil {
		return Artifact{}, err
	}
	p.chosen = chosen
	return art, nil
}

// FallbackActive reports whether requests currently go to the fallback.
func (s *FailoverSynthesizer) FallbackActive() bool {
	return s.fallbackActive.Load()
}
