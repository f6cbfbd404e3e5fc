package tts

import (
	"context"
	"errors"
	"testing"
)

type stubSynth struct {
	calls int
	err   error
	name  string
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, base string, _ Voice) (Artifact, error) {
	s.calls++
	if s.err != nil {
		return Artifact{}, s.err
	}
	return Artifact{Path: base + ".mp3", Format: FormatMP3, Provider: s.name}, nil
}

func TestFailoverSwitchesToFallbackAndSticks(t *testing.T) {
	ctx := context.Background()
	primary := &stubSynth{err: errors.New("primary unavailable"), name: "primary"}
	fallback := &stubSynth{name: "fallback"}
	s := NewFailoverSynthesizer(primary, fallback)

	for i := 0; i < 2; i++ {
		art, err := s.Synthesize(ctx, "hello there", "out", Voice{})
		if err != nil {
			t.Fatalf("Synthesize() unexpected error = %v", err)
		}
		if art.Provider != "fallback" {
			t.Fatalf("Provider = %q, want fallback", art.Provider)
		}
	}
	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
	if fallback.calls != 2 {
		t.Fatalf("fallback calls = %d, want 2", fallback.calls)
	}
	if !s.FallbackActive() {
		t.Fatalf("FallbackActive() = false, want true")
	}
}

func TestFailoverReturnsToPrimaryWhenFallbackFails(t *testing.T) {
	ctx := context.Background()
	primary := &stubSynth{err: errors.New("down"), name: "primary"}
	fallback := &stubSynth{name: "fallback"}
	s := NewFailoverSynthesizer(primary, fallback)

	if _, err := s.Synthesize(ctx, "first", "a", Voice{}); err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	primary.err = nil
	fallback.err = errors.New("fallback quota")

	art, err := s.Synthesize(ctx, "second", "b", Voice{})
	if err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	if art.Provider != "primary" {
		t.Fatalf("Provider = %q, want primary", art.Provider)
	}
	if s.FallbackActive() {
		t.Fatalf("FallbackActive() = true after primary recovered")
	}
}

func TestFailoverBothFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")
	s := NewFailoverSynthesizer(&stubSynth{err: primaryErr}, &stubSynth{err: fallbackErr})

	_, err := s.Synthesize(context.Background(), "text", "c", Voice{})
	if err == nil {
		t.Fatalf("Synthesize() expected error")
	}
	if !errors.Is(err, fallbackErr) {
		t.Fatalf("Synthesize() error = %v, want wrapped fallback error", err)
	}
}

// flakySynth succeeds until call failFrom, then fails.
type flakySynth struct {
	stubSynth
	failFrom int
}

func (s *flakySynth) Synthesize(ctx context.Context, text, base string, voice Voice) (Artifact, error) {
	if s.calls >= s.failFrom {
		s.calls++
		return Artifact{}, errors.New("primary went away")
	}
	return s.stubSynth.Synthesize(ctx, text, base, voice)
}

func TestPinnedKeepsFirstBackend(t *testing.T) {
	ctx := context.Background()
	primary := &flakySynth{stubSynth: stubSynth{name: "primary"}, failFrom: 1}
	fallback := &stubSynth{name: "fallback"}
	s := NewFailoverSynthesizer(primary, fallback)

	pinned := s.Pinned()
	art, err := pinned.Synthesize(ctx, "first", "a", Voice{})
	if err != nil || art.Provider != "primary" {
		t.Fatalf("first Synthesize() = %+v, %v", art, err)
	}
	if _, err := pinned.Synthesize(ctx, "second", "b", Voice{}); err == nil {
		t.Fatalf("pinned Synthesize() expected primary failure, got switch to fallback")
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback calls = %d, want 0 while pinned to primary", fallback.calls)
	}

	// A fresh pin fails over as usual.
	art, err = s.Pinned().Synthesize(ctx, "third", "c", Voice{})
	if err != nil || art.Provider != "fallback" {
		t.Fatalf("new pin Synthesize() = %+v, %v", art, err)
	}
}

func TestPinnedChoosesFallbackWhenPrimaryDown(t *testing.T) {
	ctx := context.Background()
	primary := &stubSynth{err: errors.New("primary unavailable"), name: "primary"}
	fallback := &stubSynth{name: "fallback"}
	pinned := NewFailoverSynthesizer(primary, fallback).Pinned()

	for i := 0; i < 3; i++ {
		art, err := pinned.Synthesize(ctx, "text", "out", Voice{})
		if err != nil || art.Provider != "fallback" {
			t.Fatalf("Synthesize() #%d = %+v, %v", i, art, err)
		}
	}
	if primary.calls != 1 {
		t.Fatalf("primary calls = %d, want 1", primary.calls)
	}
}
