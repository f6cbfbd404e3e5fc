package stt

import (
	"context"
	"sync"
)

const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

type Options struct {
	Language string
	Task     string
	// WordTimestamps asks for finer segment boundaries where the engine supports it.
	WordTimestamps bool
}

// Segment is one recognized span; times are seconds from the start of the audio.
type Segment struct {
	Text  string
	Start float64
	End   float64
}

type Result struct {
	Language string
	Duration float64
	Segments []Segment
}

// Model is a speech-to-text engine.
type Model interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error)
}

type lazyModel struct {
	get func() (Model, error)
}

// Lazy returns a Model that calls load on first use and shares the loaded
// model between all callers. A failed load is not retried.
func Lazy(load func() (Model, error)) Model {
	return &lazyModel{get: sync.OnceValues(load)}
}

func (l *lazyModel) Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error) {
	m, err := l.get()
	if err != nil {
		return Result{}, err
	}
	return m.Transcribe(ctx, audioPath, opts)
}
