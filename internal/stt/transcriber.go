package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ent0n29/shadowing/internal/observability"
)

var ErrTranscription = errors.New("transcription failed")

// Error is a transcription failure for one audio file.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrTranscription, e.Err} }

// Text is the flat transcript of a recording.
type Text struct {
	Text     string
	Language string
	Duration float64
}

type TranscriberConfig struct {
	Workers  int
	Language string
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Transcriber runs a shared Model on a bounded number of workers.
type Transcriber struct {
	model    Model
	sem      *semaphore.Weighted
	language string
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewTranscriber(model Model, cfg TranscriberConfig) *Transcriber {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		model:    model,
		sem:      semaphore.NewWeighted(int64(workers)),
		language: strings.TrimSpace(cfg.Language),
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// TranscribeSegments returns chronological, non-overlapping segments with
// trimmed, non-empty text.
func (t *Transcriber) TranscribeSegments(ctx context.Context, path string) ([]Segment, error) {
	res, err := t.run(ctx, "segments", path, Options{
		Language:       t.language,
		Task:           TaskTranscribe,
		WordTimestamps: true,
	})
	if err != nil {
		return nil, err
	}
	return normalizeSegments(res.Segments), nil
}

// TranscribeText returns the whole recording as one string.
func (t *Transcriber) TranscribeText(ctx context.Context, path string) (Text, error) {
	res, err := t.run(ctx, "text", path, Options{
		Language: t.language,
		Task:     TaskTranscribe,
	})
	if err != nil {
		return Text{}, err
	}
	parts := make([]string, 0, len(res.Segments))
	for _, s := range normalizeSegments(res.Segments) {
		parts = append(parts, s.Text)
	}
	return Text{
		Text:     strings.Join(parts, " "),
		Language: res.Language,
		Duration: res.Duration,
	}, nil
}

type runResult struct {
	res Result
	err error
}

// run waits for a worker slot, then invokes the model on a context detached
// from the caller. A caller that gives up stops waiting; the model call
// still runs to completion and frees its slot afterwards.
func (t *Transcriber) run(ctx context.Context, mode, path string, opts Options) (Result, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return Result{}, &Error{Op: mode, Path: path, Err: err}
	}

	done := make(chan runResult, 1)
	start := time.Now()
	go func() {
		defer t.sem.Release(1)
		res, err := t.model.Transcribe(context.WithoutCancel(ctx), path, opts)
		t.metrics.ObserveTranscription(mode, time.Since(start))
		done <- runResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.logger.Warn("transcription failed", "mode", mode, "path", path, "err", r.err)
			return Result{}, &Error{Op: mode, Path: path, Err: r.err}
		}
		return r.res, nil
	case <-ctx.Done():
		return Result{}, &Error{Op: mode, Path: path, Err: ctx.Err()}
	}
}

func normalizeSegments(in []Segment) []Segment {
	out := make([]Segment, 0, len(in))
	var prevEnd float64
	for _, s := range in {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		start, end := s.Start, s.End
		if start < prevEnd {
			start = prevEnd
		}
		if end < start {
			end = start
		}
		out = append(out, Segment{Text: text, Start: start, End: end})
		prevEnd = end
	}
	return out
}
