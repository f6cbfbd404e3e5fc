package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ent0n29/shadowing/internal/audio"
	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/stt"
	"github.com/ent0n29/shadowing/internal/tts"
)

// Stage names one step of an ingestion.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageSegment    Stage = "segment"
	StageSynthesize Stage = "synthesize"
	StageCombine    Stage = "combine"
	StageDownload   Stage = "download"
	StageTranscribe Stage = "transcribe"
	StagePersist    Stage = "persist"
)

// StageError reports the stage at which an ingestion failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrNoSegments is returned when the source yields nothing to practice.
var ErrNoSegments = errors.New("no segments produced")

var errNoDownloader = errors.New("media download is not configured")

// Timeline turns segment texts into timed audio artifacts.
type Timeline interface {
	Build(ctx context.Context, texts []string) ([]tts.TimedSegment, error)
}

// Combiner joins ordered artifacts into one.
type Combiner interface {
	Combine(ctx context.Context, paths []string, outputPath string) (audio.Combined, error)
}

// SegmentTranscriber yields timed transcript segments for a recording.
type SegmentTranscriber interface {
	TranscribeSegments(ctx context.Context, path string) ([]stt.Segment, error)
}

// Saver persists a material with its segments in one step.
type Saver interface {
	SaveMaterial(ctx context.Context, m model.Material, segments []model.Segment) (model.Material, error)
}

// run tracks one ingestion for metrics and cleanup.
type run struct {
	kind    model.SourceKind
	metrics *observability.Metrics
	logger  *slog.Logger
	created []string
}

func (r *run) stage(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	r.metrics.ObserveIngestStage(string(r.kind), string(stage), time.Since(start))
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// track registers a file to remove if the ingestion fails.
func (r *run) track(paths ...string) {
	for _, p := range paths {
		if p != "" {
			r.created = append(r.created, p)
		}
	}
}

func (r *run) finish(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		for _, p := range r.created {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				r.logger.Warn("remove ingest artifact", "path", p, "err", rmErr)
			}
		}
		r.logger.Error("ingestion failed", "kind", r.kind, "err", err)
	}
	r.metrics.ObserveIngestion(string(r.kind), outcome)
}

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
