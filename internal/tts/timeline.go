package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ent0n29/shadowing/internal/audio"
	"github.com/ent0n29/shadowing/internal/observability"
)

// TimedSegment is one synthesized segment placed on the material timeline.
type TimedSegment struct {
	Text      string
	AudioPath string
	Format    Format
	Start     time.Duration
	End       time.Duration
	Duration  time.Duration
	// Approximate is set when the duration was estimated from file size.
	Approximate bool
}

// SegmentError reports the segment at which a timeline build stopped.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

type TimelineConfig struct {
	Dir     string
	Voice   Voice
	Prober  audio.Prober
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// pinner is implemented by synthesizers that can hold one backend for the
// length of a build.
type pinner interface {
	Pinned() Synthesizer
}

// Timeline synthesizes segments one after another and places them
// back to back starting at zero.
type Timeline struct {
	synth   Synthesizer
	dir     string
	voice   Voice
	prober  audio.Prober
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewTimeline(synth Synthesizer, cfg TimelineConfig) *Timeline {
	prober := cfg.Prober
	if prober == nil {
		prober = audio.FileProber{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Timeline{
		synth:   synth,
		dir:     cfg.Dir,
		voice:   cfg.Voice,
		prober:  prober,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (t *Timeline) Build(ctx context.Context, texts []string) ([]TimedSegment, error) {
	return t.BuildWithProgress(ctx, texts, nil)
}

// BuildWithProgress is Build with a callback invoked after each segment.
// On failure every artifact written by this build is removed.
func (t *Timeline) BuildWithProgress(ctx context.Context, texts []string, progress func(done, total int)) ([]TimedSegment, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if t.dir != "" {
		if err := os.MkdirAll(t.dir, 0o755); err != nil {
			return nil, err
		}
	}

	synth := t.synth
	if p, ok := synth.(pinner); ok {
		synth = p.Pinned()
	}

	stamp := strconv.FormatInt(t.now().UnixNano(), 10)
	out := make([]TimedSegment, 0, len(texts))
	var cursor time.Duration

	abort := func(i int, err error) ([]TimedSegment, error) {
		for _, seg := range out {
			if rmErr := os.Remove(seg.AudioPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				t.logger.Warn("remove partial tts artifact", "path", seg.AudioPath, "err", rmErr)
			}
		}
		return nil, &SegmentError{Index: i, Err: err}
	}

	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return abort(i, err)
		}
		base := filepath.Join(t.dir, fmt.Sprintf("tts_%s_%04d", stamp, i))
		art, err := synth.Synthesize(ctx, text, base, t.voice)
		if err != nil {
			return abort(i, fmt.Errorf("synthesize: %w", err))
		}
		m, err := t.prober.Duration(art.Path)
		if err != nil {
			_ = os.Remove(art.Path)
			return abort(i, fmt.Errorf("measure: %w", err))
		}
		t.metrics.ObserveSynthesis(art.Provider)

		out = append(out, TimedSegment{
			Text:        text,
			AudioPath:   art.Path,
			Format:      art.Format,
			Start:       cursor,
			End:         cursor + m.Duration,
			Duration:    m.Duration,
			Approximate: m.Approximate,
		})
		cursor += m.Duration
		if progress != nil {
			progress(i+1, len(texts))
		}
	}
	return out, nil
}

// Total returns the summed duration of the segments.
func Total(segs []TimedSegment) time.Duration {
	var d time.Duration
	for _, s := range segs {
		d += s.Duration
	}
	return d
}
