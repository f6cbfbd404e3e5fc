package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/shadowing/internal/audio"
	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/segment"
	"github.com/ent0n29/shadowing/internal/tts"
)

type DocumentRequest struct {
	Title string
	Path  string
}

type DocumentConfig struct {
	Extractor   Extractor
	Timeline    Timeline
	Combiner    Combiner
	Store       Saver
	Dir         string
	MaxSegments int
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// DocumentIngestor turns a text document into a synthesized material.
type DocumentIngestor struct {
	extractor   Extractor
	timeline    Timeline
	combiner    Combiner
	store       Saver
	dir         string
	maxSegments int
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewDocumentIngestor(cfg DocumentConfig) *DocumentIngestor {
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = FileExtractor{}
	}
	combiner := cfg.Combiner
	if combiner == nil {
		combiner = audio.Combiner{}
	}
	return &DocumentIngestor{
		extractor:   extractor,
		timeline:    cfg.Timeline,
		combiner:    combiner,
		store:       cfg.Store,
		dir:         cfg.Dir,
		maxSegments: cfg.MaxSegments,
		metrics:     cfg.Metrics,
		logger:      defaultLogger(cfg.Logger),
		now:         time.Now,
	}
}

func (d *DocumentIngestor) Ingest(ctx context.Context, req DocumentRequest) (saved model.Material, err error) {
	r := &run{kind: model.SourceDocument, metrics: d.metrics, logger: d.logger}
	defer func() { r.finish(err) }()

	var text string
	if err := r.stage(StageExtract, func() error {
		var err error
		text, err = d.extractor.Extract(ctx, req.Path)
		return err
	}); err != nil {
		return model.Material{}, err
	}

	var texts []string
	if err := r.stage(StageSegment, func() error {
		texts = segment.Split(text, d.maxSegments)
		if len(texts) == 0 {
			return ErrNoSegments
		}
		return nil
	}); err != nil {
		return model.Material{}, err
	}

	var timed []tts.TimedSegment
	if err := r.stage(StageSynthesize, func() error {
		var err error
		timed, err = d.timeline.Build(ctx, texts)
		return err
	}); err != nil {
		return model.Material{}, err
	}
	paths := make([]string, len(timed))
	for i, t := range timed {
		paths[i] = t.AudioPath
	}
	r.track(paths...)

	audioPath := paths[0]
	if err := r.stage(StageCombine, func() error {
		out := filepath.Join(d.dir, "combined_"+strconv.FormatInt(d.now().UnixNano(), 10)+filepath.Ext(paths[0]))
		combined, err := d.combiner.Combine(ctx, paths, out)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			d.logger.Warn("combine segment audio failed, using first segment", "err", err)
			return nil
		}
		r.track(combined.Path)
		audioPath = combined.Path
		return nil
	}); err != nil {
		return model.Material{}, err
	}

	m := model.Material{
		Title:      documentTitle(req),
		SourceKind: model.SourceDocument,
		AudioPath:  audioPath,
		Duration:   tts.Total(timed).Seconds(),
	}
	segs := make([]model.Segment, len(timed))
	for i, t := range timed {
		segs[i] = model.Segment{
			Text:      t.Text,
			StartTime: t.Start.Seconds(),
			EndTime:   t.End.Seconds(),
			AudioPath: t.AudioPath,
		}
	}

	if err := r.stage(StagePersist, func() error {
		var err error
		saved, err = d.store.SaveMaterial(ctx, m, segs)
		return err
	}); err != nil {
		return model.Material{}, err
	}
	d.logger.Info("document ingested",
		"material_id", saved.ID,
		"segments", len(segs),
		"duration_s", fmt.Sprintf("%.2f", saved.Duration),
	)
	return saved, nil
}

func documentTitle(req DocumentRequest) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	base := filepath.Base(req.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
