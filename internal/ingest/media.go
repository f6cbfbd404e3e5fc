package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ent0n29/shadowing/internal/audio"
	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/stt"
)

type FileRequest struct {
	Title string
	Path  string
}

type MediaConfig struct {
	Downloader  Downloader
	Transcriber SegmentTranscriber
	Prober      audio.Prober
	Store       Saver
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// MediaIngestor segments recorded speech by transcribing it. Segments share
// the material's audio track and are located by offset.
type MediaIngestor struct {
	downloader  Downloader
	transcriber SegmentTranscriber
	prober      audio.Prober
	store       Saver
	metrics     *observability.Metrics
	logger      *slog.Logger
}

func NewMediaIngestor(cfg MediaConfig) *MediaIngestor {
	prober := cfg.Prober
	if prober == nil {
		prober = audio.FileProber{}
	}
	return &MediaIngestor{
		downloader:  cfg.Downloader,
		transcriber: cfg.Transcriber,
		prober:      prober,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		logger:      defaultLogger(cfg.Logger),
	}
}

// Ingest downloads url and builds a material from its transcript.
func (m *MediaIngestor) Ingest(ctx context.Context, url string) (saved model.Material, err error) {
	r := &run{kind: model.SourceDownloadedMedia, metrics: m.metrics, logger: m.logger}
	defer func() { r.finish(err) }()

	var dl Download
	if err := r.stage(StageDownload, func() error {
		if m.downloader == nil {
			return errNoDownloader
		}
		var err error
		dl, err = m.downloader.Download(ctx, url)
		return err
	}); err != nil {
		return model.Material{}, err
	}
	r.track(dl.AudioPath, dl.ThumbnailPath)

	duration := dl.Duration
	if duration <= 0 {
		if meas, err := m.prober.Duration(dl.AudioPath); err == nil {
			duration = meas.Seconds()
		}
	}
	title := strings.TrimSpace(dl.Title)
	if title == "" {
		title = url
	}
	return m.transcribeAndSave(ctx, r, model.Material{
		Title:         title,
		SourceKind:    model.SourceDownloadedMedia,
		SourceURL:     url,
		AudioPath:     dl.AudioPath,
		Duration:      duration,
		ThumbnailPath: dl.ThumbnailPath,
	})
}

// IngestFile builds a material from an audio file already on disk. The file
// is removed if ingestion fails.
func (m *MediaIngestor) IngestFile(ctx context.Context, req FileRequest) (saved model.Material, err error) {
	r := &run{kind: model.SourceUploadedFile, metrics: m.metrics, logger: m.logger}
	defer func() { r.finish(err) }()
	r.track(req.Path)

	duration := 0.0
	if meas, err := m.prober.Duration(req.Path); err == nil {
		duration = meas.Seconds()
	} else {
		m.logger.Warn("probe uploaded audio duration", "path", req.Path, "err", err)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		base := filepath.Base(req.Path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return m.transcribeAndSave(ctx, r, model.Material{
		Title:      title,
		SourceKind: model.SourceUploadedFile,
		AudioPath:  req.Path,
		Duration:   duration,
	})
}

func (m *MediaIngestor) transcribeAndSave(ctx context.Context, r *run, mat model.Material) (model.Material, error) {
	var transcript []stt.Segment
	if err := r.stage(StageTranscribe, func() error {
		var err error
		transcript, err = m.transcriber.TranscribeSegments(ctx, mat.AudioPath)
		return err
	}); err != nil {
		return model.Material{}, err
	}
	if len(transcript) == 0 {
		return model.Material{}, &StageError{Stage: StageSegment, Err: ErrNoSegments}
	}

	segs := make([]model.Segment, len(transcript))
	for i, s := range transcript {
		segs[i] = model.Segment{Text: s.Text, StartTime: s.Start, EndTime: s.End}
	}
	if last := transcript[len(transcript)-1].End; mat.Duration < last {
		mat.Duration = last
	}

	var saved model.Material
	if err := r.stage(StagePersist, func() error {
		var err error
		saved, err = m.store.SaveMaterial(ctx, mat, segs)
		return err
	}); err != nil {
		return model.Material{}, err
	}
	m.logger.Info("media ingested",
		"material_id", saved.ID,
		"kind", saved.SourceKind,
		"segments", len(segs),
	)
	return saved, nil
}
