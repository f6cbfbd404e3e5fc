package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ent0n29/shadowing/internal/audio"
	"github.com/ent0n29/shadowing/internal/config"
	"github.com/ent0n29/shadowing/internal/evaluate"
	"github.com/ent0n29/shadowing/internal/httpapi"
	"github.com/ent0n29/shadowing/internal/ingest"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/practice"
	"github.com/ent0n29/shadowing/internal/store"
	"github.com/ent0n29/shadowing/internal/stt"
	"github.com/ent0n29/shadowing/internal/tts"
)

type SpeechInfo struct {
	Provider string
	Detail   string
	Voice    tts.Voice
}

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Store     store.Store
	Documents *ingest.DocumentIngestor
	Media     *ingest.MediaIngestor
	Practice  *practice.Service
	Metrics   *observability.Metrics
	Speech    SpeechInfo
	Providers httpapi.Providers

	// Cleanup should be called on shutdown to release external resources (DB, cloud clients).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{cfg.MaterialsDir(), cfg.RecordingsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	storeMode := "in-memory"
	if cfg.DatabaseURL != "" {
		storeMode = "postgres"
	}

	speech, err := resolveSpeech(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sttModel, sttProvider, err := resolveTranscription(cfg)
	if err != nil {
		_ = joinCleanup(speech.cleanup, st.Close)()
		return nil, err
	}

	scorers, scorersCleanup, err := resolveScorers(ctx, cfg, logger)
	if err != nil {
		_ = joinCleanup(speech.cleanup, st.Close)()
		return nil, err
	}

	ffmpeg := audio.FFmpeg{Path: cfg.FFmpegCLI}
	transcriber := stt.NewTranscriber(sttModel, stt.TranscriberConfig{
		Workers:  cfg.STTWorkers,
		Language: cfg.STTLanguage,
		Metrics:  metrics,
		Logger:   logger,
	})
	evaluator := evaluate.NewEvaluator(scorers, evaluate.Config{Metrics: metrics, Logger: logger})

	timeline := tts.NewTimeline(speech.synth, tts.TimelineConfig{
		Dir:     cfg.MaterialsDir(),
		Voice:   speech.voice,
		Metrics: metrics,
		Logger:  logger,
	})
	documents := ingest.NewDocumentIngestor(ingest.DocumentConfig{
		Timeline:    timeline,
		Combiner:    audio.Combiner{FFmpeg: ffmpeg},
		Store:       st,
		Dir:         cfg.MaterialsDir(),
		MaxSegments: cfg.SegmentMaxCount,
		Metrics:     metrics,
		Logger:      logger,
	})

	mediaCfg := ingest.MediaConfig{
		Transcriber: transcriber,
		Store:       st,
		Metrics:     metrics,
		Logger:      logger,
	}
	if dl, err := ingest.NewYTDLP(cfg.YTDLPCLI, cfg.MaterialsDir()); err != nil {
		logger.Warn("media url ingestion disabled", "err", err)
	} else {
		mediaCfg.Downloader = dl
	}
	media := ingest.NewMediaIngestor(mediaCfg)

	practiceSvc := practice.NewService(practice.Config{
		Store:       st,
		Transcriber: transcriber,
		Evaluator:   evaluator,
		Dir:         cfg.RecordingsDir(),
		Logger:      logger,
	})

	providers := httpapi.Providers{
		TTS:       speech.detail,
		STT:       sttProvider,
		Scorers:   evaluator.Scorers(),
		StoreMode: storeMode,
	}
	api := httpapi.New(cfg, httpapi.Deps{
		Store:     st,
		Documents: documents,
		Media:     media,
		Practice:  practiceSvc,
		Providers: providers,
		Metrics:   metrics,
		Logger:    logger,
	})

	logger.Info("providers resolved",
		"tts", speech.detail,
		"stt", sttProvider,
		"scorers", providers.Scorers,
		"store", storeMode,
	)

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Store:     st,
		Documents: documents,
		Media:     media,
		Practice:  practiceSvc,
		Metrics:   metrics,
		Speech: SpeechInfo{
			Provider: speech.resolvedProvider,
			Detail:   speech.detail,
			Voice:    speech.voice,
		},
		Providers: providers,
		Cleanup:   joinCleanup(scorersCleanup, speech.cleanup, st.Close),
	}, nil
}
