package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ent0n29/shadowing/internal/config"
	"github.com/ent0n29/shadowing/internal/ingest"
	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/practice"
	"github.com/ent0n29/shadowing/internal/reliability"
	"github.com/ent0n29/shadowing/internal/store"
	"github.com/ent0n29/shadowing/internal/stt"
)

type DocumentIngestor interface {
	Ingest(ctx context.Context, req ingest.DocumentRequest) (model.Material, error)
}

type MediaIngestor interface {
	Ingest(ctx context.Context, url string) (model.Material, error)
	IngestFile(ctx context.Context, req ingest.FileRequest) (model.Material, error)
}

type PracticeService interface {
	Record(ctx context.Context, segmentID string, recording io.Reader, ext string) (model.Practice, error)
	Evaluate(ctx context.Context, practiceID string) (practice.Outcome, error)
}

// Providers describes the resolved backends for the status endpoint.
type Providers struct {
	TTS       string   `json:"tts"`
	STT       string   `json:"stt"`
	Scorers   []string `json:"scorers"`
	StoreMode string   `json:"store_mode"`
}

type Deps struct {
	Store     store.Store
	Documents DocumentIngestor
	Media     MediaIngestor
	Practice  PracticeService
	Providers Providers
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

type Server struct {
	cfg       config.Config
	store     store.Store
	documents DocumentIngestor
	media     MediaIngestor
	practice  PracticeService
	providers Providers
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		store:     deps.Store,
		documents: deps.Documents,
		media:     deps.Media,
		practice:  deps.Practice,
		providers: deps.Providers,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/v1/materials", s.handleListMaterials)
	r.Post("/v1/materials/document", s.handleIngestDocument)
	r.Post("/v1/materials/media", s.handleIngestMedia)
	r.Post("/v1/materials/upload", s.handleIngestUpload)
	r.Get("/v1/materials/{id}", s.handleGetMaterial)
	r.Delete("/v1/materials/{id}", s.handleDeleteMaterial)

	r.Get("/v1/segments/{id}/audio", s.handleSegmentAudio)
	r.Post("/v1/segments/{id}/practice", s.handleRecordPractice)
	r.Get("/v1/segments/{id}/practices", s.handleListPractices)

	r.Get("/v1/practice/{id}", s.handleGetPractice)
	r.Post("/v1/practice/{id}/evaluate", s.handleEvaluatePractice)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.providers.StoreMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil || s.documents == nil || s.media == nil || s.practice == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service dependencies are not wired")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.providers.StoreMode,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondError(w, http.StatusNotFound, "metrics_disabled", "metrics are not enabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

// requestLogger logs each request and counts it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		s.metrics.ObserveHTTPRequest(route, status)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// respondServiceError maps domain errors to HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var stageErr *ingest.StageError
	var statusErr *reliability.StatusError
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, practice.ErrEmptyRecording):
		respondError(w, http.StatusBadRequest, "empty_recording", err.Error())
	case errors.Is(err, context.Canceled):
		respondError(w, 499, "canceled", "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.As(err, &statusErr) && statusErr.Retryable():
		// The provider is busy; the client decides whether to try again.
		w.Header().Set("Retry-After", "5")
		respondError(w, http.StatusServiceUnavailable, "upstream_unavailable", err.Error())
	case errors.As(err, &stageErr):
		status := http.StatusBadGateway
		switch stageErr.Stage {
		case ingest.StageExtract, ingest.StageSegment:
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, "ingest_"+string(stageErr.Stage)+"_failed", err.Error())
	case errors.Is(err, stt.ErrTranscription):
		respondError(w, http.StatusBadGateway, "transcription_failed", err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
