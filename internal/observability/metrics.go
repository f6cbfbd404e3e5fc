package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	latency  *latencyWindow

	Evaluations          *prometheus.CounterVec
	ScorerDeclines       *prometheus.CounterVec
	IngestStageSeconds   *prometheus.HistogramVec
	Ingestions           *prometheus.CounterVec
	TranscriptionSeconds *prometheus.HistogramVec
	SynthesizedSegments  *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		latency:  newLatencyWindow(256),
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Practice evaluations by the scorer that produced the result.",
		}, []string{"scorer"}),
		ScorerDeclines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_declines_total",
			Help:      "Scorer attempts that fell through to the next scorer, by reason.",
		}, []string{"scorer", "reason"}),
		IngestStageSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_stage_seconds",
			Help:      "Duration of ingestion pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
		}, []string{"kind", "stage"}),
		Ingestions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Completed ingestion pipelines by source kind and outcome.",
		}, []string{"kind", "outcome"}),
		TranscriptionSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_seconds",
			Help:      "Speech-to-text latency by mode.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 180, 600},
		}, []string{"mode"}),
		SynthesizedSegments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesized_segments_total",
			Help:      "Segments synthesized by text-to-speech provider.",
		}, []string{"provider"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
	}
}

// ObserveEvaluation counts a result from scorer; d covers the whole chain
// including scorers that declined first.
func (m *Metrics) ObserveEvaluation(scorer string, d time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(scorer).Inc()
	m.latency.observe(PipelinePractice, "evaluate", d)
}

func (m *Metrics) ObserveScorerDecline(scorer, reason string) {
	if m == nil {
		return
	}
	m.ScorerDeclines.WithLabelValues(scorer, reason).Inc()
	m.latency.decline(scorer)
}

func (m *Metrics) ObserveIngestStage(kind, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.IngestStageSeconds.WithLabelValues(kind, stage).Observe(d.Seconds())
	m.latency.observe(kind, stage, d)
}

func (m *Metrics) ObserveIngestion(kind, outcome string) {
	if m == nil {
		return
	}
	m.Ingestions.WithLabelValues(kind, outcome).Inc()
	if outcome != "ok" {
		m.latency.failure(kind)
	}
}

func (m *Metrics) ObserveTranscription(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionSeconds.WithLabelValues(mode).Observe(d.Seconds())
	// Media transcription is already timed as an ingest stage.
	if mode == "text" {
		m.latency.observe(PipelinePractice, "transcribe", d)
	}
}

func (m *Metrics) ObserveSynthesis(provider string) {
	if m == nil {
		return
	}
	m.SynthesizedSegments.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// SnapshotLatency returns rolling latency stats grouped by pipeline.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Pipelines: []PipelineLatency{}}
	}
	return m.latency.snapshot(time.Now())
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
