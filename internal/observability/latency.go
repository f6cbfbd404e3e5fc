package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// PipelinePractice groups the interactive stages of a practice evaluation.
// Ingestion pipelines are named by source kind.
const PipelinePractice = "practice"

type StageLatency struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverTarget  int     `json:"over_target,omitempty"`
}

type PipelineLatency struct {
	Pipeline string         `json:"pipeline"`
	Stages   []StageLatency `json:"stages"`
	// Bottleneck is the stage with the highest median in the window.
	Bottleneck string `json:"bottleneck,omitempty"`
	Failures   int    `json:"failures,omitempty"`
}

// LatencySnapshot is served by /v1/perf/latency.
type LatencySnapshot struct {
	GeneratedAt    time.Time         `json:"generated_at"`
	WindowSize     int               `json:"window_size"`
	Pipelines      []PipelineLatency `json:"pipelines"`
	ScorerDeclines map[string]int    `json:"scorer_declines,omitempty"`
}

type stageKey struct {
	pipeline string
	stage    string
}

// latencyWindow keeps the most recent samples of every pipeline stage.
type latencyWindow struct {
	mu       sync.Mutex
	size     int
	samples  map[stageKey][]float64
	failures map[string]int
	declines map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:     size,
		samples:  make(map[stageKey][]float64),
		failures: make(map[string]int),
		declines: make(map[string]int),
	}
}

func (w *latencyWindow) observe(pipeline, stage string, d time.Duration) {
	if pipeline == "" || stage == "" || d < 0 {
		return
	}
	k := stageKey{pipeline, stage}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[k], float64(d)/float64(time.Millisecond))
	if len(s) > w.size {
		s = s[len(s)-w.size:]
	}
	w.samples[k] = s
}

func (w *latencyWindow) failure(pipeline string) {
	w.mu.Lock()
	w.failures[pipeline]++
	w.mu.Unlock()
}

func (w *latencyWindow) decline(scorer string) {
	w.mu.Lock()
	w.declines[scorer]++
	w.mu.Unlock()
}

func (w *latencyWindow) snapshot(now time.Time) LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	byPipeline := map[string]*PipelineLatency{}
	get := func(name string) *PipelineLatency {
		p, ok := byPipeline[name]
		if !ok {
			p = &PipelineLatency{Pipeline: name, Stages: []StageLatency{}}
			byPipeline[name] = p
		}
		return p
	}

	for k, s := range w.samples {
		sorted := append([]float64(nil), s...)
		sort.Float64s(sorted)
		st := StageLatency{
			Stage:       k.stage,
			Samples:     len(sorted),
			LastMS:      round2(s[len(s)-1]),
			P50MS:       round2(nearestRank(sorted, 50)),
			P95MS:       round2(nearestRank(sorted, 95)),
			TargetP95MS: targetP95MS(k),
		}
		if st.TargetP95MS > 0 {
			st.OverTarget = len(sorted) - sort.SearchFloat64s(sorted, math.Nextafter(st.TargetP95MS, math.Inf(1)))
		}
		p := get(k.pipeline)
		p.Stages = append(p.Stages, st)
	}
	for name, n := range w.failures {
		get(name).Failures = n
	}

	out := LatencySnapshot{
		GeneratedAt: now.UTC(),
		WindowSize:  w.size,
		Pipelines:   make([]PipelineLatency, 0, len(byPipeline)),
	}
	for _, p := range byPipeline {
		sort.Slice(p.Stages, func(i, j int) bool {
			return stageLess(p.Stages[i].Stage, p.Stages[j].Stage)
		})
		var worst float64
		for _, st := range p.Stages {
			if st.P50MS > worst {
				worst, p.Bottleneck = st.P50MS, st.Stage
			}
		}
		out.Pipelines = append(out.Pipelines, *p)
	}
	sort.Slice(out.Pipelines, func(i, j int) bool {
		a, b := out.Pipelines[i].Pipeline, out.Pipelines[j].Pipeline
		if (a == PipelinePractice) != (b == PipelinePractice) {
			return a == PipelinePractice
		}
		return a < b
	})
	if len(w.declines) > 0 {
		out.ScorerDeclines = make(map[string]int, len(w.declines))
		for k, v := range w.declines {
			out.ScorerDeclines[k] = v
		}
	}
	return out
}

// stageOrder lists stages in the order a pipeline runs them.
var stageOrder = map[string]int{
	"download":   1,
	"extract":    2,
	"segment":    3,
	"synthesize": 4,
	"combine":    5,
	"transcribe": 6,
	"evaluate":   7,
	"persist":    8,
}

func stageLess(a, b string) bool {
	ra, rb := stageOrder[a], stageOrder[b]
	if ra == 0 {
		ra = len(stageOrder) + 1
	}
	if rb == 0 {
		rb = len(stageOrder) + 1
	}
	if ra != rb {
		return ra < rb
	}
	return a < b
}

// targetP95MS is the latency budget of stages that do not scale with the
// size of the material. Synthesis, download and media transcription grow
// with content and have none.
func targetP95MS(k stageKey) float64 {
	if k.pipeline == PipelinePractice {
		switch k.stage {
		case "transcribe":
			return 4000
		case "evaluate":
			return 6000
		}
		return 0
	}
	switch k.stage {
	case "extract":
		return 2000
	case "segment":
		return 100
	case "persist":
		return 500
	}
	return 0
}

// nearestRank returns the p-th percentile of sorted input.
func nearestRank(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	return sorted[max(rank, 1)-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
