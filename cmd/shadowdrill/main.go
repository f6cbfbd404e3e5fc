// Command shadowdrill replays a shadowing drill against a running server:
// it plays each segment's reference audio back as the learner recording and
// reports evaluation scores and latencies.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

type options struct {
	baseURL      string
	documentPath string
	materialID   string
	segments     int
	timeout      time.Duration
	cleanup      bool
	verbose      bool
}

type material struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type segment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type materialResponse struct {
	Material material  `json:"material"`
	Segments []segment `json:"segments"`
}

type practiceResponse struct {
	ID string `json:"id"`
}

type outcome struct {
	TranscribedText string `json:"transcribed_text"`
	Scorer          string `json:"scorer"`
	Evaluation      struct {
		AccuracyScore float64 `json:"accuracy_score"`
	} `json:"evaluation"`
}

type roundResult struct {
	segmentID string
	score     float64
	scorer    string
	evaluate  time.Duration
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "shadowdrill: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "shadowdrill: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	fs := flag.NewFlagSet("shadowdrill", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "shadowing server base URL")
	fs.StringVar(&cfg.documentPath, "document", "", "document (.pdf, .txt, .md) to ingest before the drill")
	fs.StringVar(&cfg.materialID, "material-id", "", "existing material to drill instead of ingesting a document")
	fs.IntVar(&cfg.segments, "segments", 0, "number of segments to drill (0 = all)")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Minute, "overall drill timeout")
	fs.BoolVar(&cfg.cleanup, "cleanup", true, "delete an ingested document material after the drill")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print per-segment progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	cfg.documentPath = strings.TrimSpace(cfg.documentPath)
	cfg.materialID = strings.TrimSpace(cfg.materialID)
	if (cfg.documentPath == "") == (cfg.materialID == "") {
		return options{}, fmt.Errorf("exactly one of -document or -material-id is required")
	}
	if cfg.segments < 0 {
		return options{}, fmt.Errorf("segments must be >= 0")
	}
	if cfg.timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be > 0")
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	client := &http.Client{Timeout: 5 * time.Minute}

	materialID := cfg.materialID
	if materialID == "" {
		m, err := ingestDocument(ctx, client, cfg.baseURL, cfg.documentPath)
		if err != nil {
			return fmt.Errorf("ingest document: %w", err)
		}
		materialID = m.ID
		if cfg.verbose {
			fmt.Printf("shadowdrill: ingested %q as %s\n", m.Title, m.ID)
		}
		if cfg.cleanup {
			defer func() {
				_ = doJSON(context.Background(), client, http.MethodDelete, cfg.baseURL+"/v1/materials/"+url.PathEscape(materialID), nil, "", http.StatusOK, nil)
			}()
		}
	}

	var mat materialResponse
	if err := doJSON(ctx, client, http.MethodGet, cfg.baseURL+"/v1/materials/"+url.PathEscape(materialID), nil, "", http.StatusOK, &mat); err != nil {
		return fmt.Errorf("load material: %w", err)
	}
	segs := mat.Segments
	if cfg.segments > 0 && cfg.segments < len(segs) {
		segs = segs[:cfg.segments]
	}
	if len(segs) == 0 {
		return fmt.Errorf("material %s has no segments", materialID)
	}

	results := make([]roundResult, 0, len(segs))
	for i, seg := range segs {
		res, err := drillSegment(ctx, client, cfg.baseURL, seg)
		if err != nil {
			return fmt.Errorf("segment %d (%s): %w", i+1, seg.ID, err)
		}
		results = append(results, res)
		if cfg.verbose {
			fmt.Printf("shadowdrill: %d/%d score=%.1f scorer=%s evaluate=%s text=%q\n",
				i+1, len(segs), res.score, res.scorer, res.evaluate.Round(time.Millisecond), seg.Text)
		}
	}

	fmt.Println(summarize(results).String())
	return nil
}

func drillSegment(ctx context.Context, client *http.Client, baseURL string, seg segment) (roundResult, error) {
	audio, contentType, err := fetchSegmentAudio(ctx, client, baseURL, seg.ID)
	if err != nil {
		return roundResult{}, fmt.Errorf("fetch audio: %w", err)
	}

	body, formType, err := multipartFile("drill"+extForContentType(contentType), audio)
	if err != nil {
		return roundResult{}, err
	}
	var p practiceResponse
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/segments/"+url.PathEscape(seg.ID)+"/practice", body, formType, http.StatusCreated, &p); err != nil {
		return roundResult{}, fmt.Errorf("record practice: %w", err)
	}

	start := time.Now()
	var out outcome
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/practice/"+url.PathEscape(p.ID)+"/evaluate", nil, "", http.StatusOK, &out); err != nil {
		return roundResult{}, fmt.Errorf("evaluate practice: %w", err)
	}
	return roundResult{
		segmentID: seg.ID,
		score:     out.Evaluation.AccuracyScore,
		scorer:    out.Scorer,
		evaluate:  time.Since(start),
	}, nil
}

func ingestDocument(ctx context.Context, client *http.Client, baseURL, path string) (material, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return material{}, err
	}
	body, formType, err := multipartFile(filepath.Base(path), data)
	if err != nil {
		return material{}, err
	}
	var m material
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/materials/document", body, formType, http.StatusCreated, &m); err != nil {
		return material{}, err
	}
	return m, nil
}

func fetchSegmentAudio(ctx context.Context, client *http.Client, baseURL, segmentID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/segments/"+url.PathEscape(segmentID)+"/audio", nil)
	if err != nil {
		return nil, "", err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 64<<20))
	if err != nil {
		return nil, "", err
	}
	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, res.Header.Get("Content-Type"), nil
}

func multipartFile(name string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func doJSON(ctx context.Context, client *http.Client, method, target string, body io.Reader, contentType string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != want {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// extForContentType maps the segment audio type back to a file extension.
func extForContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".wav"
	}
	switch mt {
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac":
		return ".flac"
	default:
		return ".wav"
	}
}

type summary struct {
	rounds    int
	meanScore float64
	minScore  float64
	p50       time.Duration
	p95       time.Duration
	scorers   map[string]int
}

func summarize(results []roundResult) summary {
	s := summary{rounds: len(results), scorers: map[string]int{}}
	if len(results) == 0 {
		return s
	}
	latencies := make([]time.Duration, 0, len(results))
	s.minScore = results[0].score
	var total float64
	for _, r := range results {
		total += r.score
		s.minScore = min(s.minScore, r.score)
		s.scorers[r.scorer]++
		latencies = append(latencies, r.evaluate)
	}
	s.meanScore = total / float64(len(results))
	slices.Sort(latencies)
	s.p50 = percentile(latencies, 50)
	s.p95 = percentile(latencies, 95)
	return s
}

// percentile uses nearest rank on sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func (s summary) String() string {
	names := make([]string, 0, len(s.scorers))
	for name := range s.scorers {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, s.scorers[name]))
	}
	return fmt.Sprintf("shadowdrill: rounds=%d mean_score=%.1f min_score=%.1f evaluate_p50=%s evaluate_p95=%s scorers=[%s]",
		s.rounds, s.meanScore, s.minScore,
		s.p50.Round(time.Millisecond), s.p95.Round(time.Millisecond),
		strings.Join(parts, " "))
}
