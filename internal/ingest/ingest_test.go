package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/shadowing/internal/audio"
	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/observability"
	"github.com/ent0n29/shadowing/internal/store"
	"github.com/ent0n29/shadowing/internal/stt"
	"github.com/ent0n29/shadowing/internal/tts"
)

const sampleDocument = "First sentence is here. Second one is longer here.\n\nThird and final sentence."

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, string, string, tts.Voice) (tts.Artifact, error) {
	return tts.Artifact{}, errors.New("voice backend offline")
}

type failingCombiner struct{}

func (failingCombiner) Combine(context.Context, []string, string) (audio.Combined, error) {
	return audio.Combined{}, errors.New("mixed formats")
}

type failingSaver struct{}

func (failingSaver) SaveMaterial(context.Context, model.Material, []model.Segment) (model.Material, error) {
	return model.Material{}, errors.New("database is down")
}

func newDocumentIngestor(t *testing.T, dir string, synth tts.Synthesizer, saver Saver, metrics *observability.Metrics) *DocumentIngestor {
	t.Helper()
	return NewDocumentIngestor(DocumentConfig{
		Timeline: tts.NewTimeline(synth, tts.TimelineConfig{Dir: dir}),
		Store:    saver,
		Dir:      dir,
		Metrics:  metrics,
	})
}

func TestDocumentIngestBuildsTimedMaterial(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lesson one.txt", sampleDocument)
	dir := t.TempDir()
	st := store.NewInMemoryStore()
	metrics := observability.NewMetrics("test")
	ing := newDocumentIngestor(t, dir, &tts.MockSynthesizer{PerCharacter: 10 * time.Millisecond}, st, metrics)

	m, err := ing.Ingest(context.Background(), DocumentRequest{Path: src})
	require.NoError(t, err)
	assert.Equal(t, "lesson one", m.Title)
	assert.Equal(t, model.SourceDocument, m.SourceKind)
	assert.InDelta(t, 0.74, m.Duration, 0.005)
	assert.True(t, strings.HasPrefix(filepath.Base(m.AudioPath), "combined_"), m.AudioPath)
	assert.FileExists(t, m.AudioPath)

	segs, err := st.MaterialSegments(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "First sentence is here.", segs[0].Text)
	assert.Equal(t, "Third and final sentence.", segs[2].Text)
	assert.Zero(t, segs[0].StartTime)
	for i, seg := range segs {
		assert.FileExists(t, seg.AudioPath)
		if i > 0 {
			assert.InDelta(t, segs[i-1].EndTime, seg.StartTime, 1e-9, "segment %d starts where the previous ends", i)
		}
	}
	assert.InDelta(t, m.Duration, segs[2].EndTime, 1e-6)

	combined, err := audio.FileProber{}.Duration(m.AudioPath)
	require.NoError(t, err)
	assert.InDelta(t, m.Duration, combined.Seconds(), 0.005)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Ingestions.WithLabelValues("document", "ok")))
}

func TestDocumentIngestExplicitTitleAndCap(t *testing.T) {
	src := writeFile(t, t.TempDir(), "notes.md", sampleDocument)
	st := store.NewInMemoryStore()
	dir := t.TempDir()
	ing := NewDocumentIngestor(DocumentConfig{
		Timeline:    tts.NewTimeline(&tts.MockSynthesizer{PerCharacter: time.Millisecond}, tts.TimelineConfig{Dir: dir}),
		Store:       st,
		Dir:         dir,
		MaxSegments: 2,
	})

	m, err := ing.Ingest(context.Background(), DocumentRequest{Title: "  Weekly notes ", Path: src})
	require.NoError(t, err)
	assert.Equal(t, "Weekly notes", m.Title)
	segs, err := st.MaterialSegments(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, segs, 2)
}

func TestDocumentIngestSynthesisFailurePersistsNothing(t *testing.T) {
	src := writeFile(t, t.TempDir(), "doc.txt", sampleDocument)
	dir := t.TempDir()
	st := store.NewInMemoryStore()
	metrics := observability.NewMetrics("test")
	ing := newDocumentIngestor(t, dir, failingSynth{}, st, metrics)

	_, err := ing.Ingest(context.Background(), DocumentRequest{Path: src})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSynthesize, stageErr.Stage)
	assert.Contains(t, err.Error(), "voice backend offline")

	list, err := st.ListMaterials(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, dirEntries(t, dir))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Ingestions.WithLabelValues("document", "error")))
}

func TestDocumentIngestWithoutSentences(t *testing.T) {
	src := writeFile(t, t.TempDir(), "doc.txt", "Intro.\n12345678901234\n")
	ing := newDocumentIngestor(t, t.TempDir(), tts.NewMockSynthesizer(), store.NewInMemoryStore(), nil)

	_, err := ing.Ingest(context.Background(), DocumentRequest{Path: src})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSegment, stageErr.Stage)
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestDocumentIngestExtractFailure(t *testing.T) {
	ing := newDocumentIngestor(t, t.TempDir(), tts.NewMockSynthesizer(), store.NewInMemoryStore(), nil)
	_, err := ing.Ingest(context.Background(), DocumentRequest{Path: filepath.Join(t.TempDir(), "slides.pptx")})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageExtract, stageErr.Stage)
}

func TestDocumentIngestCombineFailureUsesFirstSegment(t *testing.T) {
	src := writeFile(t, t.TempDir(), "doc.txt", sampleDocument)
	st := store.NewInMemoryStore()
	dir := t.TempDir()
	ing := NewDocumentIngestor(DocumentConfig{
		Timeline: tts.NewTimeline(&tts.MockSynthesizer{PerCharacter: time.Millisecond}, tts.TimelineConfig{Dir: dir}),
		Combiner: failingCombiner{},
		Store:    st,
		Dir:      dir,
	})

	m, err := ing.Ingest(context.Background(), DocumentRequest{Path: src})
	require.NoError(t, err)
	segs, err := st.MaterialSegments(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, segs[0].AudioPath, m.AudioPath)
}

func TestDocumentIngestPersistFailureRemovesArtifacts(t *testing.T) {
	src := writeFile(t, t.TempDir(), "doc.txt", sampleDocument)
	dir := t.TempDir()
	ing := newDocumentIngestor(t, dir, &tts.MockSynthesizer{PerCharacter: time.Millisecond}, failingSaver{}, nil)

	_, err := ing.Ingest(context.Background(), DocumentRequest{Path: src})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersist, stageErr.Stage)
	assert.Empty(t, dirEntries(t, dir))
}

type fakeDownloader struct {
	dir      string
	duration float64
	err      error
}

func (d fakeDownloader) Download(_ context.Context, url string) (Download, error) {
	if d.err != nil {
		return Download{}, d.err
	}
	audioPath := filepath.Join(d.dir, "abc123.m4a")
	thumb := filepath.Join(d.dir, "abc123.jpg")
	if err := os.WriteFile(audioPath, []byte("not really audio"), 0o644); err != nil {
		return Download{}, err
	}
	if err := os.WriteFile(thumb, []byte("jpeg"), 0o644); err != nil {
		return Download{}, err
	}
	return Download{AudioPath: audioPath, Title: "A talk about " + url, Duration: d.duration, ThumbnailPath: thumb}, nil
}

type fakeTranscriber struct {
	segments []stt.Segment
	err      error
	paths    []string
}

func (f *fakeTranscriber) TranscribeSegments(_ context.Context, path string) ([]stt.Segment, error) {
	f.paths = append(f.paths, path)
	return f.segments, f.err
}

func TestMediaIngestDownloadsAndTranscribes(t *testing.T) {
	dir := t.TempDir()
	st := store.NewInMemoryStore()
	tr := &fakeTranscriber{segments: []stt.Segment{
		{Text: "Welcome to the show.", Start: 0, End: 2.4},
		{Text: "Today we talk about Go.", Start: 2.4, End: 5.1},
	}}
	ing := NewMediaIngestor(MediaConfig{
		Downloader:  fakeDownloader{dir: dir, duration: 312},
		Transcriber: tr,
		Store:       st,
	})

	m, err := ing.Ingest(context.Background(), "https://example.com/watch?v=abc123")
	require.NoError(t, err)
	assert.Equal(t, model.SourceDownloadedMedia, m.SourceKind)
	assert.Equal(t, "https://example.com/watch?v=abc123", m.SourceURL)
	assert.Equal(t, 312.0, m.Duration)
	assert.Equal(t, filepath.Join(dir, "abc123.jpg"), m.ThumbnailPath)
	assert.Equal(t, []string{m.AudioPath}, tr.paths)

	segs, err := st.MaterialSegments(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "Today we talk about Go.", segs[1].Text)
	assert.Equal(t, 2.4, segs[1].StartTime)
	assert.Empty(t, segs[1].AudioPath)
}

func TestMediaIngestWithoutSpeechCleansUp(t *testing.T) {
	dir := t.TempDir()
	st := store.NewInMemoryStore()
	ing := NewMediaIngestor(MediaConfig{
		Downloader:  fakeDownloader{dir: dir, duration: 10},
		Transcriber: &fakeTranscriber{},
		Store:       st,
	})

	_, err := ing.Ingest(context.Background(), "https://example.com/silence")
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSegment, stageErr.Stage)
	assert.Empty(t, dirEntries(t, dir))
}

func TestMediaIngestDownloadFailure(t *testing.T) {
	ing := NewMediaIngestor(MediaConfig{
		Downloader:  fakeDownloader{err: errors.New("video unavailable")},
		Transcriber: &fakeTranscriber{},
		Store:       store.NewInMemoryStore(),
	})
	_, err := ing.Ingest(context.Background(), "https://example.com/gone")
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDownload, stageErr.Stage)

	noDownloader := NewMediaIngestor(MediaConfig{Transcriber: &fakeTranscriber{}, Store: store.NewInMemoryStore()})
	_, err = noDownloader.Ingest(context.Background(), "https://example.com/x")
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDownload, stageErr.Stage)
}

func TestIngestFileProbesDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload_1.wav")
	require.NoError(t, audio.WriteWAVPCM16LEFile(path, make([]byte, 3*16000*2), 16000))
	st := store.NewInMemoryStore()
	metrics := observability.NewMetrics("test")
	ing := NewMediaIngestor(MediaConfig{
		Transcriber: &fakeTranscriber{segments: []stt.Segment{{Text: "Hello there, learner.", Start: 0.2, End: 2.5}}},
		Store:       st,
		Metrics:     metrics,
	})

	m, err := ing.IngestFile(context.Background(), FileRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, model.SourceUploadedFile, m.SourceKind)
	assert.Equal(t, "upload_1", m.Title)
	assert.InDelta(t, 3.0, m.Duration, 1e-6)
	assert.FileExists(t, path)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Ingestions.WithLabelValues("uploaded-file", "ok")))
}

func TestIngestFileTranscriptionFailureRemovesUpload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "upload.webm", "bytes")
	ing := NewMediaIngestor(MediaConfig{
		Transcriber: &fakeTranscriber{err: errors.New("model crashed")},
		Store:       store.NewInMemoryStore(),
	})

	_, err := ing.IngestFile(context.Background(), FileRequest{Title: "Call", Path: path})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageTranscribe, stageErr.Stage)
	assert.NoFileExists(t, path)
}

func TestFileExtractor(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "a.TXT", "Plain text body.")
	got, err := FileExtractor{}.Extract(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, "Plain text body.", got)

	_, err = FileExtractor{}.Extract(context.Background(), writeFile(t, dir, "a.docx", "x"))
	assert.Error(t, err)

	_, err = FileExtractor{}.Extract(context.Background(), writeFile(t, dir, "broken.pdf", "not a pdf"))
	assert.Error(t, err)

	assert.True(t, SupportedDocument("Paper.PDF"))
	assert.True(t, SupportedDocument("notes.md"))
	assert.False(t, SupportedDocument("song.mp3"))
}

func TestParseYTDLPOutput(t *testing.T) {
	out := []byte(`[youtube] abc123: Downloading webpage
{"id":"abc123","title":"Go talk","duration":95.5,"_filename":"/tmp/abc123.webm","requested_downloads":[{"filepath":"/tmp/abc123.m4a"}]}
`)
	info, err := parseYTDLPOutput(out)
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.ID)
	assert.Equal(t, "Go talk", info.Title)
	assert.Equal(t, 95.5, info.Duration)
	require.Len(t, info.RequestedDownload, 1)
	assert.Equal(t, "/tmp/abc123.m4a", info.RequestedDownload[0].Filepath)

	_, err = parseYTDLPOutput([]byte("ERROR: nothing here\n"))
	assert.Error(t, err)
}

func TestFindThumbnail(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, findThumbnail(dir, "vid"))
	writeFile(t, dir, "vid.webp", "img")
	assert.Equal(t, filepath.Join(dir, "vid.webp"), findThumbnail(dir, "vid"))
}
