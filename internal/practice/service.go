// Package practice records learner attempts at a segment and scores them.
package practice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/shadowing/internal/evaluate"
	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/stt"
)

// DefaultRecordingExt is used when a recording arrives without a usable extension.
const DefaultRecordingExt = "webm"

var ErrEmptyRecording = errors.New("recording is empty")

// Store is the persistence the practice flow needs.
type Store interface {
	GetSegment(ctx context.Context, id string) (model.Segment, error)
	CreatePractice(ctx context.Context, segmentID, recordingPath string) (model.Practice, error)
	GetPractice(ctx context.Context, id string) (model.Practice, error)
	UpdatePractice(ctx context.Context, id, transcribedText string, ev model.Evaluation) (model.Practice, error)
}

type Transcriber interface {
	TranscribeText(ctx context.Context, path string) (stt.Text, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, reference, transcription string) evaluate.Result
}

// Outcome is the result of scoring one practice attempt.
type Outcome struct {
	PracticeID      string           `json:"practice_id"`
	TranscribedText string           `json:"transcribed_text"`
	OriginalText    string           `json:"original_text"`
	Evaluation      model.Evaluation `json:"evaluation"`
	Scorer          string           `json:"scorer"`
}

type Config struct {
	Store       Store
	Transcriber Transcriber
	Evaluator   Evaluator
	Dir         string
	Logger      *slog.Logger
}

type Service struct {
	store       Store
	transcriber Transcriber
	evaluator   Evaluator
	dir         string
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       cfg.Store,
		transcriber: cfg.Transcriber,
		evaluator:   cfg.Evaluator,
		dir:         cfg.Dir,
		logger:      logger,
		now:         time.Now,
	}
}

// Record stores a recording for segmentID and creates an unevaluated practice.
func (s *Service) Record(ctx context.Context, segmentID string, recording io.Reader, ext string) (model.Practice, error) {
	if _, err := s.store.GetSegment(ctx, segmentID); err != nil {
		return model.Practice{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return model.Practice{}, err
	}

	name := fmt.Sprintf("practice_%s_%s.%s", segmentID, strconv.FormatInt(s.now().UnixNano(), 10), cleanExt(ext))
	path := filepath.Join(s.dir, name)
	if err := writeRecording(path, recording); err != nil {
		return model.Practice{}, err
	}

	p, err := s.store.CreatePractice(ctx, segmentID, path)
	if err != nil {
		_ = os.Remove(path)
		return model.Practice{}, err
	}
	s.logger.Info("practice recorded", "practice_id", p.ID, "segment_id", segmentID)
	return p, nil
}

func writeRecording(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = ErrEmptyRecording
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("save recording: %w", err)
	}
	return nil
}

// Evaluate transcribes the practice recording and scores it against the
// segment text. A previous evaluation is overwritten.
func (s *Service) Evaluate(ctx context.Context, practiceID string) (Outcome, error) {
	p, err := s.store.GetPractice(ctx, practiceID)
	if err != nil {
		return Outcome{}, err
	}
	seg, err := s.store.GetSegment(ctx, p.SegmentID)
	if err != nil {
		return Outcome{}, err
	}

	text, err := s.transcriber.TranscribeText(ctx, p.RecordingPath)
	if err != nil {
		return Outcome{}, err
	}
	res := s.evaluator.Evaluate(ctx, seg.Text, text.Text)

	if _, err := s.store.UpdatePractice(ctx, p.ID, text.Text, res.Evaluation); err != nil {
		return Outcome{}, fmt.Errorf("save evaluation: %w", err)
	}
	s.logger.Info("practice evaluated",
		"practice_id", p.ID,
		"scorer", res.Scorer,
		"score", res.Evaluation.AccuracyScore,
	)
	return Outcome{
		PracticeID:      p.ID,
		TranscribedText: text.Text,
		OriginalText:    seg.Text,
		Evaluation:      res.Evaluation,
		Scorer:          res.Scorer,
	}, nil
}

// cleanExt keeps a short alphanumeric extension.
func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" || len(ext) > 8 {
		return DefaultRecordingExt
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return DefaultRecordingExt
		}
	}
	return ext
}
