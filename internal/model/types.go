package model

import (
	"fmt"
	"math"
	"time"
)

// SourceKind identifies where a material came from.
type SourceKind string

const (
	SourceDownloadedMedia SourceKind = "downloaded-media"
	SourceDocument        SourceKind = "document"
	SourceUploadedFile    SourceKind = "uploaded-file"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceDownloadedMedia, SourceDocument, SourceUploadedFile:
		return true
	default:
		return false
	}
}

// Material is an ingested document or recording with one primary audio track.
type Material struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	SourceKind    SourceKind `json:"source_kind"`
	SourceURL     string     `json:"source_url,omitempty"`
	AudioPath     string     `json:"audio_path"`
	Duration      float64    `json:"duration"`
	ThumbnailPath string     `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (m Material) Validate() error {
	if !m.SourceKind.Valid() {
		return fmt.Errorf("invalid source kind %q", m.SourceKind)
	}
	if m.Duration < 0 {
		return fmt.Errorf("duration must be >= 0, got %v", m.Duration)
	}
	return nil
}

// Segment is one ordered, time-bounded slice of a material.
// AudioPath is empty when the segment is located by offset in the
// material's audio track.
type Segment struct {
	ID         string  `json:"id"`
	MaterialID string  `json:"material_id"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	AudioPath  string  `json:"audio_path,omitempty"`
	Position   int     `json:"position"`
}

// ValidateSegments checks the ordering invariants of a material's segments:
// contiguous 0-based positions, end >= start, non-decreasing starts and no
// overlap with the previous segment.
func ValidateSegments(segments []Segment) error {
	prevStart, prevEnd := 0.0, 0.0
	for i, s := range segments {
		if s.Position != i {
			return fmt.Errorf("segment %d: position %d, want %d", i, s.Position, i)
		}
		if s.EndTime < s.StartTime {
			return fmt.Errorf("segment %d: end %.3f before start %.3f", i, s.EndTime, s.StartTime)
		}
		if i > 0 && s.StartTime < prevStart {
			return fmt.Errorf("segment %d: start %.3f before previous start %.3f", i, s.StartTime, prevStart)
		}
		if i > 0 && s.StartTime < prevEnd {
			return fmt.Errorf("segment %d: start %.3f overlaps previous end %.3f", i, s.StartTime, prevEnd)
		}
		prevStart, prevEnd = s.StartTime, s.EndTime
	}
	return nil
}

// Practice is one learner recording of a segment.
type Practice struct {
	ID              string      `json:"id"`
	SegmentID       string      `json:"segment_id"`
	RecordingPath   string      `json:"recording_path"`
	TranscribedText *string     `json:"transcribed_text"`
	Evaluation      *Evaluation `json:"evaluation"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Evaluation is the structured feedback for one practice attempt.
type Evaluation struct {
	AccuracyScore      float64  `json:"accuracy_score"`
	MissingWords       []string `json:"missing_words"`
	AddedWords         []string `json:"added_words"`
	PronunciationNotes string   `json:"pronunciation_notes"`
	OverallFeedback    string   `json:"overall_feedback"`
	Strengths          []string `json:"strengths"`
	AreasToImprove     []string `json:"areas_to_improve"`
}

const MaxWordList = 5

func (e Evaluation) Validate() error {
	if math.IsNaN(e.AccuracyScore) || e.AccuracyScore < 0 || e.AccuracyScore > 100 {
		return fmt.Errorf("accuracy_score %v out of range [0, 100]", e.AccuracyScore)
	}
	if len(e.MissingWords) > MaxWordList {
		return fmt.Errorf("missing_words has %d entries, max %d", len(e.MissingWords), MaxWordList)
	}
	if len(e.AddedWords) > MaxWordList {
		return fmt.Errorf("added_words has %d entries, max %d", len(e.AddedWords), MaxWordList)
	}
	return nil
}
