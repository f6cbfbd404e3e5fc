package model

import (
	"math"
	"testing"
)

func TestSourceKindValid(t *testing.T) {
	for _, k := range []SourceKind{SourceDownloadedMedia, SourceDocument, SourceUploadedFile} {
		if !k.Valid() {
			t.Fatalf("%q.Valid() = false, want true", k)
		}
	}
	if SourceKind("youtube").Valid() {
		t.Fatalf("unexpected valid kind %q", "youtube")
	}
}

func TestMaterialValidate(t *testing.T) {
	if err := (Material{SourceKind: SourceDocument, Duration: 0}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (Material{SourceKind: SourceDocument, Duration: -1}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for negative duration")
	}
	if err := (Material{Duration: 1}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for missing source kind")
	}
}

func TestValidateSegments(t *testing.T) {
	ok := []Segment{
		{Position: 0, StartTime: 0, EndTime: 2},
		{Position: 1, StartTime: 2, EndTime: 5.5},
		{Position: 2, StartTime: 5.5, EndTime: 6.5},
	}
	if err := ValidateSegments(ok); err != nil {
		t.Fatalf("ValidateSegments() error = %v", err)
	}

	gap := []Segment{{Position: 0}, {Position: 2}}
	if err := ValidateSegments(gap); err == nil {
		t.Fatalf("ValidateSegments() expected error for non-contiguous positions")
	}

	backwards := []Segment{{Position: 0, StartTime: 3, EndTime: 2}}
	if err := ValidateSegments(backwards); err == nil {
		t.Fatalf("ValidateSegments() expected error for end before start")
	}

	unordered := []Segment{
		{Position: 0, StartTime: 4, EndTime: 5},
		{Position: 1, StartTime: 1, EndTime: 2},
	}
	if err := ValidateSegments(unordered); err == nil {
		t.Fatalf("ValidateSegments() expected error for decreasing start")
	}

	overlapping := []Segment{
		{Position: 0, StartTime: 0, EndTime: 3},
		{Position: 1, StartTime: 2, EndTime: 4},
	}
	if err := ValidateSegments(overlapping); err == nil {
		t.Fatalf("ValidateSegments() expected error for overlap with previous segment")
	}
}

func TestEvaluationValidate(t *testing.T) {
	if err := (Evaluation{AccuracyScore: 100}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (Evaluation{AccuracyScore: 100.5}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for score above 100")
	}
	if err := (Evaluation{AccuracyScore: math.NaN()}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for NaN score")
	}
	if err := (Evaluation{AccuracyScore: math.Inf(1)}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for infinite score")
	}
	if err := (Evaluation{MissingWords: []string{"a", "b", "c", "d", "e", "f"}}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for too many missing words")
	}
}
