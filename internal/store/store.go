package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/shadowing/internal/model"
)

var ErrNotFound = errors.New("not found")

// Store persists materials, their segments and practice attempts.
// Deleting a material removes its segments and their practices.
type Store interface {
	// SaveMaterial stores a material with all its segments atomically and
	// returns it with generated IDs. Segment positions follow slice order.
	SaveMaterial(ctx context.Context, m model.Material, segments []model.Segment) (model.Material, error)
	GetMaterial(ctx context.Context, id string) (model.Material, error)
	// ListMaterials returns all materials, newest first.
	ListMaterials(ctx context.Context) ([]model.Material, error)
	MaterialSegments(ctx context.Context, materialID string) ([]model.Segment, error)
	DeleteMaterial(ctx context.Context, id string) error
	GetSegment(ctx context.Context, id string) (model.Segment, error)

	CreatePractice(ctx context.Context, segmentID, recordingPath string) (model.Practice, error)
	GetPractice(ctx context.Context, id string) (model.Practice, error)
	// ListPractices returns a segment's practices, newest first.
	ListPractices(ctx context.Context, segmentID string) ([]model.Practice, error)
	UpdatePractice(ctx context.Context, id, transcribedText string, ev model.Evaluation) (model.Practice, error)

	Close() error
}

// New creates a postgres-backed store when configured, otherwise in-memory.
func New(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

func prepareSegments(segments []model.Segment) ([]model.Segment, error) {
	out := make([]model.Segment, len(segments))
	for i, s := range segments {
		s.Position = i
		out[i] = s
	}
	if err := model.ValidateSegments(out); err != nil {
		return nil, fmt.Errorf("invalid segments: %w", err)
	}
	return out, nil
}
