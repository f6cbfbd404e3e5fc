package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/shadowing/internal/model"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	seq       int64
	materials map[string]materialRow
	segments  map[string]model.Segment
	byMat     map[string][]string
	practices map[string]practiceRow
	bySeg     map[string][]string
}

type materialRow struct {
	m   model.Material
	seq int64
}

type practiceRow struct {
	p   model.Practice
	seq int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		materials: make(map[string]materialRow),
		segments:  make(map[string]model.Segment),
		byMat:     make(map[string][]string),
		practices: make(map[string]practiceRow),
		bySeg:     make(map[string][]string),
	}
}

func (s *InMemoryStore) SaveMaterial(_ context.Context, m model.Material, segments []model.Segment) (model.Material, error) {
	if err := m.Validate(); err != nil {
		return model.Material{}, fmt.Errorf("invalid material: %w", err)
	}
	segs, err := prepareSegments(segments)
	if err != nil {
		return model.Material{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uuid.NewString()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.seq++
	s.materials[m.ID] = materialRow{m: m, seq: s.seq}
	ids := make([]string, 0, len(segs))
	for _, seg := range segs {
		seg.ID = uuid.NewString()
		seg.MaterialID = m.ID
		s.segments[seg.ID] = seg
		ids = append(ids, seg.ID)
	}
	s.byMat[m.ID] = ids
	return m, nil
}

func (s *InMemoryStore) GetMaterial(_ context.Context, id string) (model.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.materials[id]
	if !ok {
		return model.Material{}, fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	return row.m, nil
}

func (s *InMemoryStore) ListMaterials(_ context.Context) ([]model.Material, error) {
	s.mu.RLock()
	rows := make([]materialRow, 0, len(s.materials))
	for _, row := range s.materials {
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	slices.SortFunc(rows, func(a, b materialRow) int {
		if c := b.m.CreatedAt.Compare(a.m.CreatedAt); c != 0 {
			return c
		}
		return int(b.seq - a.seq)
	})
	out := make([]model.Material, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.m)
	}
	return out, nil
}

func (s *InMemoryStore) MaterialSegments(_ context.Context, materialID string) ([]model.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.materials[materialID]; !ok {
		return nil, fmt.Errorf("material %s: %w", materialID, ErrNotFound)
	}
	ids := s.byMat[materialID]
	out := make([]model.Segment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.segments[id])
	}
	return out, nil
}

func (s *InMemoryStore) DeleteMaterial(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.materials[id]; !ok {
		return fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	for _, segID := range s.byMat[id] {
		for _, pID := range s.bySeg[segID] {
			delete(s.practices, pID)
		}
		delete(s.bySeg, segID)
		delete(s.segments, segID)
	}
	delete(s.byMat, id)
	delete(s.materials, id)
	return nil
}

func (s *InMemoryStore) GetSegment(_ context.Context, id string) (model.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return model.Segment{}, fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	return seg, nil
}

func (s *InMemoryStore) CreatePractice(_ context.Context, segmentID, recordingPath string) (model.Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.segments[segmentID]; !ok {
		return model.Practice{}, fmt.Errorf("segment %s: %w", segmentID, ErrNotFound)
	}
	p := model.Practice{
		ID:            uuid.NewString(),
		SegmentID:     segmentID,
		RecordingPath: recordingPath,
		CreatedAt:     time.Now().UTC(),
	}
	s.seq++
	s.practices[p.ID] = practiceRow{p: p, seq: s.seq}
	s.bySeg[segmentID] = append(s.bySeg[segmentID], p.ID)
	return p, nil
}

func (s *InMemoryStore) GetPractice(_ context.Context, id string) (model.Practice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.practices[id]
	if !ok {
		return model.Practice{}, fmt.Errorf("practice %s: %w", id, ErrNotFound)
	}
	return clonePractice(row.p), nil
}

func (s *InMemoryStore) ListPractices(_ context.Context, segmentID string) ([]model.Practice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.segments[segmentID]; !ok {
		return nil, fmt.Errorf("segment %s: %w", segmentID, ErrNotFound)
	}
	ids := s.bySeg[segmentID]
	out := make([]model.Practice, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, clonePractice(s.practices[ids[i]].p))
	}
	return out, nil
}

func (s *InMemoryStore) UpdatePractice(_ context.Context, id, transcribedText string, ev model.Evaluation) (model.Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.practices[id]
	if !ok {
		return model.Practice{}, fmt.Errorf("practice %s: %w", id, ErrNotFound)
	}
	text := transcribedText
	row.p.TranscribedText = &text
	row.p.Evaluation = &ev
	s.practices[id] = row
	return clonePractice(row.p), nil
}

func (s *InMemoryStore) Close() error { return nil }

// clonePractice detaches the returned value from the stored pointers.
func clonePractice(p model.Practice) model.Practice {
	if p.TranscribedText != nil {
		t := *p.TranscribedText
		p.TranscribedText = &t
	}
	if p.Evaluation != nil {
		ev := *p.Evaluation
		ev.MissingWords = slices.Clone(ev.MissingWords)
		ev.AddedWords = slices.Clone(ev.AddedWords)
		ev.Strengths = slices.Clone(ev.Strengths)
		ev.AreasToImprove = slices.Clone(ev.AreasToImprove)
		p.Evaluation = &ev
	}
	return p
}
