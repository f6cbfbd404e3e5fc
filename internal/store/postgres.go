package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/reliability"
)

const connectAttempts = 5

// PostgresStore persists materials and practices in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// ping waits for the database, which may still be starting next to us.
func ping(ctx context.Context, pool *pgxpool.Pool) error {
	var err error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 3*time.Second)):
		}
	}
	return fmt.Errorf("ping postgres: %w", err)
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS materials (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			audio_path TEXT NOT NULL DEFAULT '',
			duration DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (duration >= 0),
			thumbnail_path TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			material_id TEXT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL CHECK (end_time >= start_time),
			audio_path TEXT NOT NULL DEFAULT '',
			UNIQUE (material_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS practices (
			id TEXT PRIMARY KEY,
			segment_id TEXT NOT NULL REFERENCES segments(id) ON DELETE CASCADE,
			recording_path TEXT NOT NULL,
			transcribed_text TEXT,
			evaluation JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_materials_created ON materials (created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_practices_segment_created ON practices (segment_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveMaterial(ctx context.Context, m model.Material, segments []model.Segment) (model.Material, error) {
	if err := m.Validate(); err != nil {
		return model.Material{}, fmt.Errorf("invalid material: %w", err)
	}
	segs, err := prepareSegments(segments)
	if err != nil {
		return model.Material{}, err
	}
	m.ID = uuid.NewString()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Material{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO materials (id, title, source_kind, source_url, audio_path, duration, thumbnail_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Title, string(m.SourceKind), m.SourceURL, m.AudioPath, m.Duration, m.ThumbnailPath, m.CreatedAt,
	)
	if err != nil {
		return model.Material{}, fmt.Errorf("insert material: %w", err)
	}

	batch := &pgx.Batch{}
	for _, seg := range segs {
		batch.Queue(
			`INSERT INTO segments (id, material_id, position, text, start_time, end_time, audio_path)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), m.ID, seg.Position, seg.Text, seg.StartTime, seg.EndTime, seg.AudioPath,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return model.Material{}, fmt.Errorf("insert segments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Material{}, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

const materialColumns = `id, title, source_kind, source_url, audio_path, duration, thumbnail_path, created_at`

func scanMaterial(row pgx.Row) (model.Material, error) {
	var m model.Material
	var kind string
	if err := row.Scan(&m.ID, &m.Title, &kind, &m.SourceURL, &m.AudioPath, &m.Duration, &m.ThumbnailPath, &m.CreatedAt); err != nil {
		return model.Material{}, err
	}
	m.SourceKind = model.SourceKind(kind)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *PostgresStore) GetMaterial(ctx context.Context, id string) (model.Material, error) {
	m, err := scanMaterial(s.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Material{}, fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Material{}, fmt.Errorf("get material: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMaterials(ctx context.Context) ([]model.Material, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	out := []model.Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan material row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate material rows: %w", err)
	}
	return out, nil
}

const segmentColumns = `id, material_id, position, text, start_time, end_time, audio_path`

func scanSegment(row pgx.Row) (model.Segment, error) {
	var seg model.Segment
	err := row.Scan(&seg.ID, &seg.MaterialID, &seg.Position, &seg.Text, &seg.StartTime, &seg.EndTime, &seg.AudioPath)
	return seg, err
}

func (s *PostgresStore) MaterialSegments(ctx context.Context, materialID string) ([]model.Segment, error) {
	if _, err := s.GetMaterial(ctx, materialID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+segmentColumns+` FROM segments WHERE material_id=$1 ORDER BY position`, materialID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	out := []model.Segment{}
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment row: %w", err)
		}
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteMaterial(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM materials WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetSegment(ctx context.Context, id string) (model.Segment, error) {
	seg, err := scanSegment(s.pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Segment{}, fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Segment{}, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

func (s *PostgresStore) CreatePractice(ctx context.Context, segmentID, recordingPath string) (model.Practice, error) {
	if _, err := s.GetSegment(ctx, segmentID); err != nil {
		return model.Practice{}, err
	}
	p := model.Practice{
		ID:            uuid.NewString(),
		SegmentID:     segmentID,
		RecordingPath: recordingPath,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO practices (id, segment_id, recording_path, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.SegmentID, p.RecordingPath, p.CreatedAt,
	)
	if err != nil {
		return model.Practice{}, fmt.Errorf("insert practice: %w", err)
	}
	return p, nil
}

const practiceColumns = `id, segment_id, recording_path, transcribed_text, evaluation, created_at`

func scanPractice(row pgx.Row) (model.Practice, error) {
	var p model.Practice
	var evalJSON []byte
	if err := row.Scan(&p.ID, &p.SegmentID, &p.RecordingPath, &p.TranscribedText, &evalJSON, &p.CreatedAt); err != nil {
		return model.Practice{}, err
	}
	if len(evalJSON) > 0 {
		var ev model.Evaluation
		if err := json.Unmarshal(evalJSON, &ev); err != nil {
			return model.Practice{}, fmt.Errorf("decode evaluation: %w", err)
		}
		p.Evaluation = &ev
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *PostgresStore) GetPractice(ctx context.Context, id string) (model.Practice, error) {
	p, err := scanPractice(s.pool.QueryRow(ctx, `SELECT `+practiceColumns+` FROM practices WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Practice{}, fmt.Errorf("practice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Practice{}, fmt.Errorf("get practice: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPractices(ctx context.Context, segmentID string) ([]model.Practice, error) {
	if _, err := s.GetSegment(ctx, segmentID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+practiceColumns+` FROM practices WHERE segment_id=$1 ORDER BY created_at DESC, id`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("query practices: %w", err)
	}
	defer rows.Close()

	out := []model.Practice{}
	for rows.Next() {
		p, err := scanPractice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan practice row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate practice rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdatePractice(ctx context.Context, id, transcribedText string, ev model.Evaluation) (model.Practice, error) {
	evalJSON, err := json.Marshal(ev)
	if err != nil {
		return model.Practice{}, fmt.Errorf("encode evaluation: %w", err)
	}
	p, err := scanPractice(s.pool.QueryRow(ctx,
		`UPDATE practices SET transcribed_text=$2, evaluation=$3 WHERE id=$1 RETURNING `+practiceColumns,
		id, transcribedText, string(evalJSON),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Practice{}, fmt.Errorf("practice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Practice{}, fmt.Errorf("update practice: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
