package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kettleofketchup/draftforge/internal/models"
)

// PostgresStore persists session snapshots as JSONB documents with a version
// column for optimistic concurrency.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS hero_draft_sessions (
    id         UUID PRIMARY KEY,
    snapshot   JSONB NOT NULL,
    version    BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS hero_draft_events (
    id         UUID PRIMARY KEY,
    session_id UUID NOT NULL,
    event_type TEXT NOT NULL,
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hero_draft_events_session
    ON hero_draft_events (session_id, created_at);
`

// EnsureSchema creates the backing tables if they do not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *models.DraftSession) error {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO hero_draft_sessions (id, snapshot, version, updated_at) VALUES ($1, $2, 1, $3)`,
		s.ID, snapshot, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, id uuid.UUID) (*models.DraftSession, int64, error) {
	var snapshot []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT snapshot, version FROM hero_draft_sessions WHERE id = $1`, id).
		Scan(&snapshot, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load session: %w", err)
	}
	var s models.DraftSession
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return nil, 0, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, version, nil
}

func (p *PostgresStore) Save(ctx context.Context, s *models.DraftSession, expectedVersion int64) (int64, error) {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("marshal session: %w", err)
	}
	var newVersion int64
	err = p.pool.QueryRow(ctx,
		`UPDATE hero_draft_sessions
		    SET snapshot = $2, version = version + 1, updated_at = $3
		  WHERE id = $1 AND version = $4
		  RETURNING version`,
		s.ID, snapshot, s.UpdatedAt, expectedVersion).
		Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or stale; disambiguate for the caller.
		var exists bool
		if qerr := p.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM hero_draft_sessions WHERE id = $1)`, s.ID).
			Scan(&exists); qerr != nil {
			return 0, fmt.Errorf("save session: %w", qerr)
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("save session: %w", err)
	}
	return newVersion, nil
}

func (p *PostgresStore) AppendEvents(ctx context.Context, sessionID uuid.UUID, evs []models.DraftEvent) error {
	if len(evs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range evs {
		batch.Queue(
			`INSERT INTO hero_draft_events (id, session_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.SessionID, e.EventType, []byte(e.Payload), e.CreatedAt)
	}
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range evs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) Events(ctx context.Context, sessionID uuid.UUID) ([]models.DraftEvent, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, session_id, event_type, payload, created_at
		   FROM hero_draft_events WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []models.DraftEvent
	for rows.Next() {
		var e models.DraftEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ClearEvents(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM hero_draft_events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := p.ClearEvents(ctx, id); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM hero_draft_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
