package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kettleofketchup/draftforge/internal/models"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrVersionConflict is returned when a save carries a stale version.
	// The caller reloads and retries the transition against fresh state.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store persists full session snapshots with optimistic concurrency. Load
// returns the snapshot together with the version a later Save must present.
type Store interface {
	Create(ctx context.Context, s *models.DraftSession) error
	Load(ctx context.Context, id uuid.UUID) (*models.DraftSession, int64, error)
	Save(ctx context.Context, s *models.DraftSession, expectedVersion int64) (int64, error)
	AppendEvents(ctx context.Context, sessionID uuid.UUID, evs []models.DraftEvent) error
	Events(ctx context.Context, sessionID uuid.UUID) ([]models.DraftEvent, error)
	ClearEvents(ctx context.Context, sessionID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}
