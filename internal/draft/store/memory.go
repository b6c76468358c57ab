package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kettleofketchup/draftforge/internal/models"
)

// MemoryStore is the in-process Store used in tests and single-node
// deployments. Snapshots are deep-copied both ways so callers never share
// mutable state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*memoryEntry
	events   map[uuid.UUID][]models.DraftEvent
}

type memoryEntry struct {
	session *models.DraftSession
	version int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*memoryEntry),
		events:   make(map[uuid.UUID][]models.DraftEvent),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *models.DraftSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &memoryEntry{session: s.Clone(), version: 1}
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, id uuid.UUID) (*models.DraftSession, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return entry.session.Clone(), entry.version, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *models.DraftSession, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[s.ID]
	if !ok {
		return 0, ErrNotFound
	}
	if entry.version != expectedVersion {
		return 0, ErrVersionConflict
	}
	entry.session = s.Clone()
	entry.version++
	return entry.version, nil
}

func (m *MemoryStore) AppendEvents(ctx context.Context, sessionID uuid.UUID, evs []models.DraftEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[sessionID] = append(m.events[sessionID], evs...)
	return nil
}

func (m *MemoryStore) Events(ctx context.Context, sessionID uuid.UUID) ([]models.DraftEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DraftEvent(nil), m.events[sessionID]...), nil
}

func (m *MemoryStore) ClearEvents(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, sessionID)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.events, id)
	return nil
}
