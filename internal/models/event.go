package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DraftEvent is one append-only entry in a session's event log. Entries are
// created, never mutated, and removed only by an administrative reset of the
// whole session.
type DraftEvent struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
