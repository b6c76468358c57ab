package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of domain events emitted by the draft engine.
type Type string

const (
	TypeCaptainReady     Type = "captain_ready"
	TypeDraftRolling     Type = "draft_rolling"
	TypeDraftStarted     Type = "draft_started"
	TypeHeroSelected     Type = "hero_selected"
	TypeRoundTimeout     Type = "round_timeout"
	TypeDraftPaused      Type = "draft_paused"
	TypeDraftResumed     Type = "draft_resumed"
	TypeResumeCompleted  Type = "draft_resume_completed"
	TypeDraftCompleted   Type = "draft_completed"
	TypeDraftReset       Type = "draft_reset"
)

// Event is one domain event produced by a state transition. Payload holds
// exactly one of the typed payload structs below.
type Event struct {
	Type       Type
	SessionID  uuid.UUID
	OccurredAt time.Time
	Payload    any
}

// CaptainReadyPayload is the payload for a captain_ready event.
type CaptainReadyPayload struct {
	TeamID    uuid.UUID `json:"team_id"`
	BothReady bool      `json:"both_ready"`
}

// DraftRollingPayload is the payload for a draft_rolling event.
type DraftRollingPayload struct {
	RollEndsAt time.Time `json:"roll_ends_at"`
}

// DraftStartedPayload is the payload for a draft_started event.
type DraftStartedPayload struct {
	FirstPickTeamID uuid.UUID `json:"first_pick_team_id"`
	TotalRounds     int       `json:"total_rounds"`
	StartedAt       time.Time `json:"started_at"`
}

// HeroSelectedPayload is the payload for a hero_selected event.
type HeroSelectedPayload struct {
	RoundNumber       int       `json:"round_number"`
	TeamID            uuid.UUID `json:"team_id"`
	ActionType        string    `json:"action_type"`
	HeroID            int       `json:"hero_id"`
	AutoSelected      bool      `json:"auto_selected"`
	ReserveRemainingMs int64    `json:"reserve_remaining_ms"`
}

// RoundTimeoutPayload is the payload for a round_timeout event.
type RoundTimeoutPayload struct {
	RoundNumber int       `json:"round_number"`
	TeamID      uuid.UUID `json:"team_id"`
}

// DraftPausedPayload is the payload for a draft_paused event.
type DraftPausedPayload struct {
	TeamID   uuid.UUID `json:"team_id"`
	PausedAt time.Time `json:"paused_at"`
}

// DraftResumedPayload is the payload for a draft_resumed event.
type DraftResumedPayload struct {
	PausedForMs   int64     `json:"paused_for_ms"`
	ResumingUntil time.Time `json:"resuming_until"`
}

// ResumeCompletedPayload is the payload for a draft_resume_completed event.
type ResumeCompletedPayload struct {
	ResumedAt time.Time `json:"resumed_at"`
}

// DraftCompletedPayload is the payload for a draft_completed event.
type DraftCompletedPayload struct {
	CompletedAt time.Time `json:"completed_at"`
	TotalRounds int       `json:"total_rounds"`
}

// DraftResetPayload is the payload for a draft_reset event.
type DraftResetPayload struct {
	ResetAt time.Time `json:"reset_at"`
}

// MarshalPayload serializes an event's payload, rejecting anything outside
// the closed payload set so a new event type cannot silently reach the wire
// without being added here.
func MarshalPayload(e Event) (json.RawMessage, error) {
	switch p := e.Payload.(type) {
	case CaptainReadyPayload, DraftRollingPayload, DraftStartedPayload,
		HeroSelectedPayload, RoundTimeoutPayload, DraftPausedPayload,
		DraftResumedPayload, ResumeCompletedPayload, DraftCompletedPayload,
		DraftResetPayload:
		return json.Marshal(p)
	case nil:
		return json.RawMessage(`{}`), nil
	default:
		return nil, fmt.Errorf("unknown event payload type %T for %s", p, e.Type)
	}
}
