package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState defines the lifecycle state of a hero-draft session.
type SessionState string

const (
	SessionStateWaitingForCaptains SessionState = "WAITING_FOR_CAPTAINS"
	SessionStateRolling            SessionState = "ROLLING"
	SessionStateDrafting           SessionState = "DRAFTING"
	SessionStatePaused             SessionState = "PAUSED"
	SessionStateResuming           SessionState = "RESUMING"
	SessionStateCompleted          SessionState = "COMPLETED"
)

// RoundState defines the state of a single ban/pick slot.
type RoundState string

const (
	RoundStatePending   RoundState = "PENDING"
	RoundStateActive    RoundState = "ACTIVE"
	RoundStateCompleted RoundState = "COMPLETED"
)

// ActionType defines what a round asks of its team.
type ActionType string

const (
	ActionTypeBan  ActionType = "BAN"
	ActionTypePick ActionType = "PICK"
)

// TeamSlot indexes into DraftSession.Teams. Slot ordering is fixed at
// session creation: slot A is always Teams[0].
type TeamSlot int

const (
	TeamSlotA TeamSlot = 0
	TeamSlotB TeamSlot = 1
)

// PatternStep is one entry of the ban/pick sequence, expressed relative to
// whichever team won first pick.
type PatternStep struct {
	First  bool       `json:"first" yaml:"first"`
	Action ActionType `json:"action" yaml:"action"`
}

// Settings holds the draft format configuration for a session. All time
// quantities are integer milliseconds.
type Settings struct {
	GraceTimeMs       int64         `json:"grace_time_ms" yaml:"grace_time_ms"`
	ReserveTimeMs     int64         `json:"reserve_time_ms" yaml:"reserve_time_ms"`
	ResumeCountdownMs int64         `json:"resume_countdown_ms" yaml:"resume_countdown_ms"`
	RollDurationMs    int64         `json:"roll_duration_ms" yaml:"roll_duration_ms"`
	Pattern           []PatternStep `json:"pattern" yaml:"pattern"`
}

// Validate rejects settings that would make a draft undraftable.
func (s Settings) Validate() error {
	if s.GraceTimeMs < 0 || s.ReserveTimeMs < 0 || s.ResumeCountdownMs < 0 || s.RollDurationMs < 0 {
		return errors.New("time settings must be non-negative")
	}
	if s.GraceTimeMs == 0 && s.ReserveTimeMs == 0 {
		return errors.New("grace and reserve time cannot both be zero")
	}
	if len(s.Pattern) == 0 {
		return errors.New("pattern must have at least one step")
	}
	for i, step := range s.Pattern {
		if step.Action != ActionTypeBan && step.Action != ActionTypePick {
			return fmt.Errorf("pattern step %d: unknown action %q", i+1, step.Action)
		}
	}
	return nil
}

// DraftTeamState is the mutable per-team status within a session. Owned
// exclusively by the session that contains it.
type DraftTeamState struct {
	TeamID                 uuid.UUID `json:"team_id"`
	CaptainID              uuid.UUID `json:"captain_id"`
	Name                   string    `json:"name,omitempty"`
	IsConnected            bool      `json:"is_connected"`
	IsReady                bool      `json:"is_ready"`
	ReserveTimeRemainingMs int64     `json:"reserve_time_remaining_ms"`
}

// DraftRound is one ban or pick slot. RoundNumber and DraftTeamID are fixed
// at session creation and never reassigned.
type DraftRound struct {
	ID          uuid.UUID  `json:"id"`
	RoundNumber int        `json:"round_number"`
	ActionType  ActionType `json:"action_type"`
	State       RoundState `json:"state"`
	DraftTeamID uuid.UUID  `json:"draft_team_id"`
	HeroID      *int       `json:"hero_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	GraceTimeMs int64      `json:"grace_time_ms"`
}

// DraftSession is one hero-draft instance tied to exactly one game.
//
// PausedAt is set only while PAUSED; ResumingUntil only while RESUMING.
// Transitions out of those states clear the corresponding field.
type DraftSession struct {
	ID            uuid.UUID         `json:"id"`
	GameID        uuid.UUID         `json:"game_id"`
	TournamentID  uuid.UUID         `json:"tournament_id"`
	State         SessionState      `json:"state"`
	Seed          int64             `json:"seed"`
	FirstPickSlot TeamSlot          `json:"first_pick_slot"`
	PausedAt      *time.Time        `json:"paused_at,omitempty"`
	ResumingUntil *time.Time        `json:"resuming_until,omitempty"`
	Teams         [2]DraftTeamState `json:"teams"`
	Rounds        []DraftRound      `json:"rounds"`
	Settings      Settings          `json:"settings"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ActiveRound returns the currently active round, or nil. At most one round
// is ACTIVE at any time.
func (s *DraftSession) ActiveRound() *DraftRound {
	for i := range s.Rounds {
		if s.Rounds[i].State == RoundStateActive {
			return &s.Rounds[i]
		}
	}
	return nil
}

// RoundByID returns the round with the given id, or nil.
func (s *DraftSession) RoundByID(id uuid.UUID) *DraftRound {
	for i := range s.Rounds {
		if s.Rounds[i].ID == id {
			return &s.Rounds[i]
		}
	}
	return nil
}

// NextPendingRound returns the first PENDING round in draft order, or nil.
func (s *DraftSession) NextPendingRound() *DraftRound {
	for i := range s.Rounds {
		if s.Rounds[i].State == RoundStatePending {
			return &s.Rounds[i]
		}
	}
	return nil
}

// TeamByID returns the team state for the given team id, or nil.
func (s *DraftSession) TeamByID(teamID uuid.UUID) *DraftTeamState {
	for i := range s.Teams {
		if s.Teams[i].TeamID == teamID {
			return &s.Teams[i]
		}
	}
	return nil
}

// BothReady reports whether both captains have latched ready.
func (s *DraftSession) BothReady() bool {
	return s.Teams[0].IsReady && s.Teams[1].IsReady
}

// HeroTaken reports whether a hero has already been picked or banned in a
// completed round of this session.
func (s *DraftSession) HeroTaken(heroID int) bool {
	for i := range s.Rounds {
		r := &s.Rounds[i]
		if r.State == RoundStateCompleted && r.HeroID != nil && *r.HeroID == heroID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the session. Stores hand out clones so no
// caller can mutate shared state outside the owning actor.
func (s *DraftSession) Clone() *DraftSession {
	out := *s
	out.PausedAt = copyTime(s.PausedAt)
	out.ResumingUntil = copyTime(s.ResumingUntil)
	out.Rounds = make([]DraftRound, len(s.Rounds))
	for i, r := range s.Rounds {
		out.Rounds[i] = r
		out.Rounds[i].HeroID = copyInt(r.HeroID)
		out.Rounds[i].StartedAt = copyTime(r.StartedAt)
	}
	out.Settings.Pattern = append([]PatternStep(nil), s.Settings.Pattern...)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
