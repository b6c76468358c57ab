package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/kettleofketchup/draftforge/internal/draft/events"
	"github.com/kettleofketchup/draftforge/internal/models"
)

// Authorizer answers whether a user may act on behalf of a team. Captains
// of the team and tournament admins qualify.
type Authorizer interface {
	CanActForTeam(actorID, teamID uuid.UUID) bool
}

// Engine is the transition function for a draft session. It never does its
// own locking or scheduling: the owning actor serializes calls and passes an
// explicit now, so every rule here is a pure state-plus-time computation.
type Engine struct {
	auth     Authorizer
	autoPick AutoPickStrategy
}

func New(auth Authorizer) *Engine {
	return &Engine{auth: auth, autoPick: SeededStrategy{}}
}

func NewWithStrategy(auth Authorizer, strat AutoPickStrategy) *Engine {
	return &Engine{auth: auth, autoPick: strat}
}

// SubmitReady latches a captain's ready flag during the handshake. Once both
// teams are ready the session moves to ROLLING.
func (e *Engine) SubmitReady(s *models.DraftSession, teamID, actorID uuid.UUID, now time.Time) ([]events.Event, error) {
	if s.State != models.SessionStateWaitingForCaptains {
		return nil, ErrInvalidTransition
	}
	team := s.TeamByID(teamID)
	if team == nil {
		return nil, ErrTeamNotFound
	}
	if !e.auth.CanActForTeam(actorID, teamID) {
		return nil, ErrUnauthorized
	}
	if team.IsReady {
		// Latched already; repeat submissions are no-ops.
		return nil, nil
	}
	team.IsReady = true
	s.UpdatedAt = now

	evs := []events.Event{ev(s, events.TypeCaptainReady, now, events.CaptainReadyPayload{
		TeamID:    teamID,
		BothReady: s.BothReady(),
	})}
	if s.BothReady() {
		s.State = models.SessionStateRolling
		evs = append(evs, ev(s, events.TypeDraftRolling, now, events.DraftRollingPayload{
			RollEndsAt: now.Add(time.Duration(s.Settings.RollDurationMs) * time.Millisecond),
		}))
	}
	return evs, nil
}

// CompleteRoll moves ROLLING to DRAFTING once the reveal countdown elapses
// and activates round one. First pick was already bound at creation, so this
// transition only starts the clock.
func (e *Engine) CompleteRoll(s *models.DraftSession, now time.Time) ([]events.Event, error) {
	if s.State != models.SessionStateRolling {
		return nil, ErrInvalidTransition
	}
	s.State = models.SessionStateDrafting
	first := &s.Rounds[0]
	first.State = models.RoundStateActive
	t := now
	first.StartedAt = &t
	s.UpdatedAt = now

	return []events.Event{ev(s, events.TypeDraftStarted, now, events.DraftStartedPayload{
		FirstPickTeamID: first.DraftTeamID,
		TotalRounds:     len(s.Rounds),
		StartedAt:       now,
	})}, nil
}

// SubmitPick applies a captain's (or admin's) choice for the active round.
// Reserve time is burned from absolute timestamps: whatever the captain
// spent beyond the round's grace allowance comes out of the team bank,
// clamped at zero.
func (e *Engine) SubmitPick(s *models.DraftSession, roundID, actorID uuid.UUID, heroID int, now time.Time) ([]events.Event, error) {
	if s.State != models.SessionStateDrafting {
		return nil, ErrInvalidTransition
	}
	round := s.RoundByID(roundID)
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if round.State != models.RoundStateActive {
		// Lost the race against a timeout (or a duplicate submission).
		return nil, ErrInvalidTransition
	}
	if !e.auth.CanActForTeam(actorID, round.DraftTeamID) {
		return nil, ErrUnauthorized
	}
	if _, ok := models.HeroByID(heroID); !ok || s.HeroTaken(heroID) {
		return nil, ErrHeroUnavailable
	}

	team := s.TeamByID(round.DraftTeamID)
	elapsed := now.Sub(*round.StartedAt).Milliseconds()
	if over := elapsed - round.GraceTimeMs; over > 0 {
		if over >= team.ReserveTimeRemainingMs {
			team.ReserveTimeRemainingMs = 0
		} else {
			team.ReserveTimeRemainingMs -= over
		}
	}

	return e.advance(s, round, heroID, false, now), nil
}

// RoundTimeout fires when a round's full allowance (grace plus the team's
// remaining reserve) elapses without a pick. A hero is auto-selected
// deterministically from the remaining pool and the draft advances exactly
// as for a human pick.
func (e *Engine) RoundTimeout(s *models.DraftSession, roundID uuid.UUID, now time.Time) ([]events.Event, error) {
	if s.State != models.SessionStateDrafting {
		return nil, ErrInvalidTransition
	}
	round := s.RoundByID(roundID)
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if round.State != models.RoundStateActive {
		return nil, ErrInvalidTransition
	}
	deadline, ok := RoundDeadline(s)
	if !ok || now.Before(deadline) {
		return nil, ErrInvalidTransition
	}

	heroID, err := e.autoPick.Select(s, round)
	if err != nil {
		return nil, err
	}
	team := s.TeamByID(round.DraftTeamID)
	team.ReserveTimeRemainingMs = 0

	evs := []events.Event{ev(s, events.TypeRoundTimeout, now, events.RoundTimeoutPayload{
		RoundNumber: round.RoundNumber,
		TeamID:      round.DraftTeamID,
	})}
	return append(evs, e.advance(s, round, heroID, true, now)...), nil
}

// advance completes the round and either activates the next one or finishes
// the draft.
func (e *Engine) advance(s *models.DraftSession, round *models.DraftRound, heroID int, auto bool, now time.Time) []events.Event {
	round.HeroID = &heroID
	round.State = models.RoundStateCompleted
	team := s.TeamByID(round.DraftTeamID)
	s.UpdatedAt = now

	evs := []events.Event{ev(s, events.TypeHeroSelected, now, events.HeroSelectedPayload{
		RoundNumber:        round.RoundNumber,
		TeamID:             round.DraftTeamID,
		ActionType:         string(round.ActionType),
		HeroID:             heroID,
		AutoSelected:       auto,
		ReserveRemainingMs: team.ReserveTimeRemainingMs,
	})}

	if next := s.NextPendingRound(); next != nil {
		next.State = models.RoundStateActive
		t := now
		next.StartedAt = &t
		return evs
	}

	s.State = models.SessionStateCompleted
	return append(evs, ev(s, events.TypeDraftCompleted, now, events.DraftCompletedPayload{
		CompletedAt: now,
		TotalRounds: len(s.Rounds),
	}))
}

// Connect marks a team's captain as attached. Idempotent; never emits.
func (e *Engine) Connect(s *models.DraftSession, teamID uuid.UUID, now time.Time) error {
	team := s.TeamByID(teamID)
	if team == nil {
		return ErrTeamNotFound
	}
	if s.State == models.SessionStateCompleted {
		return nil
	}
	team.IsConnected = true
	s.UpdatedAt = now
	return nil
}

// Disconnect records a captain-attributed connection loss. Only a loss
// during DRAFTING pauses the draft; while ROLLING or RESUMING the flag is
// updated but the state never changes, so a captain cannot stall the draft
// by dropping during a countdown. A second disconnect while already PAUSED
// is a no-op beyond the flag.
func (e *Engine) Disconnect(s *models.DraftSession, teamID uuid.UUID, now time.Time) ([]events.Event, error) {
	team := s.TeamByID(teamID)
	if team == nil {
		return nil, ErrTeamNotFound
	}
	if s.State == models.SessionStateCompleted {
		return nil, nil
	}
	team.IsConnected = false
	s.UpdatedAt = now

	if s.State != models.SessionStateDrafting {
		return nil, nil
	}
	s.State = models.SessionStatePaused
	t := now
	s.PausedAt = &t
	return []events.Event{ev(s, events.TypeDraftPaused, now, events.DraftPausedPayload{
		TeamID:   teamID,
		PausedAt: now,
	})}, nil
}

// RequestResume starts the resume countdown. The active round's StartedAt is
// shifted forward by the full pause duration plus the countdown, so once
// DRAFTING resumes the round has consumed exactly as much wall clock as it
// had before the pause.
func (e *Engine) RequestResume(s *models.DraftSession, actorID uuid.UUID, now time.Time) ([]events.Event, error) {
	if s.State != models.SessionStatePaused {
		return nil, ErrInvalidTransition
	}
	if !e.auth.CanActForTeam(actorID, s.Teams[0].TeamID) && !e.auth.CanActForTeam(actorID, s.Teams[1].TeamID) {
		return nil, ErrUnauthorized
	}

	countdown := time.Duration(s.Settings.ResumeCountdownMs) * time.Millisecond
	pausedFor := now.Sub(*s.PausedAt)
	if round := s.ActiveRound(); round != nil && round.StartedAt != nil {
		shifted := round.StartedAt.Add(pausedFor + countdown)
		round.StartedAt = &shifted
	}

	until := now.Add(countdown)
	s.ResumingUntil = &until
	s.PausedAt = nil
	s.State = models.SessionStateResuming
	s.UpdatedAt = now

	return []events.Event{ev(s, events.TypeDraftResumed, now, events.DraftResumedPayload{
		PausedForMs:   pausedFor.Milliseconds(),
		ResumingUntil: until,
	})}, nil
}

// CompleteResume finishes the countdown and returns to DRAFTING. All timing
// adjustment happened in RequestResume; nothing shifts here.
func (e *Engine) CompleteResume(s *models.DraftSession, now time.Time) ([]events.Event, error) {
	if s.State != models.SessionStateResuming {
		return nil, ErrInvalidTransition
	}
	if now.Before(*s.ResumingUntil) {
		return nil, ErrInvalidTransition
	}
	s.State = models.SessionStateDrafting
	s.ResumingUntil = nil
	s.UpdatedAt = now

	return []events.Event{ev(s, events.TypeResumeCompleted, now, events.ResumeCompletedPayload{
		ResumedAt: now,
	})}, nil
}

// Reset is the administrative full reset: the event log is cleared by the
// caller, rounds are regenerated identically from the stored seed, ready
// flags drop, and both reserve banks are restored. Connection flags are
// left alone since they mirror live sockets.
func (e *Engine) Reset(s *models.DraftSession, now time.Time) ([]events.Event, error) {
	for i := range s.Teams {
		s.Teams[i].IsReady = false
		s.Teams[i].ReserveTimeRemainingMs = s.Settings.ReserveTimeMs
	}
	s.Rounds = GenerateRounds(s.ID, s.Settings, s.Teams, s.FirstPickSlot)
	s.State = models.SessionStateWaitingForCaptains
	s.PausedAt = nil
	s.ResumingUntil = nil
	s.UpdatedAt = now

	return []events.Event{ev(s, events.TypeDraftReset, now, events.DraftResetPayload{
		ResetAt: now,
	})}, nil
}

// RoundDeadline computes the absolute instant the active round times out:
// StartedAt plus grace plus the acting team's reserve bank. Recomputed from
// timestamps on every use so repeated pause/resume cycles cannot accumulate
// drift.
func RoundDeadline(s *models.DraftSession) (time.Time, bool) {
	round := s.ActiveRound()
	if round == nil || round.StartedAt == nil {
		return time.Time{}, false
	}
	team := s.TeamByID(round.DraftTeamID)
	if team == nil {
		return time.Time{}, false
	}
	allowance := time.Duration(round.GraceTimeMs+team.ReserveTimeRemainingMs) * time.Millisecond
	return round.StartedAt.Add(allowance), true
}

func ev(s *models.DraftSession, t events.Type, now time.Time, payload any) events.Event {
	return events.Event{Type: t, SessionID: s.ID, OccurredAt: now, Payload: payload}
}
