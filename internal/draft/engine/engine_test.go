package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kettleofketchup/draftforge/internal/draft/events"
	"github.com/kettleofketchup/draftforge/internal/models"
)

var (
	teamA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	teamB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	capA  = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	capB  = uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
)

// captainRoster authorizes each captain for exactly their own team.
type captainRoster struct{}

func (captainRoster) CanActForTeam(actorID, teamID uuid.UUID) bool {
	switch teamID {
	case teamA:
		return actorID == capA
	case teamB:
		return actorID == capB
	}
	return false
}

func testSettings() models.Settings {
	return models.Settings{
		GraceTimeMs:       5000,
		ReserveTimeMs:     10000,
		ResumeCountdownMs: 3000,
		RollDurationMs:    5000,
		Pattern: []models.PatternStep{
			{First: true, Action: models.ActionTypeBan},
			{First: false, Action: models.ActionTypeBan},
			{First: true, Action: models.ActionTypePick},
			{First: false, Action: models.ActionTypePick},
		},
	}
}

func newTestSession(t *testing.T) *models.DraftSession {
	t.Helper()
	return NewSession(CreateSessionRequest{
		GameID:       uuid.New(),
		TournamentID: uuid.New(),
		Seed:         42,
		TeamA:        TeamInfo{TeamID: teamA, CaptainID: capA, Name: "Radiant"},
		TeamB:        TeamInfo{TeamID: teamB, CaptainID: capB, Name: "Dire"},
	}, testSettings(), baseTime())
}

func baseTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// captainOf maps a team id to its captain's id.
func captainOf(teamID uuid.UUID) uuid.UUID {
	if teamID == teamA {
		return capA
	}
	return capB
}

// startDrafting walks a fresh session through the ready handshake and the
// roll reveal so round one is active at the returned time.
func startDrafting(t *testing.T, e *Engine, s *models.DraftSession) time.Time {
	t.Helper()
	now := baseTime()
	_, err := e.SubmitReady(s, teamA, capA, now)
	require.NoError(t, err)
	_, err = e.SubmitReady(s, teamB, capB, now)
	require.NoError(t, err)
	require.Equal(t, models.SessionStateRolling, s.State)

	now = now.Add(time.Duration(s.Settings.RollDurationMs) * time.Millisecond)
	_, err = e.CompleteRoll(s, now)
	require.NoError(t, err)
	require.Equal(t, models.SessionStateDrafting, s.State)
	return now
}

func activeRounds(s *models.DraftSession) int {
	n := 0
	for _, r := range s.Rounds {
		if r.State == models.RoundStateActive {
			n++
		}
	}
	return n
}

func TestSubmitReadyLatchesAndRolls(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := baseTime()

	evs, err := e.SubmitReady(s, teamA, capA, now)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeCaptainReady, evs[0].Type)
	assert.Equal(t, models.SessionStateWaitingForCaptains, s.State)
	assert.True(t, s.Teams[0].IsReady)

	// Ready is a latch: resubmitting neither errors nor emits.
	evs, err = e.SubmitReady(s, teamA, capA, now)
	require.NoError(t, err)
	assert.Empty(t, evs)

	evs, err = e.SubmitReady(s, teamB, capB, now)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeCaptainReady, evs[0].Type)
	assert.Equal(t, events.TypeDraftRolling, evs[1].Type)
	assert.Equal(t, models.SessionStateRolling, s.State)
}

func TestSubmitReadyRejections(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := baseTime()

	_, err := e.SubmitReady(s, teamA, capB, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.SubmitReady(s, uuid.New(), capA, now)
	assert.ErrorIs(t, err, ErrTeamNotFound)

	startDrafting(t, e, s)
	_, err = e.SubmitReady(s, teamA, capA, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteRollActivatesFirstRound(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	require.Equal(t, 1, activeRounds(s))
	first := s.ActiveRound()
	require.NotNil(t, first)
	assert.Equal(t, 1, first.RoundNumber)
	assert.Equal(t, s.Teams[s.FirstPickSlot].TeamID, first.DraftTeamID)
	require.NotNil(t, first.StartedAt)
	assert.True(t, first.StartedAt.Equal(now))
}

func TestSubmitPickWithinGraceKeepsReserve(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	round := s.ActiveRound()
	team := s.TeamByID(round.DraftTeamID)
	before := team.ReserveTimeRemainingMs

	now = now.Add(4 * time.Second)
	evs, err := e.SubmitPick(s, round.ID, captainOf(round.DraftTeamID), 1, now)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeHeroSelected, evs[0].Type)
	assert.Equal(t, before, team.ReserveTimeRemainingMs)
	assert.Equal(t, models.RoundStateCompleted, round.State)
}

func TestSubmitPickBurnsReserve(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	round := s.ActiveRound()
	team := s.TeamByID(round.DraftTeamID)

	// 4 seconds past the grace window comes out of the bank.
	now = now.Add(9 * time.Second)
	_, err := e.SubmitPick(s, round.ID, captainOf(round.DraftTeamID), 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), team.ReserveTimeRemainingMs)
}

func TestSubmitPickClampsReserveAtZero(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	round := s.ActiveRound()
	team := s.TeamByID(round.DraftTeamID)

	now = now.Add(60 * time.Second)
	_, err := e.SubmitPick(s, round.ID, captainOf(round.DraftTeamID), 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), team.ReserveTimeRemainingMs)
}

func TestSubmitPickRejections(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	round := s.ActiveRound()
	captain := captainOf(round.DraftTeamID)
	other := capA
	if captain == capA {
		other = capB
	}

	_, err := e.SubmitPick(s, round.ID, other, 1, now)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.SubmitPick(s, uuid.New(), captain, 1, now)
	assert.ErrorIs(t, err, ErrRoundNotFound)

	// 24 is a gap in the hero table.
	_, err = e.SubmitPick(s, round.ID, captain, 24, now)
	assert.ErrorIs(t, err, ErrHeroUnavailable)

	_, err = e.SubmitPick(s, round.ID, captain, 1, now)
	require.NoError(t, err)

	// Round already settled.
	_, err = e.SubmitPick(s, round.ID, captain, 2, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Hero 1 is gone for the rest of the draft.
	next := s.ActiveRound()
	_, err = e.SubmitPick(s, next.ID, captainOf(next.DraftTeamID), 1, now)
	assert.ErrorIs(t, err, ErrHeroUnavailable)
}

func TestRoundTimeoutAutoPicksAndZeroesReserve(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	round := s.ActiveRound()
	team := s.TeamByID(round.DraftTeamID)

	deadline, ok := RoundDeadline(s)
	require.True(t, ok)
	assert.True(t, deadline.Equal(now.Add(15*time.Second)))

	_, err := e.RoundTimeout(s, round.ID, deadline.Add(-time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidTransition, "deadline not reached yet")

	evs, err := e.RoundTimeout(s, round.ID, deadline)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeRoundTimeout, evs[0].Type)
	assert.Equal(t, events.TypeHeroSelected, evs[1].Type)

	payload := evs[1].Payload.(events.HeroSelectedPayload)
	assert.True(t, payload.AutoSelected)
	assert.Equal(t, int64(0), team.ReserveTimeRemainingMs)
	assert.Equal(t, models.RoundStateCompleted, round.State)
	require.NotNil(t, round.HeroID)

	// The same seed replays the same auto-selection.
	s2 := newTestSession(t)
	startDrafting(t, e, s2)
	evs2, err := e.RoundTimeout(s2.Clone(), s2.Rounds[0].ID, deadline)
	require.NoError(t, err)
	assert.Equal(t, payload.HeroID, evs2[1].Payload.(events.HeroSelectedPayload).HeroID)
}

func TestExactlyOneActiveRoundThroughout(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	hero := 1
	for s.State == models.SessionStateDrafting {
		require.Equal(t, 1, activeRounds(s))
		round := s.ActiveRound()
		_, err := e.SubmitPick(s, round.ID, captainOf(round.DraftTeamID), hero, now)
		require.NoError(t, err)
		hero++
	}

	assert.Equal(t, models.SessionStateCompleted, s.State)
	assert.Equal(t, 0, activeRounds(s))
	for _, r := range s.Rounds {
		assert.Equal(t, models.RoundStateCompleted, r.State)
		assert.NotNil(t, r.HeroID)
	}
}

func TestDraftCompletedEvent(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	var last []events.Event
	for i := 0; s.State == models.SessionStateDrafting; i++ {
		round := s.ActiveRound()
		evs, err := e.SubmitPick(s, round.ID, captainOf(round.DraftTeamID), i+1, now)
		require.NoError(t, err)
		last = evs
	}
	require.Len(t, last, 2)
	assert.Equal(t, events.TypeDraftCompleted, last[1].Type)
}

func TestDisconnectDuringDraftingPauses(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	evs, err := e.Disconnect(s, teamA, now)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeDraftPaused, evs[0].Type)
	assert.Equal(t, models.SessionStatePaused, s.State)
	require.NotNil(t, s.PausedAt)
	assert.False(t, s.Teams[0].IsConnected)

	// Second team dropping while already paused changes nothing but the flag.
	evs, err = e.Disconnect(s, teamB, now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Equal(t, models.SessionStatePaused, s.State)
	assert.True(t, s.PausedAt.Equal(now))
}

func TestDisconnectDuringCountdownsNeverPauses(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := baseTime()

	// ROLLING: a drop cannot stall the reveal.
	_, err := e.SubmitReady(s, teamA, capA, now)
	require.NoError(t, err)
	_, err = e.SubmitReady(s, teamB, capB, now)
	require.NoError(t, err)
	require.Equal(t, models.SessionStateRolling, s.State)

	evs, err := e.Disconnect(s, teamA, now)
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Equal(t, models.SessionStateRolling, s.State)
	assert.Nil(t, s.PausedAt)

	// RESUMING: same rule during the resume countdown.
	now = now.Add(time.Duration(s.Settings.RollDurationMs) * time.Millisecond)
	_, err = e.CompleteRoll(s, now)
	require.NoError(t, err)
	_, err = e.Disconnect(s, teamA, now)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatePaused, s.State)
	_, err = e.RequestResume(s, capB, now.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, models.SessionStateResuming, s.State)

	evs, err = e.Disconnect(s, teamB, now.Add(3*time.Second))
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Equal(t, models.SessionStateResuming, s.State)
}

func TestDisconnectBeforeDraftDoesNotPause(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)

	evs, err := e.Disconnect(s, teamA, baseTime())
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.Equal(t, models.SessionStateWaitingForCaptains, s.State)
}

func TestResumeShiftsRoundClock(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	t0 := startDrafting(t, e, s)

	round := s.ActiveRound()
	started := *round.StartedAt

	t1 := t0.Add(7 * time.Second)
	_, err := e.Disconnect(s, teamA, t1)
	require.NoError(t, err)

	t2 := t1.Add(42 * time.Second)
	evs, err := e.RequestResume(s, capA, t2)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeDraftResumed, evs[0].Type)
	assert.Equal(t, models.SessionStateResuming, s.State)
	assert.Nil(t, s.PausedAt)

	countdown := time.Duration(s.Settings.ResumeCountdownMs) * time.Millisecond
	require.NotNil(t, s.ResumingUntil)
	assert.True(t, s.ResumingUntil.Equal(t2.Add(countdown)))

	// StartedAt moved forward by the pause duration plus the countdown, so
	// the captain resumes with exactly the time they had left.
	wantStart := started.Add(t2.Sub(t1) + countdown)
	assert.True(t, round.StartedAt.Equal(wantStart))

	_, err = e.CompleteResume(s, s.ResumingUntil.Add(-time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.CompleteResume(s, *s.ResumingUntil)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateDrafting, s.State)
	assert.Nil(t, s.ResumingUntil)

	// After the resume the elapsed round time equals what had passed
	// before the pause.
	deadline, ok := RoundDeadline(s)
	require.True(t, ok)
	assert.True(t, deadline.Equal(wantStart.Add(15*time.Second)))
}

func TestRequestResumeRejections(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	now := startDrafting(t, e, s)

	_, err := e.RequestResume(s, capA, now)
	assert.ErrorIs(t, err, ErrInvalidTransition, "not paused")

	_, err = e.Disconnect(s, teamA, now)
	require.NoError(t, err)

	_, err = e.RequestResume(s, uuid.New(), now.Add(time.Second))
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Either captain may resume, not only the one who dropped.
	_, err = e.RequestResume(s, capB, now.Add(time.Second))
	require.NoError(t, err)
}

func TestResetRegeneratesIdenticalDraft(t *testing.T) {
	e := New(captainRoster{})
	s := newTestSession(t)
	original := s.Clone()
	now := startDrafting(t, e, s)

	round := s.ActiveRound()
	_, err := e.SubmitPick(s, round.ID, captainOf(round.DraftTeamID), 1, now.Add(8*time.Second))
	require.NoError(t, err)

	evs, err := e.Reset(s, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeDraftReset, evs[0].Type)

	assert.Equal(t, models.SessionStateWaitingForCaptains, s.State)
	assert.Equal(t, original.FirstPickSlot, s.FirstPickSlot)
	for i := range s.Teams {
		assert.False(t, s.Teams[i].IsReady)
		assert.Equal(t, testSettings().ReserveTimeMs, s.Teams[i].ReserveTimeRemainingMs)
	}

	// Same seed, same session id: the regenerated rounds are identical.
	require.Len(t, s.Rounds, len(original.Rounds))
	for i, r := range s.Rounds {
		assert.Equal(t, original.Rounds[i].ID, r.ID)
		assert.Equal(t, original.Rounds[i].DraftTeamID, r.DraftTeamID)
		assert.Equal(t, original.Rounds[i].ActionType, r.ActionType)
		assert.Equal(t, models.RoundStatePending, r.State)
		assert.Nil(t, r.HeroID)
		assert.Nil(t, r.StartedAt)
	}
}
