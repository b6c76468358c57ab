package session

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kettleofketchup/draftforge/internal/draft/broadcast"
	"github.com/kettleofketchup/draftforge/internal/draft/engine"
	"github.com/kettleofketchup/draftforge/internal/draft/roster"
	"github.com/kettleofketchup/draftforge/internal/draft/store"
	"github.com/kettleofketchup/draftforge/internal/models"
)

const (
	pollTimeout  = 2 * time.Second
	pollInterval = 5 * time.Millisecond
)

type harness struct {
	clock    *clockwork.FakeClock
	store    *store.MemoryStore
	registry *Registry
	session  *models.DraftSession
	actor    *Actor

	teamA, teamB uuid.UUID
	capA, capB   uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		clock: clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		store: store.NewMemoryStore(),
		teamA: uuid.New(),
		teamB: uuid.New(),
		capA:  uuid.New(),
		capB:  uuid.New(),
	}

	ros := roster.New()
	ros.RegisterTeam(h.teamA, h.capA)
	ros.RegisterTeam(h.teamB, h.capB)

	seq := broadcast.NewSequencer()
	go seq.Start(ctx)

	h.registry = NewRegistry(ctx, engine.New(ros), h.store, seq, h.clock)

	settings := models.Settings{
		GraceTimeMs:       5000,
		ReserveTimeMs:     10000,
		ResumeCountdownMs: 3000,
		RollDurationMs:    5000,
		Pattern: []models.PatternStep{
			{First: true, Action: models.ActionTypeBan},
			{First: false, Action: models.ActionTypePick},
		},
	}
	s, err := h.registry.Create(ctx, engine.CreateSessionRequest{
		GameID: uuid.New(),
		Seed:   42,
		TeamA:  engine.TeamInfo{TeamID: h.teamA, CaptainID: h.capA},
		TeamB:  engine.TeamInfo{TeamID: h.teamB, CaptainID: h.capB},
	}, settings)
	require.NoError(t, err)
	h.session = s

	h.actor, err = h.registry.Get(ctx, s.ID)
	require.NoError(t, err)
	return h
}

// waitForState polls until the session reaches the wanted state and returns
// the snapshot that satisfied it.
func (h *harness) waitForState(t *testing.T, want models.SessionState) *models.DraftSession {
	t.Helper()
	var snap *models.DraftSession
	require.Eventually(t, func() bool {
		s, err := h.actor.State(context.Background())
		if err != nil {
			return false
		}
		snap = s
		return s.State == want
	}, pollTimeout, pollInterval, "waiting for state %s", want)
	return snap
}

// startDrafting drives the handshake and the roll reveal on the fake clock.
func (h *harness) startDrafting(t *testing.T) *models.DraftSession {
	t.Helper()
	ctx := context.Background()
	_, err := h.actor.SubmitReady(ctx, h.teamA, h.capA)
	require.NoError(t, err)
	_, err = h.actor.SubmitReady(ctx, h.teamB, h.capB)
	require.NoError(t, err)
	h.waitForState(t, models.SessionStateRolling)

	h.clock.Advance(5 * time.Second)
	return h.waitForState(t, models.SessionStateDrafting)
}

func TestActorRollCountdownStartsDraft(t *testing.T) {
	h := newHarness(t)
	s := h.startDrafting(t)

	round := s.ActiveRound()
	require.NotNil(t, round)
	assert.Equal(t, 1, round.RoundNumber)

	// The transition survived the store round trip.
	stored, _, err := h.store.Load(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateDrafting, stored.State)
}

func TestActorRoundTimeoutAutoPicks(t *testing.T) {
	h := newHarness(t)
	s := h.startDrafting(t)
	first := s.ActiveRound()

	// Exhaust grace plus the full reserve bank without picking.
	h.clock.Advance(15 * time.Second)

	var snap *models.DraftSession
	require.Eventually(t, func() bool {
		cur, err := h.actor.State(context.Background())
		if err != nil {
			return false
		}
		snap = cur
		return cur.RoundByID(first.ID).State == models.RoundStateCompleted
	}, pollTimeout, pollInterval, "waiting for round timeout")

	timedOut := snap.RoundByID(first.ID)
	require.NotNil(t, timedOut.HeroID)
	assert.Equal(t, int64(0), snap.TeamByID(timedOut.DraftTeamID).ReserveTimeRemainingMs)

	// The draft moved on to the second round.
	next := snap.ActiveRound()
	require.NotNil(t, next)
	assert.Equal(t, 2, next.RoundNumber)
}

func TestActorHumanPickBeatsTimer(t *testing.T) {
	h := newHarness(t)
	s := h.startDrafting(t)
	round := s.ActiveRound()

	h.clock.Advance(4 * time.Second)
	snap, err := h.actor.SubmitPick(context.Background(), round.ID, captainFor(h, round.DraftTeamID), 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStateCompleted, snap.RoundByID(round.ID).State)

	// The stale round timer must not fire a timeout against round two.
	h.clock.Advance(11 * time.Second)
	cur, err := h.actor.State(context.Background())
	require.NoError(t, err)
	second := cur.ActiveRound()
	require.NotNil(t, second)
	assert.Equal(t, 2, second.RoundNumber)
	assert.Equal(t, int64(10000), cur.TeamByID(round.DraftTeamID).ReserveTimeRemainingMs)
}

func TestActorPauseFreezesClock(t *testing.T) {
	h := newHarness(t)
	h.startDrafting(t)

	_, err := h.actor.Disconnect(context.Background(), h.teamA)
	require.NoError(t, err)
	h.waitForState(t, models.SessionStatePaused)

	// However long the pause lasts, no timeout can fire.
	h.clock.Advance(time.Hour)
	cur, err := h.actor.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatePaused, cur.State)
	round := cur.ActiveRound()
	require.NotNil(t, round)
	assert.Equal(t, models.RoundStateActive, round.State)
}

func TestActorResumeCountdownCompletes(t *testing.T) {
	h := newHarness(t)
	s := h.startDrafting(t)
	started := *s.ActiveRound().StartedAt

	h.clock.Advance(2 * time.Second)
	_, err := h.actor.Disconnect(context.Background(), h.teamA)
	require.NoError(t, err)
	h.waitForState(t, models.SessionStatePaused)

	h.clock.Advance(30 * time.Second)
	snap, err := h.actor.RequestResume(context.Background(), h.capB)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateResuming, snap.State)

	h.clock.Advance(3 * time.Second)
	cur := h.waitForState(t, models.SessionStateDrafting)

	// The round clock moved forward by the pause plus the countdown, so the
	// captain has exactly the time they had left before the drop.
	round := cur.ActiveRound()
	require.NotNil(t, round)
	want := started.Add(30*time.Second + 3*time.Second)
	assert.True(t, round.StartedAt.Equal(want))
}

func TestActorRetriesOnVersionConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Bump the stored version behind the actor's back.
	stored, version, err := h.store.Load(ctx, h.session.ID)
	require.NoError(t, err)
	_, err = h.store.Save(ctx, stored, version)
	require.NoError(t, err)

	snap, err := h.actor.SubmitReady(ctx, h.teamA, h.capA)
	require.NoError(t, err)
	assert.True(t, snap.TeamByID(h.teamA).IsReady)

	reloaded, _, err := h.store.Load(ctx, h.session.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.TeamByID(h.teamA).IsReady)
}

func TestActorStateReturnsIsolatedSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snap, err := h.actor.State(ctx)
	require.NoError(t, err)
	snap.Teams[0].IsReady = true
	snap.State = models.SessionStateCompleted

	cur, err := h.actor.State(ctx)
	require.NoError(t, err)
	assert.False(t, cur.Teams[0].IsReady)
	assert.Equal(t, models.SessionStateWaitingForCaptains, cur.State)
}

func TestActorRetiresAfterCompletion(t *testing.T) {
	h := newHarness(t)
	s := h.startDrafting(t)
	ctx := context.Background()

	round := s.ActiveRound()
	snap, err := h.actor.SubmitPick(ctx, round.ID, captainFor(h, round.DraftTeamID), 1)
	require.NoError(t, err)
	round = snap.ActiveRound()
	require.NotNil(t, round)
	snap, err = h.actor.SubmitPick(ctx, round.ID, captainFor(h, round.DraftTeamID), 2)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCompleted, snap.State)

	// The finished actor retires instead of idling in the registry forever.
	require.Eventually(t, func() bool {
		_, err := h.actor.State(ctx)
		return errors.Is(err, store.ErrNotFound)
	}, pollTimeout, pollInterval, "waiting for the completed actor to retire")

	// The session itself survives in the store and a fresh actor serves it.
	fresh, err := h.registry.Get(ctx, h.session.ID)
	require.NoError(t, err)
	assert.NotSame(t, h.actor, fresh)
	cur, err := fresh.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCompleted, cur.State)
}

func TestActorReleasesTimerGoroutinesOnReschedule(t *testing.T) {
	h := newHarness(t)
	h.startDrafting(t)
	ctx := context.Background()

	base := runtime.NumGoroutine()

	// Every pause and resume re-arms the round timer. Each superseded timer
	// must release its forwarder goroutine rather than parking it until the
	// actor stops.
	for i := 0; i < 8; i++ {
		_, err := h.actor.Disconnect(ctx, h.teamA)
		require.NoError(t, err)
		h.waitForState(t, models.SessionStatePaused)

		_, err = h.actor.Connect(ctx, h.teamA)
		require.NoError(t, err)
		_, err = h.actor.RequestResume(ctx, h.capA)
		require.NoError(t, err)
		h.waitForState(t, models.SessionStateResuming)

		h.clock.Advance(3 * time.Second)
		h.waitForState(t, models.SessionStateDrafting)
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= base+2
	}, pollTimeout, pollInterval, "timer goroutines were not released")
}

func TestRegistryRestoresSessionFromStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startDrafting(t)

	// A fresh registry simulates a process restart over the same store.
	ros := roster.New()
	ros.RegisterTeam(h.teamA, h.capA)
	ros.RegisterTeam(h.teamB, h.capB)
	seq := broadcast.NewSequencer()
	go seq.Start(ctx)
	restarted := NewRegistry(ctx, engine.New(ros), h.store, seq, h.clock)

	actor, err := restarted.Get(ctx, h.session.ID)
	require.NoError(t, err)
	snap, err := actor.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateDrafting, snap.State)
	require.NotNil(t, snap.ActiveRound())
}

func captainFor(h *harness, teamID uuid.UUID) uuid.UUID {
	if teamID == h.teamA {
		return h.capA
	}
	return h.capB
}
