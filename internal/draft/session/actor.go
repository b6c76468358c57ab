package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kettleofketchup/draftforge/internal/draft/broadcast"
	"github.com/kettleofketchup/draftforge/internal/draft/engine"
	"github.com/kettleofketchup/draftforge/internal/draft/events"
	"github.com/kettleofketchup/draftforge/internal/draft/store"
	"github.com/kettleofketchup/draftforge/internal/models"
)

const saveRetries = 3

// opFunc is one transition applied to the session under the actor's
// serialization.
type opFunc func(s *models.DraftSession, now time.Time) ([]events.Event, error)

type timerConcern int

const (
	concernRoundTimeout timerConcern = iota
	concernCountdown
)

type msg interface{ isMsg() }

type applyMsg struct {
	op       opFunc
	clearLog bool
	reply    chan result
}

type getStateMsg struct {
	reply chan result
}

type timerFiredMsg struct {
	concern timerConcern
	gen     int64
	roundID uuid.UUID
}

type result struct {
	session *models.DraftSession
	err     error
}

func (applyMsg) isMsg()      {}
func (getStateMsg) isMsg()   {}
func (timerFiredMsg) isMsg() {}

// Actor owns one draft session. Every mutation (captain actions, timer
// fires, connect and disconnect reports) funnels through its inbox and is
// processed one at a time in arrival order, so the engine never needs its
// own locking and a timeout racing a human pick is settled by whoever
// reaches the inbox first.
type Actor struct {
	id     uuid.UUID
	engine *engine.Engine
	store  store.Store
	seq    *broadcast.Sequencer
	clock  clockwork.Clock

	inbox  chan msg
	ctx    context.Context
	cancel context.CancelFunc

	// onCompleted, when set, runs from the loop goroutine after a message
	// leaves the session in COMPLETED state. The registry uses it to retire
	// the actor so finished drafts do not accumulate goroutines.
	onCompleted func(*Actor)

	// Owned by the loop goroutine.
	session        *models.DraftSession
	version        int64
	gen            int64
	roundTimer     *armedTimer
	countdownTimer *armedTimer
}

func newActor(parent context.Context, s *models.DraftSession, version int64, eng *engine.Engine, st store.Store, seq *broadcast.Sequencer, clock clockwork.Clock, onCompleted func(*Actor)) *Actor {
	ctx, cancel := context.WithCancel(parent)
	a := &Actor{
		id:          s.ID,
		engine:      eng,
		store:       st,
		seq:         seq,
		clock:       clock,
		inbox:       make(chan msg, 64),
		ctx:         ctx,
		cancel:      cancel,
		onCompleted: onCompleted,
		session:     s,
		version:     version,
	}
	go a.loop()
	return a
}

// ID returns the session id this actor serves.
func (a *Actor) ID() uuid.UUID { return a.id }

// Stop ends the actor's loop. Pending timers become no-ops.
func (a *Actor) Stop() { a.cancel() }

func (a *Actor) loop() {
	// Re-arm timers on startup so a session loaded mid-draft resumes its
	// timeout accounting from the stored timestamps.
	a.reschedule()

	for {
		// Prefer shutdown over a backlog of buffered messages.
		select {
		case <-a.ctx.Done():
			a.stopTimers()
			return
		default:
		}

		select {
		case <-a.ctx.Done():
			a.stopTimers()
			return
		case m := <-a.inbox:
			switch m := m.(type) {
			case applyMsg:
				snap, err := a.applyAndCommit(m.op, m.clearLog)
				m.reply <- result{session: snap, err: err}
			case getStateMsg:
				m.reply <- result{session: a.session.Clone()}
			case timerFiredMsg:
				a.handleTimerFired(m)
			}
			// Retire after the reply is sent so the caller still gets
			// the final snapshot.
			if a.onCompleted != nil && a.session.State == models.SessionStateCompleted {
				a.onCompleted(a)
			}
		}
	}
}

func (a *Actor) handleTimerFired(m timerFiredMsg) {
	if m.gen != a.gen {
		log.Debug().
			Str("session_id", a.id.String()).
			Int64("fired_gen", m.gen).
			Int64("current_gen", a.gen).
			Msg("stale timer fire ignored")
		return
	}

	var op opFunc
	switch m.concern {
	case concernRoundTimeout:
		op = func(s *models.DraftSession, now time.Time) ([]events.Event, error) {
			return a.engine.RoundTimeout(s, m.roundID, now)
		}
	case concernCountdown:
		switch a.session.State {
		case models.SessionStateRolling:
			op = a.engine.CompleteRoll
		case models.SessionStateResuming:
			op = a.engine.CompleteResume
		default:
			return
		}
	}

	if _, err := a.applyAndCommit(op, false); err != nil {
		if errors.Is(err, engine.ErrInvalidTransition) {
			// Raced with an action that already settled the round or state.
			return
		}
		log.Error().Err(err).Str("session_id", a.id.String()).Msg("timer transition failed")
	}
}

// applyAndCommit runs one transition, persists the result, and on a version
// conflict reloads the stored snapshot and retries the transition against
// fresh state rather than overwriting it.
func (a *Actor) applyAndCommit(op opFunc, clearLog bool) (*models.DraftSession, error) {
	for attempt := 0; attempt < saveRetries; attempt++ {
		now := a.clock.Now()
		evs, err := op(a.session, now)
		if err != nil {
			return nil, err
		}

		newVersion, err := a.store.Save(a.ctx, a.session, a.version)
		if errors.Is(err, store.ErrVersionConflict) {
			fresh, version, lerr := a.store.Load(a.ctx, a.id)
			if lerr != nil {
				return nil, lerr
			}
			log.Warn().
				Str("session_id", a.id.String()).
				Int64("stale_version", a.version).
				Int64("fresh_version", version).
				Msg("save conflict, retrying transition against reloaded state")
			a.session, a.version = fresh, version
			continue
		}
		if err != nil {
			// Discard the unpersisted mutation so memory matches the store.
			if fresh, version, lerr := a.store.Load(a.ctx, a.id); lerr == nil {
				a.session, a.version = fresh, version
			}
			return nil, err
		}
		a.version = newVersion

		a.appendLog(evs, clearLog)
		a.reschedule()
		a.publish(evs)
		return a.session.Clone(), nil
	}
	return nil, store.ErrVersionConflict
}

func (a *Actor) appendLog(evs []events.Event, clearLog bool) {
	if clearLog {
		if err := a.store.ClearEvents(a.ctx, a.id); err != nil {
			log.Warn().Err(err).Str("session_id", a.id.String()).Msg("failed to clear event log")
		}
	}
	if len(evs) == 0 {
		return
	}
	entries := make([]models.DraftEvent, 0, len(evs))
	for _, e := range evs {
		payload, err := events.MarshalPayload(e)
		if err != nil {
			log.Error().Err(err).Str("event_type", string(e.Type)).Msg("failed to marshal event for log")
			continue
		}
		entries = append(entries, models.DraftEvent{
			ID:        uuid.New(),
			SessionID: a.id,
			EventType: string(e.Type),
			Payload:   payload,
			CreatedAt: e.OccurredAt,
		})
	}
	if err := a.store.AppendEvents(a.ctx, a.id, entries); err != nil {
		// Log persistence is secondary to the snapshot; the broadcast
		// still goes out.
		log.Warn().Err(err).Str("session_id", a.id.String()).Msg("failed to append event log")
	}
}

func (a *Actor) publish(evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	channels := []string{broadcast.DraftChannel(a.id)}
	if a.session.TournamentID != uuid.Nil {
		channels = append(channels, broadcast.TournamentChannel(a.session.TournamentID))
	}
	snapshot := a.session.Clone()
	for _, e := range evs {
		a.seq.Publish(channels, e, snapshot)
	}
}

// reschedule arms at most one timer per concern for the session's current
// state. The generation counter moves on every transition, so anything armed
// earlier that still fires is discarded in handleTimerFired.
func (a *Actor) reschedule() {
	a.gen++
	a.stopTimers()

	now := a.clock.Now()
	switch a.session.State {
	case models.SessionStateDrafting:
		deadline, ok := engine.RoundDeadline(a.session)
		if !ok {
			return
		}
		round := a.session.ActiveRound()
		a.roundTimer = a.armTimer(deadline.Sub(now), timerFiredMsg{
			concern: concernRoundTimeout,
			gen:     a.gen,
			roundID: round.ID,
		})
	case models.SessionStateRolling:
		d := time.Duration(a.session.Settings.RollDurationMs) * time.Millisecond
		a.countdownTimer = a.armTimer(d, timerFiredMsg{concern: concernCountdown, gen: a.gen})
	case models.SessionStateResuming:
		a.countdownTimer = a.armTimer(a.session.ResumingUntil.Sub(now), timerFiredMsg{concern: concernCountdown, gen: a.gen})
	}
}

// armedTimer pairs a clock timer with a done channel that releases the
// forwarder goroutine when the timer is stopped before firing.
type armedTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

func (t *armedTimer) stop() {
	t.timer.Stop()
	close(t.done)
}

func (a *Actor) armTimer(d time.Duration, fire timerFiredMsg) *armedTimer {
	if d < 0 {
		d = 0
	}
	at := &armedTimer{timer: a.clock.NewTimer(d), done: make(chan struct{})}
	go func() {
		select {
		case <-at.timer.Chan():
			select {
			case a.inbox <- fire:
			case <-a.ctx.Done():
			}
		case <-at.done:
		case <-a.ctx.Done():
		}
	}()
	return at
}

func (a *Actor) stopTimers() {
	if a.roundTimer != nil {
		a.roundTimer.stop()
		a.roundTimer = nil
	}
	if a.countdownTimer != nil {
		a.countdownTimer.stop()
		a.countdownTimer = nil
	}
}

// send queues a message and waits for its reply.
func (a *Actor) send(ctx context.Context, op opFunc, clearLog bool) (*models.DraftSession, error) {
	reply := make(chan result, 1)
	select {
	case a.inbox <- applyMsg{op: op, clearLog: clearLog, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.ctx.Done():
		return nil, store.ErrNotFound
	}
	return awaitReply(ctx, a.ctx, reply)
}

// awaitReply waits for the loop's answer. A stopped actor may have replied
// just before retiring, so the reply buffer is drained before reporting the
// actor gone.
func awaitReply(ctx, actorCtx context.Context, reply chan result) (*models.DraftSession, error) {
	select {
	case r := <-reply:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-actorCtx.Done():
		select {
		case r := <-reply:
			return r.session, r.err
		default:
		}
		return nil, store.ErrNotFound
	}
}

// SubmitReady records a captain's ready signal.
func (a *Actor) SubmitReady(ctx context.Context, teamID, actorID uuid.UUID) (*models.DraftSession, error) {
	return a.send(ctx, func(s *models.DraftSession, now time.Time) ([]events.Event, error) {
		return a.engine.SubmitReady(s, teamID, actorID, now)
	}, false)
}

// SubmitPick applies a pick or ban for the given round.
func (a *Actor) SubmitPick(ctx context.Context, roundID, actorID uuid.UUID, heroID int) (*models.DraftSession, error) {
	return a.send(ctx, func(s *models.DraftSession, now time.Time) ([]events.Event, error) {
		return a.engine.SubmitPick(s, roundID, actorID, heroID, now)
	}, false)
}

// RequestResume starts the resume countdown out of a pause.
func (a *Actor) RequestResume(ctx context.Context, actorID uuid.UUID) (*models.DraftSession, error) {
	return a.send(ctx, func(s *models.DraftSession, now time.Time) ([]events.Event, error) {
		return a.engine.RequestResume(s, actorID, now)
	}, false)
}

// Connect reports that a team's captain attached a live connection.
func (a *Actor) Connect(ctx context.Context, teamID uuid.UUID) (*models.DraftSession, error) {
	return a.send(ctx, func(s *models.DraftSession, now time.Time) ([]events.Event, error) {
		return nil, a.engine.Connect(s, teamID, now)
	}, false)
}

// Disconnect reports a real (non-kick) connection loss for a team.
func (a *Actor) Disconnect(ctx context.Context, teamID uuid.UUID) (*models.DraftSession, error) {
	return a.send(ctx, func(s *models.DraftSession, now time.Time) ([]events.Event, error) {
		return a.engine.Disconnect(s, teamID, now)
	}, false)
}

// Reset wipes the draft back to the captain handshake, regenerating rounds
// from the stored seed and clearing the event log.
func (a *Actor) Reset(ctx context.Context) (*models.DraftSession, error) {
	return a.send(ctx, func(s *models.DraftSession, now time.Time) ([]events.Event, error) {
		return a.engine.Reset(s, now)
	}, true)
}

// State returns a consistent snapshot of the session.
func (a *Actor) State(ctx context.Context) (*models.DraftSession, error) {
	reply := make(chan result, 1)
	select {
	case a.inbox <- getStateMsg{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.ctx.Done():
		return nil, store.ErrNotFound
	}
	return awaitReply(ctx, a.ctx, reply)
}
