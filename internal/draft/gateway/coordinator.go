package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kettleofketchup/draftforge/internal/draft/session"
)

type recordKey struct {
	draftID uuid.UUID
	teamID  uuid.UUID
}

// teamRecord serializes all connection-of-record changes for one team in one
// draft. Its lock is held across both the record update and the actor
// notification, so connect/disconnect reports reach the session actor in the
// order the coordinator observed them.
type teamRecord struct {
	mu   sync.Mutex
	conn *Connection
}

// Coordinator tracks the connection of record for each team in each draft.
// A team is considered connected while its record connection is open; a new
// connection for the same team supersedes (kicks) the old one, and only the
// loss of the record connection counts as a disconnect toward the draft's
// pause rules. Spectator connections never pass through here.
type Coordinator struct {
	mu    sync.Mutex
	teams map[recordKey]*teamRecord

	registry *session.Registry
	timeout  time.Duration

	// afterRecord, when set, runs with the team lock held between the
	// record update and the actor notification. Test seam.
	afterRecord func()
}

func NewCoordinator(registry *session.Registry) *Coordinator {
	return &Coordinator{
		teams:    make(map[recordKey]*teamRecord),
		registry: registry,
		timeout:  5 * time.Second,
	}
}

func (co *Coordinator) teamRecordFor(key recordKey) *teamRecord {
	co.mu.Lock()
	defer co.mu.Unlock()
	rec, ok := co.teams[key]
	if !ok {
		rec = &teamRecord{}
		co.teams[key] = rec
	}
	return rec
}

// Attach installs a captain connection as its team's connection of record.
// Any previous record connection is kicked: its socket closes but the team
// stays connected, because the replacement is already live. The team lock is
// held until the actor has been told, so a concurrent drop or attach for the
// same team cannot reorder around this one.
func (co *Coordinator) Attach(ctx context.Context, conn *Connection) error {
	rec := co.teamRecordFor(recordKey{draftID: conn.DraftID, teamID: conn.TeamID})
	rec.mu.Lock()
	defer rec.mu.Unlock()

	prev := rec.conn
	rec.conn = conn
	if prev != nil {
		log.Info().
			Str("draft_id", conn.DraftID.String()).
			Str("team_id", conn.TeamID.String()).
			Str("old_connection_id", prev.ID).
			Str("new_connection_id", conn.ID).
			Msg("team reconnected, kicking previous connection")
		prev.Kick()
	}
	if co.afterRecord != nil {
		co.afterRecord()
	}

	actor, err := co.registry.Get(ctx, conn.DraftID)
	if err != nil {
		return err
	}
	_, err = actor.Connect(ctx, conn.TeamID)
	return err
}

// Drop handles a captain connection's socket closing. Kicked connections and
// connections that were already superseded report nothing; only losing the
// live connection of record marks the team disconnected. Like Attach, the
// record change and the actor send happen under the team lock so a stale
// disconnect cannot land after a newer connect.
func (co *Coordinator) Drop(conn *Connection) {
	if conn.kicked.Load() {
		return
	}

	rec := co.teamRecordFor(recordKey{draftID: conn.DraftID, teamID: conn.TeamID})
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.conn != conn {
		return
	}
	rec.conn = nil
	if co.afterRecord != nil {
		co.afterRecord()
	}

	ctx, cancel := context.WithTimeout(context.Background(), co.timeout)
	defer cancel()

	actor, err := co.registry.Get(ctx, conn.DraftID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("draft_id", conn.DraftID.String()).
			Msg("disconnect for unknown draft session")
		return
	}
	if _, err := actor.Disconnect(ctx, conn.TeamID); err != nil {
		log.Error().
			Err(err).
			Str("draft_id", conn.DraftID.String()).
			Str("team_id", conn.TeamID.String()).
			Msg("failed to record team disconnect")
	}
}

// Record returns the current connection of record for a team, if any.
func (co *Coordinator) Record(draftID, teamID uuid.UUID) (*Connection, bool) {
	rec := co.teamRecordFor(recordKey{draftID: draftID, teamID: teamID})
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.conn, rec.conn != nil
}
