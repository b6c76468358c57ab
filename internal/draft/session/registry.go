package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kettleofketchup/draftforge/internal/draft/broadcast"
	"github.com/kettleofketchup/draftforge/internal/draft/engine"
	"github.com/kettleofketchup/draftforge/internal/draft/store"
	"github.com/kettleofketchup/draftforge/internal/models"
)

// Registry maps session ids to their running actors. A session touched for
// the first time after a restart is loaded from the store and its actor
// re-arms any deadline that was pending when the process died.
type Registry struct {
	mu     sync.Mutex
	actors map[uuid.UUID]*Actor

	engine *engine.Engine
	store  store.Store
	seq    *broadcast.Sequencer
	clock  clockwork.Clock
	ctx    context.Context
}

func NewRegistry(ctx context.Context, eng *engine.Engine, st store.Store, seq *broadcast.Sequencer, clock clockwork.Clock) *Registry {
	return &Registry{
		actors: make(map[uuid.UUID]*Actor),
		engine: eng,
		store:  st,
		seq:    seq,
		clock:  clock,
		ctx:    ctx,
	}
}

// Create builds a new session, persists it, and starts its actor.
func (r *Registry) Create(ctx context.Context, req engine.CreateSessionRequest, settings models.Settings) (*models.DraftSession, error) {
	s := engine.NewSession(req, settings, r.clock.Now())
	if err := r.store.Create(ctx, s); err != nil {
		return nil, err
	}

	r.mu.Lock()
	a := newActor(r.ctx, s.Clone(), 1, r.engine, r.store, r.seq, r.clock, r.evict)
	r.actors[s.ID] = a
	r.mu.Unlock()

	log.Info().
		Str("session_id", s.ID.String()).
		Str("game_id", s.GameID.String()).
		Int("rounds", len(s.Rounds)).
		Msg("draft session created")
	return s, nil
}

// Get returns the running actor for a session, starting one from the store
// if none is live.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Actor, error) {
	r.mu.Lock()
	if a, ok := r.actors[id]; ok {
		r.mu.Unlock()
		return a, nil
	}
	r.mu.Unlock()

	s, version, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have raced the load.
	if a, ok := r.actors[id]; ok {
		return a, nil
	}
	a := newActor(r.ctx, s, version, r.engine, r.store, r.seq, r.clock, r.evict)
	r.actors[id] = a
	log.Info().
		Str("session_id", id.String()).
		Str("state", string(s.State)).
		Msg("draft session restored from store")
	return a, nil
}

// evict retires an actor whose session has completed. The identity check
// keeps a late eviction from removing a newer actor for the same id.
func (r *Registry) evict(a *Actor) {
	r.mu.Lock()
	if cur, ok := r.actors[a.id]; ok && cur == a {
		delete(r.actors, a.id)
	}
	r.mu.Unlock()
	a.Stop()
	log.Info().
		Str("session_id", a.id.String()).
		Msg("completed draft session retired")
}

// Delete stops a session's actor and removes it from the store.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	if a, ok := r.actors[id]; ok {
		a.Stop()
		delete(r.actors, id)
	}
	r.mu.Unlock()
	return r.store.Delete(ctx, id)
}

// Shutdown stops every running actor.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.actors {
		a.Stop()
		delete(r.actors, id)
	}
}
