// Package roster resolves who is allowed to act for a team in a draft.
package roster

import (
	"sync"

	"github.com/google/uuid"
)

// Roster is an in-process authorization table. Each team maps to exactly one
// captain; admins may act for any team. Entries are registered when a draft
// session is created and dropped when it is deleted.
type Roster struct {
	mu       sync.RWMutex
	captains map[uuid.UUID]uuid.UUID // teamID -> captainID
	admins   map[uuid.UUID]struct{}
}

func New() *Roster {
	return &Roster{
		captains: make(map[uuid.UUID]uuid.UUID),
		admins:   make(map[uuid.UUID]struct{}),
	}
}

// RegisterTeam binds a captain to a team, replacing any prior binding.
func (r *Roster) RegisterTeam(teamID, captainID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captains[teamID] = captainID
}

// UnregisterTeam removes a team's captain binding.
func (r *Roster) UnregisterTeam(teamID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.captains, teamID)
}

// RegisterAdmin grants a user the right to act for any team.
func (r *Roster) RegisterAdmin(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[userID] = struct{}{}
}

// CanActForTeam reports whether the actor is the team's captain or an admin.
func (r *Roster) CanActForTeam(actorID, teamID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.admins[actorID]; ok {
		return true
	}
	captain, ok := r.captains[teamID]
	return ok && captain == actorID
}

// IsAdmin reports whether a user has admin rights.
func (r *Roster) IsAdmin(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[userID]
	return ok
}

// CaptainOf returns the registered captain for a team.
func (r *Roster) CaptainOf(teamID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	captain, ok := r.captains[teamID]
	return captain, ok
}
