package gateway

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kettleofketchup/draftforge/internal/draft/broadcast"
	"github.com/kettleofketchup/draftforge/internal/draft/engine"
	"github.com/kettleofketchup/draftforge/internal/draft/session"
	"github.com/kettleofketchup/draftforge/internal/draft/store"
	"github.com/kettleofketchup/draftforge/internal/models"
)

type createDraftRequest struct {
	GameID       uuid.UUID        `json:"gameId"`
	TournamentID uuid.UUID        `json:"tournamentId,omitempty"`
	Seed         *int64           `json:"seed,omitempty"`
	TeamA        teamRequest      `json:"teamA"`
	TeamB        teamRequest      `json:"teamB"`
	Settings     *models.Settings `json:"settings,omitempty"`
}

type teamRequest struct {
	TeamID    uuid.UUID `json:"teamId"`
	CaptainID uuid.UUID `json:"captainId"`
	Name      string    `json:"name"`
}

type draftStateResponse struct {
	Draft    *models.DraftSession `json:"draft"`
	Sequence int64                `json:"sequence"`
}

// handleCreateDraft builds a new session, registers both captains, and
// starts its actor.
func (s *Service) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TeamA.TeamID == uuid.Nil || req.TeamB.TeamID == uuid.Nil || req.TeamA.TeamID == req.TeamB.TeamID {
		http.Error(w, "two distinct teams are required", http.StatusBadRequest)
		return
	}
	if req.TeamA.CaptainID == uuid.Nil || req.TeamB.CaptainID == uuid.Nil {
		http.Error(w, "both teams need a captain", http.StatusBadRequest)
		return
	}

	seed := rand.Int63()
	if req.Seed != nil {
		seed = *req.Seed
	}
	settings := s.config.DefaultSettings
	if req.Settings != nil {
		settings = *req.Settings
	}
	if err := settings.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	draft, err := s.registry.Create(r.Context(), engine.CreateSessionRequest{
		GameID:       req.GameID,
		TournamentID: req.TournamentID,
		Seed:         seed,
		TeamA:        engine.TeamInfo(req.TeamA),
		TeamB:        engine.TeamInfo(req.TeamB),
	}, settings)
	if err != nil {
		log.Error().Err(err).Msg("failed to create draft session")
		http.Error(w, "failed to create draft", http.StatusInternalServerError)
		return
	}

	s.roster.RegisterTeam(req.TeamA.TeamID, req.TeamA.CaptainID)
	s.roster.RegisterTeam(req.TeamB.TeamID, req.TeamB.CaptainID)

	writeJSON(w, http.StatusCreated, draftStateResponse{Draft: draft})
}

// handleDraftState returns a consistent snapshot plus the channel's current
// sequence number, so a client that saw a gap can resynchronize.
func (s *Service) handleDraftState(w http.ResponseWriter, r *http.Request) {
	draftID, actor, ok := s.actorFromPath(w, r)
	if !ok {
		return
	}
	draft, err := actor.State(r.Context())
	if err != nil {
		http.Error(w, "failed to load draft state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, draftStateResponse{
		Draft:    draft,
		Sequence: s.sequencer.Current(broadcast.DraftChannel(draftID)),
	})
}

// handleDraftEvents returns the persisted event log for a draft.
func (s *Service) handleDraftEvents(w http.ResponseWriter, r *http.Request) {
	draftID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid draft id", http.StatusBadRequest)
		return
	}
	events, err := s.store.Events(r.Context(), draftID)
	if err != nil {
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleResumeDraft starts the resume countdown on behalf of the requesting
// captain or admin.
func (s *Service) handleResumeDraft(w http.ResponseWriter, r *http.Request) {
	_, actor, ok := s.actorFromPath(w, r)
	if !ok {
		return
	}
	actorID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	draft, err := actor.RequestResume(r.Context(), actorID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draftStateResponse{Draft: draft})
}

// handleResetDraft wipes a draft back to the captain handshake. Admin only.
func (s *Service) handleResetDraft(w http.ResponseWriter, r *http.Request) {
	_, actor, ok := s.actorFromPath(w, r)
	if !ok {
		return
	}
	actorID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	if !s.roster.IsAdmin(actorID) {
		http.Error(w, "admin rights required", http.StatusForbidden)
		return
	}
	draft, err := actor.Reset(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draftStateResponse{Draft: draft})
}

func (s *Service) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	draftID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid draft id", http.StatusBadRequest)
		return
	}
	if err := s.registry.Delete(r.Context(), draftID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete draft", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListHeroes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"heroes": models.Heroes()})
}

func (s *Service) actorFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, *session.Actor, bool) {
	draftID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid draft id", http.StatusBadRequest)
		return uuid.Nil, nil, false
	}
	actor, err := s.registry.Get(r.Context(), draftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "draft not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to load draft", http.StatusInternalServerError)
		}
		return uuid.Nil, nil, false
	}
	return draftID, actor, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrRoundNotFound), errors.Is(err, engine.ErrTeamNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrHeroUnavailable):
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}
