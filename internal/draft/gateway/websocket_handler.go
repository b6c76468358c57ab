package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kettleofketchup/draftforge/internal/draft/broadcast"
	"github.com/kettleofketchup/draftforge/internal/draft/engine"
	"github.com/kettleofketchup/draftforge/internal/draft/store"
)

// clientMessage is an inbound frame from a draft client.
type clientMessage struct {
	Type    string    `json:"type"`
	RoundID uuid.UUID `json:"roundId,omitempty"`
	HeroID  int       `json:"heroId,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleDraftConnection upgrades a client onto a draft's broadcast channel.
// Captains identify their team with team_id and become candidates for the
// connection of record; requests without team_id join as spectators.
func (s *Service) handleDraftConnection(w http.ResponseWriter, r *http.Request) {
	draftID, err := uuid.Parse(r.URL.Query().Get("draft_id"))
	if err != nil {
		http.Error(w, "invalid draft_id", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	teamID := uuid.Nil
	if raw := r.URL.Query().Get("team_id"); raw != "" {
		teamID, err = uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid team_id", http.StatusBadRequest)
			return
		}
		if !s.roster.CanActForTeam(userID, teamID) {
			http.Error(w, "not a captain of this team", http.StatusForbidden)
			return
		}
	}

	// Make sure the session exists before tying up a socket.
	if _, err := s.registry.Get(r.Context(), draftID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load draft", http.StatusInternalServerError)
		return
	}

	channel := broadcast.DraftChannel(draftID)
	conn, err := s.connections.Upgrade(w, r, userID, draftID, teamID, channel)
	if err != nil {
		log.Error().Err(err).Str("draft_id", draftID.String()).Msg("failed to upgrade WebSocket connection")
		return
	}

	// The record bookkeeping happens before the pumps run, so the socket
	// cannot be seen closing before the coordinator knows it exists.
	if conn.IsCaptain() {
		if err := s.coordinator.Attach(r.Context(), conn); err != nil {
			log.Error().
				Err(err).
				Str("draft_id", draftID.String()).
				Str("team_id", teamID.String()).
				Msg("failed to attach captain connection")
			conn.Start()
			conn.Kick()
			return
		}
	}
	conn.Start()
}

// handleTournamentConnection subscribes a client to a tournament's mirror
// channel, which carries events from every draft in the tournament.
func (s *Service) handleTournamentConnection(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuid.Parse(r.URL.Query().Get("tournament_id"))
	if err != nil {
		http.Error(w, "invalid tournament_id", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	channel := broadcast.TournamentChannel(tournamentID)
	conn, err := s.connections.Upgrade(w, r, userID, uuid.Nil, uuid.Nil, channel)
	if err != nil {
		log.Error().Err(err).Str("tournament_id", tournamentID.String()).Msg("failed to upgrade WebSocket connection")
		return
	}
	conn.Start()
}

func (s *Service) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, channels := s.connections.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections": total,
		"active_channels":   channels,
	})
}

// handleClientMessage dispatches inbound captain commands to the session
// actor. Spectator frames are ignored.
func (s *Service) handleClientMessage(c *Connection, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.sendError(c, "bad_message", "malformed message")
		return
	}
	if !c.IsCaptain() {
		log.Debug().
			Str("connection_id", c.ID).
			Str("message_type", msg.Type).
			Msg("ignoring command from spectator connection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	actor, err := s.registry.Get(ctx, c.DraftID)
	if err != nil {
		s.sendError(c, "not_found", "draft session not found")
		return
	}

	switch msg.Type {
	case "ready":
		_, err = actor.SubmitReady(ctx, c.TeamID, c.UserID)
	case "pick":
		_, err = actor.SubmitPick(ctx, msg.RoundID, c.UserID, msg.HeroID)
	case "resume":
		_, err = actor.RequestResume(ctx, c.UserID)
	default:
		s.sendError(c, "bad_message", "unknown message type: "+msg.Type)
		return
	}
	if err != nil {
		s.sendError(c, errorCode(err), err.Error())
	}
}

// handleClosed runs when any connection's read pump exits. Captain
// connections report through the coordinator, which decides whether the
// close was a real disconnect or an administrative kick.
func (s *Service) handleClosed(c *Connection) {
	if c.IsCaptain() {
		s.coordinator.Drop(c)
	}
}

func (s *Service) sendError(c *Connection, code, message string) {
	payload, err := json.Marshal(errorFrame{Type: "error", Code: code, Message: message})
	if err != nil {
		return
	}
	s.connections.SendTo(c, payload)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, engine.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, engine.ErrRoundNotFound):
		return "round_not_found"
	case errors.Is(err, engine.ErrTeamNotFound):
		return "team_not_found"
	case errors.Is(err, engine.ErrHeroUnavailable):
		return "hero_unavailable"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
