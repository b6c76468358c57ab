package engine

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/kettleofketchup/draftforge/internal/models"
)

// RollFirstPick decides which team slot drafts first. It is a pure function
// of the session seed, so regenerating a session from the same seed always
// yields the same order.
func RollFirstPick(seed int64) models.TeamSlot {
	rng := rand.New(rand.NewSource(seed))
	if rng.Intn(2) == 0 {
		return models.TeamSlotA
	}
	return models.TeamSlotB
}

// GenerateRounds builds the full round sequence for a session up front from
// the configured ban/pick pattern. Round ids are derived from the session id
// and round number, so an administrative reset regenerates the exact same
// rounds.
func GenerateRounds(sessionID uuid.UUID, settings models.Settings, teams [2]models.DraftTeamState, firstPick models.TeamSlot) []models.DraftRound {
	rounds := make([]models.DraftRound, 0, len(settings.Pattern))
	for i, step := range settings.Pattern {
		slot := firstPick
		if !step.First {
			slot = otherSlot(firstPick)
		}
		num := i + 1
		rounds = append(rounds, models.DraftRound{
			ID:          roundID(sessionID, num),
			RoundNumber: num,
			ActionType:  step.Action,
			State:       models.RoundStatePending,
			DraftTeamID: teams[slot].TeamID,
			GraceTimeMs: settings.GraceTimeMs,
		})
	}
	return rounds
}

func roundID(sessionID uuid.UUID, num int) uuid.UUID {
	return uuid.NewSHA1(sessionID, []byte{byte(num >> 8), byte(num)})
}

func otherSlot(s models.TeamSlot) models.TeamSlot {
	if s == models.TeamSlotA {
		return models.TeamSlotB
	}
	return models.TeamSlotA
}

// CreateSessionRequest carries everything needed to build a new session.
type CreateSessionRequest struct {
	GameID       uuid.UUID
	TournamentID uuid.UUID
	Seed         int64
	TeamA        TeamInfo
	TeamB        TeamInfo
}

// TeamInfo identifies one participating team and its captain.
type TeamInfo struct {
	TeamID    uuid.UUID
	CaptainID uuid.UUID
	Name      string
}

// NewSession creates a session with its rounds pre-generated and both teams
// holding a full reserve bank.
func NewSession(req CreateSessionRequest, settings models.Settings, now time.Time) *models.DraftSession {
	teams := [2]models.DraftTeamState{
		{
			TeamID:                 req.TeamA.TeamID,
			CaptainID:              req.TeamA.CaptainID,
			Name:                   req.TeamA.Name,
			ReserveTimeRemainingMs: settings.ReserveTimeMs,
		},
		{
			TeamID:                 req.TeamB.TeamID,
			CaptainID:              req.TeamB.CaptainID,
			Name:                   req.TeamB.Name,
			ReserveTimeRemainingMs: settings.ReserveTimeMs,
		},
	}

	id := uuid.New()
	firstPick := RollFirstPick(req.Seed)
	return &models.DraftSession{
		ID:            id,
		GameID:        req.GameID,
		TournamentID:  req.TournamentID,
		State:         models.SessionStateWaitingForCaptains,
		Seed:          req.Seed,
		FirstPickSlot: firstPick,
		Teams:         teams,
		Rounds:        GenerateRounds(id, settings, teams, firstPick),
		Settings:      settings,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
