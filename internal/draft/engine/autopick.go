package engine

import (
	"errors"
	"math/rand"

	"github.com/kettleofketchup/draftforge/internal/models"
)

// ErrNoAvailableHeroes is returned when the pool has been exhausted, which
// only happens with pathologically short hero tables.
var ErrNoAvailableHeroes = errors.New("no available heroes")

// AutoPickStrategy selects a hero when a round times out without a choice
// from its captain.
type AutoPickStrategy interface {
	Select(s *models.DraftSession, round *models.DraftRound) (int, error)
}

// SeededStrategy chooses deterministically-at-random from the remaining
// pool, keyed by session seed and round number so a replay of the same
// timeout selects the same hero.
type SeededStrategy struct{}

func (SeededStrategy) Select(s *models.DraftSession, round *models.DraftRound) (int, error) {
	available := models.AvailableHeroes(s)
	if len(available) == 0 {
		return 0, ErrNoAvailableHeroes
	}
	rng := rand.New(rand.NewSource(s.Seed + int64(round.RoundNumber)))
	return available[rng.Intn(len(available))], nil
}
