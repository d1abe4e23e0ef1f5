package rating

import (
	"math"

	"github.com/google/uuid"
)

// DefaultKFactor is the standard K used for arena matches.
const DefaultKFactor = 32

// Seed is one participant's rating going into settlement.
type Seed struct {
	UserID uuid.UUID
	Rating int
}

// Calculator computes Elo-style rating deltas for finished matches.
type Calculator struct {
	k float64
}

// NewCalculator creates a calculator with the provided K-factor.
func NewCalculator(k int) *Calculator {
	if k <= 0 {
		k = DefaultKFactor
	}
	return &Calculator{k: float64(k)}
}

// ExpectedScore returns the probability-like expected score for a player at
// rating against an opponent at oppRating.
func ExpectedScore(rating, oppRating int) float64 {
	return 1 / (1 + math.Pow(10, float64(oppRating-rating)/400))
}

// Changes computes both players' signed deltas. winnerID nil means a draw.
// Each delta is rounded independently, so the two deltas are not guaranteed
// to sum to zero; that asymmetry is an accepted property of the update.
func (c *Calculator) Changes(a, b Seed, winnerID *uuid.UUID) map[uuid.UUID]int {
	expectedA := ExpectedScore(a.Rating, b.Rating)
	expectedB := 1 - expectedA

	scoreA, scoreB := 0.5, 0.5
	if winnerID != nil {
		if *winnerID == a.UserID {
			scoreA, scoreB = 1, 0
		} else {
			scoreA, scoreB = 0, 1
		}
	}

	return map[uuid.UUID]int{
		a.UserID: int(math.Round(c.k * (scoreA - expectedA))),
		b.UserID: int(math.Round(c.k * (scoreB - expectedB))),
	}
}
