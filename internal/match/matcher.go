package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/metrics"
)

// Rating tolerance window constants. The window widens while a player
// waits, trading match quality for bounded wait time.
const (
	initialRatingRange      = 200
	maxRatingRange          = 500
	ratingRangeExpandStep   = 100
	ratingRangeExpandPeriod = 10 * time.Second
)

// ErrPairUnavailable is returned by a RatingQueue pairing commit when either
// member left the queue between candidate selection and removal. It signals
// "opponent no longer available", never a failure.
var ErrPairUnavailable = errors.New("queue pair no longer available")

// Matcher selects the closest-rated waiting opponent for a player, within
// a tolerance window that expands with wait time.
type Matcher struct {
	queue  RatingQueue
	logger zerolog.Logger
	now    func() time.Time
}

// NewMatcher creates a matcher over the given rating queue.
func NewMatcher(queue RatingQueue, logger zerolog.Logger) *Matcher {
	return &Matcher{
		queue:  queue,
		logger: logger.With().Str("component", "matcher").Logger(),
		now:    time.Now,
	}
}

// ratingWindow computes the tolerance for a player who has waited elapsed.
func ratingWindow(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	window := initialRatingRange + int(elapsed/ratingRangeExpandPeriod)*ratingRangeExpandStep
	if window > maxRatingRange {
		window = maxRatingRange
	}
	return window
}

// FindOpponent returns the best opponent for userID, or nil if the caller is
// no longer queued or nobody fits the current window. The selection is
// greedy and local: it does not attempt a globally optimal pairing.
func (m *Matcher) FindOpponent(ctx context.Context, userID uuid.UUID) (*QueueEntry, error) {
	self, err := m.queue.Entry(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find opponent: %w", err)
	}
	if self == nil {
		// Raced with a disconnect or another pairing; not an error.
		return nil, nil
	}

	elapsed := m.now().UnixMilli() - self.JoinedAt
	window := ratingWindow(time.Duration(elapsed) * time.Millisecond)

	candidates, err := m.queue.RangeByRating(ctx, self.Rating-window, self.Rating+window)
	if err != nil {
		return nil, fmt.Errorf("find opponent: %w", err)
	}

	var best *QueueEntry
	for _, candidateID := range candidates {
		if candidateID == userID {
			continue
		}
		candidate, err := m.queue.Entry(ctx, candidateID)
		if err != nil {
			return nil, fmt.Errorf("find opponent: %w", err)
		}
		if candidate == nil {
			continue // dequeued mid-scan
		}
		if better(candidate, best, self.Rating) {
			best = candidate
		}
	}

	return best, nil
}

// better reports whether candidate beats current for a player at rating.
// Closest rating wins; ties go to the longer-waiting player, then to the
// lower userID so selection stays deterministic.
func better(candidate, current *QueueEntry, rating int) bool {
	if current == nil {
		return true
	}
	cd, bd := absDiff(candidate.Rating, rating), absDiff(current.Rating, rating)
	if cd != bd {
		return cd < bd
	}
	if candidate.JoinedAt != current.JoinedAt {
		return candidate.JoinedAt < current.JoinedAt
	}
	return candidate.UserID.String() < current.UserID.String()
}

// Match runs a full pairing attempt: find the best opponent, then commit by
// atomically removing both players from the queue. A lost race leaves the
// caller queued and returns nil, nil.
func (m *Matcher) Match(ctx context.Context, userID uuid.UUID) (*QueueEntry, error) {
	opponent, err := m.FindOpponent(ctx, userID)
	if err != nil || opponent == nil {
		return nil, err
	}

	if err := m.queue.RemovePair(ctx, userID, opponent.UserID); err != nil {
		if errors.Is(err, ErrPairUnavailable) {
			metrics.PairingCommitsLost.Inc()
			m.logger.Debug().
				Str("user_id", userID.String()).
				Str("opponent_id", opponent.UserID.String()).
				Msg("pairing commit lost, candidate gone")
			return nil, nil
		}
		return nil, fmt.Errorf("pairing commit: %w", err)
	}

	return opponent, nil
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
