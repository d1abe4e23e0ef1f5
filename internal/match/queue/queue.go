package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/match"
)

const (
	queueKey       = "matchmaking:queue"
	dataKeyPrefix  = "matchmaking:player:"
	dataFieldName  = "display_name"
	dataFieldScore = "rating"
	dataFieldJoin  = "joined_at"
)

// ErrPairUnavailable is returned by RemovePair when either member left the
// queue between candidate selection and the pairing commit. Callers treat it
// as "opponent no longer available", not a failure.
var ErrPairUnavailable = match.ErrPairUnavailable

// removePairScript removes both members and their data hashes, but only if
// both are still queued. Running it as a single script makes the pairing
// commit atomic: two racing matchers cannot both claim the same player.
var removePairScript = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) and redis.call("ZSCORE", KEYS[1], ARGV[2]) then
	redis.call("ZREM", KEYS[1], ARGV[1], ARGV[2])
	redis.call("DEL", KEYS[2], KEYS[3])
	return 1
end
return 0
`)

// clearScript drops the queue and every player hash in one script, so an
// enqueue racing with shutdown cannot leave an orphaned hash behind.
var clearScript = redis.NewScript(`
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, member in ipairs(members) do
	redis.call("DEL", ARGV[1] .. member)
end
redis.call("DEL", KEYS[1])
return #members
`)

// Queue is the Redis-backed rating queue: a sorted set scored by rating plus
// a per-player data hash. A user is queued at most once; Enqueue upserts.
type Queue struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// New creates a rating queue over the given Redis client.
func New(redisClient *redis.Client, logger zerolog.Logger) *Queue {
	return &Queue{
		redis:  redisClient,
		logger: logger.With().Str("component", "rating_queue").Logger(),
	}
}

func dataKey(userID uuid.UUID) string {
	return dataKeyPrefix + userID.String()
}

// Enqueue adds or replaces a player's queue membership.
func (q *Queue) Enqueue(ctx context.Context, entry match.QueueEntry) error {
	pipe := q.redis.TxPipeline()
	pipe.ZAdd(ctx, queueKey, redis.Z{Score: float64(entry.Rating), Member: entry.UserID.String()})
	pipe.HSet(ctx, dataKey(entry.UserID), map[string]interface{}{
		dataFieldName:  entry.DisplayName,
		dataFieldScore: entry.Rating,
		dataFieldJoin:  entry.JoinedAt,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", entry.UserID, err)
	}

	q.logger.Info().
		Str("user_id", entry.UserID.String()).
		Int("rating", entry.Rating).
		Msg("player enqueued")
	return nil
}

// Dequeue removes a player; removing an absent player is a no-op.
func (q *Queue) Dequeue(ctx context.Context, userID uuid.UUID) error {
	pipe := q.redis.TxPipeline()
	pipe.ZRem(ctx, queueKey, userID.String())
	pipe.Del(ctx, dataKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dequeue %s: %w", userID, err)
	}
	return nil
}

// Contains reports whether the user is currently queued.
func (q *Queue) Contains(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := q.redis.ZScore(ctx, queueKey, userID.String()).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("queue membership %s: %w", userID, err)
	}
	return true, nil
}

// PositionOf returns the 1-based rank by ascending rating, or -1 if absent.
func (q *Queue) PositionOf(ctx context.Context, userID uuid.UUID) (int, error) {
	rank, err := q.redis.ZRank(ctx, queueKey, userID.String()).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("queue position %s: %w", userID, err)
	}
	return int(rank) + 1, nil
}

// Size returns the number of waiting players.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	n, err := q.redis.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}

// RangeByRating returns the userIDs with rating in [min, max], ordered by
// ascending rating.
func (q *Queue) RangeByRating(ctx context.Context, min, max int) ([]uuid.UUID, error) {
	members, err := q.redis.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: strconv.Itoa(min),
		Max: strconv.Itoa(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue range [%d, %d]: %w", min, max, err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			q.logger.Warn().Str("member", member).Msg("skip malformed queue member")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Entry fetches the stored queue data for a user, or nil if not queued.
func (q *Queue) Entry(ctx context.Context, userID uuid.UUID) (*match.QueueEntry, error) {
	data, err := q.redis.HGetAll(ctx, dataKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue entry %s: %w", userID, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	rating, err := strconv.Atoi(data[dataFieldScore])
	if err != nil {
		return nil, fmt.Errorf("queue entry %s: parse rating: %w", userID, err)
	}
	joinedAt, err := strconv.ParseInt(data[dataFieldJoin], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("queue entry %s: parse joined_at: %w", userID, err)
	}

	return &match.QueueEntry{
		UserID:      userID,
		DisplayName: data[dataFieldName],
		Rating:      rating,
		JoinedAt:    joinedAt,
	}, nil
}

// RemovePair atomically removes both players as a pairing commit. Returns
// ErrPairUnavailable if either is no longer queued; in that case neither is
// removed and no match must be created.
func (q *Queue) RemovePair(ctx context.Context, a, b uuid.UUID) error {
	res, err := removePairScript.Run(ctx, q.redis,
		[]string{queueKey, dataKey(a), dataKey(b)},
		a.String(), b.String(),
	).Int()
	if err != nil {
		return fmt.Errorf("remove pair: %w", err)
	}
	if res == 0 {
		return ErrPairUnavailable
	}
	return nil
}

// Clear atomically empties the queue, used on shutdown and in tests.
func (q *Queue) Clear(ctx context.Context) error {
	if err := clearScript.Run(ctx, q.redis, []string{queueKey}, dataKeyPrefix).Err(); err != nil {
		return fmt.Errorf("queue clear: %w", err)
	}
	return nil
}
