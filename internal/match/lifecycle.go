package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/match/rating"
	"github.com/gokatarajesh/code-arena/internal/metrics"
	"github.com/gokatarajesh/code-arena/pkg/http/ws"
)

const persistTimeout = 5 * time.Second

// ControllerConfig tunes match pacing. TickInterval shrinks in tests.
type ControllerConfig struct {
	DurationMinutes  int
	QuestionCount    int
	CountdownSeconds int
	TickInterval     time.Duration
}

// Controller drives matches through countdown, running and finished states,
// owning their timers and emitting lifecycle events.
type Controller struct {
	store       *Store
	persistence Persistence
	transport   Transport
	ratings     *rating.Calculator
	cfg         ControllerConfig
	logger      zerolog.Logger
}

// NewController creates a lifecycle controller.
func NewController(store *Store, persistence Persistence, transport Transport, cfg ControllerConfig, logger zerolog.Logger) *Controller {
	if cfg.DurationMinutes <= 0 {
		cfg.DurationMinutes = 15
	}
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = 5
	}
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = 5
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	return &Controller{
		store:       store,
		persistence: persistence,
		transport:   transport,
		ratings:     rating.NewCalculator(rating.DefaultKFactor),
		cfg:         cfg,
		logger:      logger.With().Str("component", "match_lifecycle").Logger(),
	}
}

// CreateMatch allocates the persistent match record and question set, builds
// the in-memory state and notifies both players of the pairing.
func (c *Controller) CreateMatch(ctx context.Context, p1, p2 Participant) (*ActiveMatch, error) {
	questions, err := c.persistence.FetchRandomQuestions(ctx, c.cfg.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions available")
	}

	questionIDs := make([]int, len(questions))
	for i, q := range questions {
		questionIDs[i] = q.ID
	}

	matchID, err := c.persistence.CreateMatch(ctx, [2]Participant{p1, p2}, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}

	m := &ActiveMatch{
		MatchID: matchID,
		Players: [2]*Player{
			{UserID: p1.UserID, DisplayName: p1.DisplayName, Rating: p1.Rating, Solved: make(map[int]struct{})},
			{UserID: p2.UserID, DisplayName: p2.DisplayName, Rating: p2.Rating, Solved: make(map[int]struct{})},
		},
		QuestionIDs: questionIDs,
		Status:      StatusCountdown,
	}
	c.store.Put(m)
	metrics.MatchesCreated.Inc()
	metrics.ActiveMatches.Set(float64(c.store.Count()))

	c.transport.AddUserToMatchRoom(p1.UserID, matchID)
	c.transport.AddUserToMatchRoom(p2.UserID, matchID)

	questionPayloads := make([]ws.QuestionPayload, len(questions))
	for i, q := range questions {
		questionPayloads[i] = ws.QuestionPayload{
			ID:         q.ID,
			Category:   q.Category,
			Difficulty: q.Difficulty,
			Prompt:     q.Prompt,
		}
	}

	c.transport.SendToUser(p1.UserID, ws.TypeMatchFound, ws.MatchFoundPayload{
		MatchID:   matchID.String(),
		Opponent:  ws.Opponent{ID: p2.UserID.String(), Name: p2.DisplayName, Rating: p2.Rating},
		Questions: questionPayloads,
	})
	c.transport.SendToUser(p2.UserID, ws.TypeMatchFound, ws.MatchFoundPayload{
		MatchID:   matchID.String(),
		Opponent:  ws.Opponent{ID: p1.UserID.String(), Name: p1.DisplayName, Rating: p1.Rating},
		Questions: questionPayloads,
	})

	c.logger.Info().
		Str("match_id", matchID.String()).
		Str("player1", p1.UserID.String()).
		Str("player2", p2.UserID.String()).
		Msg("match created")

	return m, nil
}

// MarkReady flags a player as ready during countdown. Returns false when the
// match is unknown, past countdown, or the user is not a participant. Once
// both players are ready the countdown timer starts.
func (c *Controller) MarkReady(matchID, userID uuid.UUID) bool {
	m, ok := c.store.Get(matchID)
	if !ok {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusCountdown {
		return false
	}
	player := m.player(userID)
	if player == nil {
		return false
	}
	player.Ready = true

	if m.Players[0].Ready && m.Players[1].Ready && m.countdownCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.countdownCancel = cancel
		go c.runCountdown(ctx, m)
	}
	return true
}

// runCountdown broadcasts CountdownSeconds..0 at tick pace, then transitions
// the match to running on the following tick.
func (c *Controller) runCountdown(ctx context.Context, m *ActiveMatch) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	remaining := c.cfg.CountdownSeconds
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := c.countdownTick(m, &remaining); done {
				return
			}
		}
	}
}

func (c *Controller) countdownTick(m *ActiveMatch, remaining *int) (done bool) {
	defer c.recoverTick(m.MatchID, "countdown")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusCountdown {
		return true // terminated mid-countdown
	}

	if *remaining >= 0 {
		c.transport.BroadcastToMatchRoom(m.MatchID, ws.TypeCountdown, ws.CountdownPayload{
			MatchID:          m.MatchID.String(),
			SecondsRemaining: *remaining,
		})
		*remaining--
		return false
	}

	c.startRunningLocked(m)
	return true
}

// startRunningLocked transitions countdown -> running. Caller holds m.mu.
func (c *Controller) startRunningLocked(m *ActiveMatch) {
	if m.countdownCancel != nil {
		m.countdownCancel()
		m.countdownCancel = nil
	}

	now := time.Now()
	m.Status = StatusRunning
	m.StartedAt = now.UnixMilli()
	m.EndsAt = m.StartedAt + int64(c.cfg.DurationMinutes)*60_000

	// Fire and forget; the in-memory match stays authoritative for live play.
	startedAt := now
	go c.persistStatus(m.MatchID, StatusRunning, &startedAt, nil)

	c.transport.BroadcastToMatchRoom(m.MatchID, ws.TypeMatchStarted, ws.MatchStartedPayload{
		MatchID:   m.MatchID.String(),
		StartedAt: now.UTC().Format(time.RFC3339),
	})

	ctx, cancel := context.WithCancel(context.Background())
	m.timerCancel = cancel
	go c.runTimer(ctx, m)

	c.logger.Info().Str("match_id", m.MatchID.String()).Msg("match started")
}

// runTimer broadcasts remaining seconds at 1 Hz and terminates the match
// with no forced winner when time runs out.
func (c *Controller) runTimer(ctx context.Context, m *ActiveMatch) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := c.timerTick(m); expired {
				c.Terminate(m.MatchID, nil)
				return
			}
		}
	}
}

func (c *Controller) timerTick(m *ActiveMatch) (expired bool) {
	defer c.recoverTick(m.MatchID, "timer")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusRunning {
		return false // terminated; ctx.Done will stop the loop
	}

	remaining := (m.EndsAt - time.Now().UnixMilli()) / 1000
	if remaining < 0 {
		remaining = 0
	}

	c.transport.BroadcastToMatchRoom(m.MatchID, ws.TypeTimerUpdate, ws.TimerUpdatePayload{
		MatchID:          m.MatchID.String(),
		RemainingSeconds: int(remaining),
	})

	return remaining <= 0
}

// RecordSubmissionOutcome applies a judge verdict to a running match. The
// submitting player sees the full pass/fail counts; the opponent only sees a
// solved flag for the question. A full solved set ends the match immediately
// with that player as winner.
func (c *Controller) RecordSubmissionOutcome(matchID, userID uuid.UUID, questionID, testsPassed, totalTests int) bool {
	m, ok := c.store.Get(matchID)
	if !ok {
		return false
	}

	m.mu.Lock()
	if m.Status != StatusRunning {
		m.mu.Unlock()
		return false
	}
	player := m.player(userID)
	if player == nil {
		m.mu.Unlock()
		return false
	}

	passed := testsPassed == totalTests
	if passed {
		player.Solved[questionID] = struct{}{}
	}

	status := "failed"
	if passed {
		status = "passed"
	}
	c.transport.SendToUser(userID, ws.TypeSubmissionResult, ws.SubmissionResultPayload{
		QuestionID:  questionID,
		Status:      status,
		TestsPassed: testsPassed,
		TotalTests:  totalTests,
	})
	if opponent := m.opponentOf(userID); opponent != nil {
		c.transport.SendToUser(opponent.UserID, ws.TypeOpponentProgress, ws.OpponentProgressPayload{
			QuestionID: questionID,
			Solved:     passed,
		})
	}

	fullSolve := len(player.Solved) == len(m.QuestionIDs)
	m.mu.Unlock()

	if fullSolve {
		winner := userID
		c.Terminate(matchID, &winner)
	}
	return true
}

// Terminate finishes a match. winnerID nil resolves the outcome by comparing
// solved counts (equal counts draw). Idempotent and safe to call
// concurrently from the timer-expiry and full-solve paths; only the first
// call takes effect.
func (c *Controller) Terminate(matchID uuid.UUID, winnerID *uuid.UUID) {
	m, ok := c.store.Get(matchID)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.Status == StatusFinished {
		m.mu.Unlock()
		return
	}
	if m.countdownCancel != nil {
		m.countdownCancel()
		m.countdownCancel = nil
	}
	if m.timerCancel != nil {
		m.timerCancel()
		m.timerCancel = nil
	}
	m.Status = StatusFinished

	p1, p2 := m.Players[0], m.Players[1]
	if winnerID == nil {
		if len(p1.Solved) > len(p2.Solved) {
			winnerID = &p1.UserID
		} else if len(p2.Solved) > len(p1.Solved) {
			winnerID = &p2.UserID
		}
	}

	changes := c.ratings.Changes(
		rating.Seed{UserID: p1.UserID, Rating: p1.Rating},
		rating.Seed{UserID: p2.UserID, Rating: p2.Rating},
		winnerID,
	)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	endedAt := time.Now()
	if err := c.persistence.UpdateMatchStatus(ctx, matchID, StatusFinished, nil, &endedAt); err != nil {
		metrics.PersistenceFailures.Inc()
		c.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("persist final status failed")
	}
	if err := c.persistence.RecordMatchResult(ctx, matchID, winnerID); err != nil {
		metrics.PersistenceFailures.Inc()
		c.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("persist match result failed")
	}
	for _, p := range m.Players {
		if err := c.persistence.RecordParticipantRatingChange(ctx, matchID, p.UserID, changes[p.UserID]); err != nil {
			metrics.PersistenceFailures.Inc()
			c.logger.Error().Err(err).Str("user_id", p.UserID.String()).Msg("persist rating change failed")
		}
		if err := c.persistence.IncrementUserRating(ctx, p.UserID, changes[p.UserID]); err != nil {
			metrics.PersistenceFailures.Inc()
			c.logger.Error().Err(err).Str("user_id", p.UserID.String()).Msg("persist user rating failed")
		}
	}

	ratingChanges := make(map[string]int, len(changes))
	for id, delta := range changes {
		ratingChanges[id.String()] = delta
	}
	var winnerStr *string
	outcome := "draw"
	if winnerID != nil {
		s := winnerID.String()
		winnerStr = &s
		outcome = "win"
	}
	c.transport.BroadcastToMatchRoom(matchID, ws.TypeMatchEnded, ws.MatchEndedPayload{
		MatchID:       matchID.String(),
		WinnerID:      winnerStr,
		RatingChanges: ratingChanges,
	})

	for _, p := range m.Players {
		c.transport.RemoveUserFromMatchRoom(p.UserID, matchID)
	}
	c.store.Delete(matchID)

	metrics.MatchesFinished.WithLabelValues(outcome).Inc()
	metrics.ActiveMatches.Set(float64(c.store.Count()))

	c.logger.Info().
		Str("match_id", matchID.String()).
		Str("outcome", outcome).
		Msg("match finished")
}

// Shutdown stops all timers and empties the store. Live matches are dropped
// without settlement; only history already persisted survives.
func (c *Controller) Shutdown() {
	for _, m := range c.store.Drain() {
		m.mu.Lock()
		if m.countdownCancel != nil {
			m.countdownCancel()
			m.countdownCancel = nil
		}
		if m.timerCancel != nil {
			m.timerCancel()
			m.timerCancel = nil
		}
		m.Status = StatusFinished
		m.mu.Unlock()
	}
	metrics.ActiveMatches.Set(0)
}

func (c *Controller) persistStatus(matchID uuid.UUID, status string, startedAt, endedAt *time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := c.persistence.UpdateMatchStatus(ctx, matchID, status, startedAt, endedAt); err != nil {
		metrics.PersistenceFailures.Inc()
		c.logger.Error().Err(err).
			Str("match_id", matchID.String()).
			Str("status", status).
			Msg("persist match status failed")
	}
}

// recoverTick keeps a panicking tick handler from taking down the process;
// the timer itself keeps running.
func (c *Controller) recoverTick(matchID uuid.UUID, timer string) {
	if r := recover(); r != nil {
		c.logger.Error().
			Str("match_id", matchID.String()).
			Str("timer", timer).
			Interface("panic", r).
			Msg("tick handler panicked")
	}
}
