package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/code-arena/pkg/http/ws"
)

type fakePersistence struct {
	mu             sync.Mutex
	createdMatchID uuid.UUID
	statusUpdates  []string
	ratingDeltas   map[uuid.UUID]int
	userDeltas     map[uuid.UUID]int
	resultWinner   *uuid.UUID
	resultRecorded bool
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		createdMatchID: uuid.New(),
		ratingDeltas:   make(map[uuid.UUID]int),
		userDeltas:     make(map[uuid.UUID]int),
	}
}

func (p *fakePersistence) CreateMatch(_ context.Context, _ [2]Participant, _ []int) (uuid.UUID, error) {
	return p.createdMatchID, nil
}

func (p *fakePersistence) UpdateMatchStatus(_ context.Context, _ uuid.UUID, status string, _, _ *time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusUpdates = append(p.statusUpdates, status)
	return nil
}

func (p *fakePersistence) RecordMatchResult(_ context.Context, _ uuid.UUID, winnerID *uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultWinner = winnerID
	p.resultRecorded = true
	return nil
}

func (p *fakePersistence) RecordParticipantRatingChange(_ context.Context, _ uuid.UUID, userID uuid.UUID, delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ratingDeltas[userID] = delta
	return nil
}

func (p *fakePersistence) IncrementUserRating(_ context.Context, userID uuid.UUID, delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userDeltas[userID] = delta
	return nil
}

func (p *fakePersistence) FetchRandomQuestions(_ context.Context, count int) ([]Question, error) {
	questions := make([]Question, count)
	for i := range questions {
		questions[i] = Question{ID: i + 1, Category: "arrays", Difficulty: "easy", Prompt: "solve it"}
	}
	return questions, nil
}

type sentEvent struct {
	to      uuid.UUID // zero for room broadcasts
	room    uuid.UUID
	event   string
	payload any
}

type fakeTransport struct {
	mu     sync.Mutex
	events []sentEvent
}

func (t *fakeTransport) SendToUser(userID uuid.UUID, event string, payload any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, sentEvent{to: userID, event: event, payload: payload})
	return true
}

func (t *fakeTransport) BroadcastToMatchRoom(matchID uuid.UUID, event string, payload any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, sentEvent{room: matchID, event: event, payload: payload})
}

func (t *fakeTransport) AddUserToMatchRoom(_, _ uuid.UUID)      {}
func (t *fakeTransport) RemoveUserFromMatchRoom(_, _ uuid.UUID) {}

func (t *fakeTransport) byEvent(event string) []sentEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var matched []sentEvent
	for _, e := range t.events {
		if e.event == event {
			matched = append(matched, e)
		}
	}
	return matched
}

func newTestController(t *testing.T) (*Controller, *Store, *fakePersistence, *fakeTransport) {
	t.Helper()
	store := NewStore()
	persistence := newFakePersistence()
	transport := &fakeTransport{}
	controller := NewController(store, persistence, transport, ControllerConfig{
		DurationMinutes:  15,
		QuestionCount:    3,
		CountdownSeconds: 2,
		TickInterval:     5 * time.Millisecond,
	}, zerolog.Nop())
	return controller, store, persistence, transport
}

func twoPlayers() (Participant, Participant) {
	return Participant{UserID: uuid.New(), DisplayName: "alice", Rating: 1200},
		Participant{UserID: uuid.New(), DisplayName: "bob", Rating: 1200}
}

func TestCreateMatchNotifiesBothPlayers(t *testing.T) {
	controller, store, persistence, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)
	assert.Equal(t, persistence.createdMatchID, m.MatchID)
	assert.Equal(t, StatusCountdown, m.Status)
	assert.Len(t, m.QuestionIDs, 3)

	_, ok := store.Get(m.MatchID)
	assert.True(t, ok)

	found := transport.byEvent(ws.TypeMatchFound)
	require.Len(t, found, 2)

	// Each player sees the other as opponent.
	first := found[0].payload.(ws.MatchFoundPayload)
	assert.Equal(t, p2.UserID.String(), first.Opponent.ID)
	assert.Equal(t, "bob", first.Opponent.Name)
	second := found[1].payload.(ws.MatchFoundPayload)
	assert.Equal(t, p1.UserID.String(), second.Opponent.ID)
}

func TestCountdownRunsAndStartsMatch(t *testing.T) {
	controller, store, persistence, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)

	assert.True(t, controller.MarkReady(m.MatchID, p1.UserID))
	assert.True(t, controller.MarkReady(m.MatchID, p2.UserID))

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	ticks := transport.byEvent(ws.TypeCountdown)
	require.Len(t, ticks, 3) // 2, 1, 0
	assert.Equal(t, 2, ticks[0].payload.(ws.CountdownPayload).SecondsRemaining)
	assert.Equal(t, 0, ticks[2].payload.(ws.CountdownPayload).SecondsRemaining)

	started := transport.byEvent(ws.TypeMatchStarted)
	require.Len(t, started, 1)

	m.mu.Lock()
	assert.NotZero(t, m.StartedAt)
	assert.Equal(t, m.StartedAt+15*60_000, m.EndsAt)
	m.mu.Unlock()

	require.Eventually(t, func() bool {
		persistence.mu.Lock()
		defer persistence.mu.Unlock()
		return len(persistence.statusUpdates) > 0 && persistence.statusUpdates[0] == StatusRunning
	}, time.Second, 5*time.Millisecond)

	_, ok := store.Get(m.MatchID)
	assert.True(t, ok)

	controller.Shutdown()
}

func TestCountdownWaitsForBothPlayers(t *testing.T) {
	controller, _, _, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)

	assert.True(t, controller.MarkReady(m.MatchID, p1.UserID))
	time.Sleep(50 * time.Millisecond)

	m.mu.Lock()
	assert.Equal(t, StatusCountdown, m.Status)
	m.mu.Unlock()
	assert.Empty(t, transport.byEvent(ws.TypeCountdown))
}

func TestMarkReadyRejectsOutsiders(t *testing.T) {
	controller, _, _, _ := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)

	assert.False(t, controller.MarkReady(m.MatchID, uuid.New()))
	assert.False(t, controller.MarkReady(uuid.New(), p1.UserID))
}

func TestMarkReadyOnlyDuringCountdown(t *testing.T) {
	controller, _, _, _ := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)

	m.mu.Lock()
	m.Status = StatusRunning
	m.mu.Unlock()

	assert.False(t, controller.MarkReady(m.MatchID, p1.UserID))
}

// forceRunning puts a freshly created match into the running state without
// starting its timers, so submission and termination paths can be tested
// deterministically.
func forceRunning(m *ActiveMatch) {
	m.mu.Lock()
	m.Status = StatusRunning
	m.StartedAt = time.Now().UnixMilli()
	m.EndsAt = m.StartedAt + 15*60_000
	m.mu.Unlock()
}

func TestSubmissionOutcomeHidesCountsFromOpponent(t *testing.T) {
	controller, _, _, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)
	forceRunning(m)

	ok := controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, 1, 3, 5)
	assert.True(t, ok)

	results := transport.byEvent(ws.TypeSubmissionResult)
	require.Len(t, results, 1)
	assert.Equal(t, p1.UserID, results[0].to)
	payload := results[0].payload.(ws.SubmissionResultPayload)
	assert.Equal(t, "failed", payload.Status)
	assert.Equal(t, 3, payload.TestsPassed)
	assert.Equal(t, 5, payload.TotalTests)

	progress := transport.byEvent(ws.TypeOpponentProgress)
	require.Len(t, progress, 1)
	assert.Equal(t, p2.UserID, progress[0].to)
	opp := progress[0].payload.(ws.OpponentProgressPayload)
	assert.Equal(t, 1, opp.QuestionID)
	assert.False(t, opp.Solved)

	// A failed run does not mark the question solved.
	m.mu.Lock()
	assert.Empty(t, m.Players[0].Solved)
	m.mu.Unlock()
}

func TestSubmissionOutcomeSolveIsIdempotent(t *testing.T) {
	controller, _, _, _ := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)
	forceRunning(m)

	assert.True(t, controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, 1, 5, 5))
	assert.True(t, controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, 1, 5, 5))

	m.mu.Lock()
	assert.Len(t, m.Players[0].Solved, 1)
	m.mu.Unlock()
}

func TestSubmissionOutcomeIgnoredOutsideRunning(t *testing.T) {
	controller, _, _, _ := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)

	// Still in countdown.
	assert.False(t, controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, 1, 5, 5))
	assert.False(t, controller.RecordSubmissionOutcome(uuid.New(), p1.UserID, 1, 5, 5))
}

func TestFullSolveEndsMatchWithWinner(t *testing.T) {
	controller, store, persistence, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)
	require.True(t, controller.MarkReady(m.MatchID, p1.UserID))
	require.True(t, controller.MarkReady(m.MatchID, p2.UserID))
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	for _, qid := range m.QuestionIDs {
		controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, qid, 5, 5)
	}

	ended := transport.byEvent(ws.TypeMatchEnded)
	require.Len(t, ended, 1)
	payload := ended[0].payload.(ws.MatchEndedPayload)
	require.NotNil(t, payload.WinnerID)
	assert.Equal(t, p1.UserID.String(), *payload.WinnerID)

	// Equal seeds: winner +16, loser -16.
	assert.Equal(t, 16, payload.RatingChanges[p1.UserID.String()])
	assert.Equal(t, -16, payload.RatingChanges[p2.UserID.String()])

	persistence.mu.Lock()
	assert.True(t, persistence.resultRecorded)
	require.NotNil(t, persistence.resultWinner)
	assert.Equal(t, p1.UserID, *persistence.resultWinner)
	assert.Equal(t, 16, persistence.ratingDeltas[p1.UserID])
	assert.Equal(t, -16, persistence.ratingDeltas[p2.UserID])
	assert.Equal(t, 16, persistence.userDeltas[p1.UserID])
	assert.Equal(t, -16, persistence.userDeltas[p2.UserID])
	persistence.mu.Unlock()

	_, ok := store.Get(m.MatchID)
	assert.False(t, ok)
}

func TestExpiryResolvesWinnerBySolvedCounts(t *testing.T) {
	controller, _, persistence, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)
	forceRunning(m)

	controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, 1, 5, 5)
	controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, 2, 5, 5)
	controller.RecordSubmissionOutcome(m.MatchID, p2.UserID, 1, 5, 5)

	controller.Terminate(m.MatchID, nil)

	ended := transport.byEvent(ws.TypeMatchEnded)
	require.Len(t, ended, 1)
	payload := ended[0].payload.(ws.MatchEndedPayload)
	require.NotNil(t, payload.WinnerID)
	assert.Equal(t, p1.UserID.String(), *payload.WinnerID)

	persistence.mu.Lock()
	require.NotNil(t, persistence.resultWinner)
	assert.Equal(t, p1.UserID, *persistence.resultWinner)
	persistence.mu.Unlock()
}

func TestExpiryWithEqualSolvedCountsIsDraw(t *testing.T) {
	controller, _, persistence, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)
	forceRunning(m)

	controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, 1, 5, 5)
	controller.RecordSubmissionOutcome(m.MatchID, p2.UserID, 2, 5, 5)

	controller.Terminate(m.MatchID, nil)

	ended := transport.byEvent(ws.TypeMatchEnded)
	require.Len(t, ended, 1)
	payload := ended[0].payload.(ws.MatchEndedPayload)
	assert.Nil(t, payload.WinnerID)

	// Equal seeds drawing: no rating movement.
	assert.Equal(t, 0, payload.RatingChanges[p1.UserID.String()])
	assert.Equal(t, 0, payload.RatingChanges[p2.UserID.String()])

	persistence.mu.Lock()
	assert.True(t, persistence.resultRecorded)
	assert.Nil(t, persistence.resultWinner)
	persistence.mu.Unlock()
}

func TestTerminateIsIdempotent(t *testing.T) {
	controller, store, _, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)
	forceRunning(m)

	winner := p1.UserID
	controller.Terminate(m.MatchID, &winner)
	controller.Terminate(m.MatchID, &winner)
	controller.Terminate(m.MatchID, nil)

	assert.Len(t, transport.byEvent(ws.TypeMatchEnded), 1)
	_, ok := store.Get(m.MatchID)
	assert.False(t, ok)
	assert.Zero(t, store.Count())
}

func TestTimerExpiryTerminatesMatch(t *testing.T) {
	controller, store, _, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)

	// Running with no time left: the first tick reports zero and expires.
	m.mu.Lock()
	m.Status = StatusRunning
	m.StartedAt = time.Now().UnixMilli()
	m.EndsAt = m.StartedAt
	ctx, cancel := context.WithCancel(context.Background())
	m.timerCancel = cancel
	m.mu.Unlock()
	go controller.runTimer(ctx, m)

	require.Eventually(t, func() bool {
		_, ok := store.Get(m.MatchID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	updates := transport.byEvent(ws.TypeTimerUpdate)
	require.NotEmpty(t, updates)
	assert.Equal(t, 0, updates[len(updates)-1].payload.(ws.TimerUpdatePayload).RemainingSeconds)
	assert.Len(t, transport.byEvent(ws.TypeMatchEnded), 1)
}

func TestNoTicksAfterTermination(t *testing.T) {
	controller, store, _, transport := newTestController(t)
	p1, p2 := twoPlayers()

	m, err := controller.CreateMatch(context.Background(), p1, p2)
	require.NoError(t, err)

	// Full path: both ready, countdown runs out, the running timer goes live.
	require.True(t, controller.MarkReady(m.MatchID, p1.UserID))
	require.True(t, controller.MarkReady(m.MatchID, p2.UserID))
	require.Eventually(t, func() bool {
		return len(transport.byEvent(ws.TypeTimerUpdate)) > 0
	}, time.Second, 5*time.Millisecond)

	// Early win against a live timer.
	for _, qid := range m.QuestionIDs {
		controller.RecordSubmissionOutcome(m.MatchID, p1.UserID, qid, 5, 5)
	}

	require.Eventually(t, func() bool {
		_, ok := store.Get(m.MatchID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	ended := transport.byEvent(ws.TypeMatchEnded)
	require.Len(t, ended, 1)
	payload := ended[0].payload.(ws.MatchEndedPayload)
	require.NotNil(t, payload.WinnerID)
	assert.Equal(t, p1.UserID.String(), *payload.WinnerID)

	// The cancelled timer must stay silent from here on.
	before := len(transport.byEvent(ws.TypeTimerUpdate)) + len(transport.byEvent(ws.TypeCountdown))
	time.Sleep(50 * time.Millisecond)
	after := len(transport.byEvent(ws.TypeTimerUpdate)) + len(transport.byEvent(ws.TypeCountdown))
	assert.Equal(t, before, after)
}
