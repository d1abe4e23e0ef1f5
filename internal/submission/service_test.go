package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/code-arena/internal/match"
)

type fakeRepo struct {
	records   map[uuid.UUID]*Record
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]*Record)}
}

func (r *fakeRepo) Create(_ context.Context, matchID, userID uuid.UUID, questionID int, _, language string) (uuid.UUID, error) {
	if r.createErr != nil {
		return uuid.Nil, r.createErr
	}
	id := uuid.New()
	r.records[id] = &Record{
		ID:         id,
		MatchID:    matchID,
		UserID:     userID,
		QuestionID: questionID,
		Language:   language,
		Status:     StatusPending,
	}
	return id, nil
}

func (r *fakeRepo) UpdateResult(_ context.Context, id uuid.UUID, status string, testsPassed, totalTests int) error {
	rec, ok := r.records[id]
	if !ok {
		return errors.New("not found")
	}
	rec.Status = status
	rec.TestsPassed = testsPassed
	rec.TotalTests = totalTests
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func (r *fakeRepo) ListByMatchUser(_ context.Context, matchID, userID uuid.UUID) ([]Record, error) {
	var out []Record
	for _, rec := range r.records {
		if rec.MatchID == matchID && rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeJudge struct {
	calls int
	err   error
}

func (j *fakeJudge) Enqueue(_ context.Context, _ uuid.UUID, _ int, _, _ string) error {
	j.calls++
	return j.err
}

type outcomeCall struct {
	matchID, userID uuid.UUID
	questionID      int
	testsPassed     int
	totalTests      int
}

type fakeOutcomes struct {
	calls []outcomeCall
}

func (o *fakeOutcomes) RecordSubmissionOutcome(matchID, userID uuid.UUID, questionID, testsPassed, totalTests int) bool {
	o.calls = append(o.calls, outcomeCall{matchID, userID, questionID, testsPassed, totalTests})
	return true
}

type fakeNotifier struct {
	sent []string
}

func (n *fakeNotifier) SendToUser(_ uuid.UUID, event string, _ any) bool {
	n.sent = append(n.sent, event)
	return true
}

func runningMatch(store *match.Store, userID uuid.UUID) *match.ActiveMatch {
	m := &match.ActiveMatch{
		MatchID: uuid.New(),
		Players: [2]*match.Player{
			{UserID: userID, Solved: make(map[int]struct{})},
			{UserID: uuid.New(), Solved: make(map[int]struct{})},
		},
		QuestionIDs: []int{1, 2, 3},
		Status:      match.StatusRunning,
	}
	store.Put(m)
	return m
}

func newTestService() (*Service, *match.Store, *fakeRepo, *fakeJudge, *fakeOutcomes, *fakeNotifier) {
	store := match.NewStore()
	repo := newFakeRepo()
	judge := &fakeJudge{}
	outcomes := &fakeOutcomes{}
	notifier := &fakeNotifier{}
	svc := NewService(store, repo, judge, outcomes, notifier, zerolog.Nop())
	return svc, store, repo, judge, outcomes, notifier
}

func TestSubmitDispatchesToJudge(t *testing.T) {
	svc, store, repo, judge, _, _ := newTestService()
	userID := uuid.New()
	m := runningMatch(store, userID)

	err := svc.Submit(context.Background(), m.MatchID, userID, 1, "print('hi')", "python")
	require.NoError(t, err)
	assert.Equal(t, 1, judge.calls)
	assert.Len(t, repo.records, 1)
	for _, rec := range repo.records {
		assert.Equal(t, StatusPending, rec.Status)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, store, _, judge, _, _ := newTestService()
	userID := uuid.New()
	m := runningMatch(store, userID)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Submit(ctx, m.MatchID, userID, 1, "   ", "python"), ErrEmptyCode)
	assert.ErrorIs(t, svc.Submit(ctx, m.MatchID, userID, 1, "x", "cobol"), ErrUnknownLanguage)
	assert.ErrorIs(t, svc.Submit(ctx, uuid.New(), userID, 1, "x", "python"), ErrMatchNotFound)
	assert.ErrorIs(t, svc.Submit(ctx, m.MatchID, uuid.New(), 1, "x", "python"), match.ErrNotParticipant)
	assert.ErrorIs(t, svc.Submit(ctx, m.MatchID, userID, 99, "x", "python"), match.ErrUnknownQuestion)

	assert.Zero(t, judge.calls)
}

func TestSubmitRejectedOutsideRunning(t *testing.T) {
	svc, store, _, _, _, _ := newTestService()
	userID := uuid.New()
	m := runningMatch(store, userID)
	m.Status = match.StatusFinished

	err := svc.Submit(context.Background(), m.MatchID, userID, 1, "x", "python")
	assert.ErrorIs(t, err, match.ErrMatchNotRunning)
}

func TestSubmitRejectsSolvedQuestion(t *testing.T) {
	svc, store, _, _, _, _ := newTestService()
	userID := uuid.New()
	m := runningMatch(store, userID)
	m.Players[0].Solved[1] = struct{}{}

	err := svc.Submit(context.Background(), m.MatchID, userID, 1, "x", "python")
	assert.ErrorIs(t, err, match.ErrAlreadySolved)
}

func TestSubmitMarksRecordOnJudgeFailure(t *testing.T) {
	svc, store, repo, judge, _, _ := newTestService()
	judge.err = errors.New("judge down")
	userID := uuid.New()
	m := runningMatch(store, userID)

	err := svc.Submit(context.Background(), m.MatchID, userID, 1, "x", "python")
	require.Error(t, err)
	require.Len(t, repo.records, 1)
	for _, rec := range repo.records {
		assert.Equal(t, StatusError, rec.Status)
	}
}

func TestApplyResultForwardsToMatch(t *testing.T) {
	svc, store, repo, _, outcomes, _ := newTestService()
	userID := uuid.New()
	m := runningMatch(store, userID)

	id, err := repo.Create(context.Background(), m.MatchID, userID, 2, "x", "python")
	require.NoError(t, err)

	require.NoError(t, svc.ApplyResult(context.Background(), id, 5, 5))

	rec := repo.records[id]
	assert.Equal(t, StatusPassed, rec.Status)
	assert.Equal(t, 5, rec.TestsPassed)

	require.Len(t, outcomes.calls, 1)
	call := outcomes.calls[0]
	assert.Equal(t, m.MatchID, call.matchID)
	assert.Equal(t, userID, call.userID)
	assert.Equal(t, 2, call.questionID)
	assert.Equal(t, 5, call.testsPassed)
	assert.Equal(t, 5, call.totalTests)
}

func TestApplyResultPartialPassIsFailed(t *testing.T) {
	svc, store, repo, _, outcomes, _ := newTestService()
	userID := uuid.New()
	m := runningMatch(store, userID)

	id, _ := repo.Create(context.Background(), m.MatchID, userID, 1, "x", "python")
	require.NoError(t, svc.ApplyResult(context.Background(), id, 3, 5))

	assert.Equal(t, StatusFailed, repo.records[id].Status)
	assert.Len(t, outcomes.calls, 1)
}

func TestApplyResultZeroTestsIsError(t *testing.T) {
	svc, store, repo, _, outcomes, notifier := newTestService()
	userID := uuid.New()
	m := runningMatch(store, userID)

	id, _ := repo.Create(context.Background(), m.MatchID, userID, 1, "x", "python")
	require.NoError(t, svc.ApplyResult(context.Background(), id, 0, 0))

	assert.Equal(t, StatusError, repo.records[id].Status)
	assert.Empty(t, outcomes.calls, "a zero-test verdict must not count as a solve")
	assert.NotEmpty(t, notifier.sent)
}

func TestApplyResultUnknownSubmission(t *testing.T) {
	svc, _, _, _, _, _ := newTestService()
	err := svc.ApplyResult(context.Background(), uuid.New(), 5, 5)
	assert.ErrorIs(t, err, ErrUnknownSubmission)
}
