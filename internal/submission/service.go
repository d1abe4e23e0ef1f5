// Package submission records player code submissions and applies judge
// verdicts to the live match they belong to.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/match"
	"github.com/gokatarajesh/code-arena/pkg/http/ws"
)

// Submission statuses.
const (
	StatusPending = "pending"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusError   = "error"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrEmptyCode         = errors.New("code must not be empty")
	ErrUnknownLanguage   = errors.New("unsupported language")
	ErrUnknownSubmission = errors.New("submission not found")
)

var supportedLanguages = map[string]struct{}{
	"javascript": {},
	"typescript": {},
	"python":     {},
	"go":         {},
	"java":       {},
	"cpp":        {},
}

// Record is a stored submission row.
type Record struct {
	ID          uuid.UUID `json:"id"`
	MatchID     uuid.UUID `json:"matchId"`
	UserID      uuid.UUID `json:"userId"`
	QuestionID  int       `json:"questionId"`
	Language    string    `json:"language"`
	Status      string    `json:"status"`
	TestsPassed int       `json:"testsPassed"`
	TotalTests  int       `json:"totalTests"`
	CreatedAt   int64     `json:"createdAt"`
}

// Repository persists submissions.
type Repository interface {
	Create(ctx context.Context, matchID, userID uuid.UUID, questionID int, code, language string) (uuid.UUID, error)
	UpdateResult(ctx context.Context, id uuid.UUID, status string, testsPassed, totalTests int) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	ListByMatchUser(ctx context.Context, matchID, userID uuid.UUID) ([]Record, error)
}

// Judge dispatches code for out-of-process execution. Results come back
// asynchronously through ApplyResult.
type Judge interface {
	Enqueue(ctx context.Context, submissionID uuid.UUID, questionID int, code, language string) error
}

// Outcomes records the effect of a finished judgement on a live match.
type Outcomes interface {
	RecordSubmissionOutcome(matchID, userID uuid.UUID, questionID, testsPassed, totalTests int) bool
}

// Transport notifies the submitter about their result.
type Transport interface {
	SendToUser(userID uuid.UUID, event string, payload any) bool
}

// Service validates submissions against the live match, persists them,
// and forwards judge verdicts to match bookkeeping.
type Service struct {
	store     *match.Store
	repo      Repository
	judge     Judge
	outcomes  Outcomes
	transport Transport
	logger    zerolog.Logger
}

// NewService creates a submission service.
func NewService(store *match.Store, repo Repository, judge Judge, outcomes Outcomes, transport Transport, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		repo:      repo,
		judge:     judge,
		outcomes:  outcomes,
		transport: transport,
		logger:    logger.With().Str("component", "submission").Logger(),
	}
}

// Submit validates and stores a submission, then hands it to the judge.
// Validation runs against the live match state so stale or malicious
// submissions never reach the executor.
func (s *Service) Submit(ctx context.Context, matchID, userID uuid.UUID, questionID int, code, language string) error {
	if strings.TrimSpace(code) == "" {
		return ErrEmptyCode
	}
	if _, ok := supportedLanguages[language]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}

	m, ok := s.store.Get(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	if err := m.CheckSubmission(userID, questionID); err != nil {
		return err
	}

	id, err := s.repo.Create(ctx, matchID, userID, questionID, code, language)
	if err != nil {
		return fmt.Errorf("store submission: %w", err)
	}

	if err := s.judge.Enqueue(ctx, id, questionID, code, language); err != nil {
		s.logger.Error().Err(err).
			Str("submission_id", id.String()).
			Msg("judge enqueue failed")
		if uerr := s.repo.UpdateResult(ctx, id, StatusError, 0, 0); uerr != nil {
			s.logger.Error().Err(uerr).Str("submission_id", id.String()).Msg("mark submission errored failed")
		}
		return fmt.Errorf("dispatch submission: %w", err)
	}

	s.logger.Info().
		Str("submission_id", id.String()).
		Str("match_id", matchID.String()).
		Str("user_id", userID.String()).
		Int("question_id", questionID).
		Str("language", language).
		Msg("submission dispatched")
	return nil
}

// ApplyResult records a judge verdict and updates the live match.
func (s *Service) ApplyResult(ctx context.Context, submissionID uuid.UUID, testsPassed, totalTests int) error {
	rec, err := s.repo.Get(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	if rec == nil {
		return ErrUnknownSubmission
	}

	status := resolveStatus(testsPassed, totalTests)
	if err := s.repo.UpdateResult(ctx, submissionID, status, testsPassed, totalTests); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}

	// Malformed verdicts never touch match bookkeeping; a zero-test run
	// must not count as a solve. Match bookkeeping notifies the submitter
	// on the normal path, so only the error path needs a direct send.
	if totalTests <= 0 {
		s.logger.Warn().
			Str("submission_id", submissionID.String()).
			Int("total_tests", totalTests).
			Msg("judge reported no tests")
		s.transport.SendToUser(rec.UserID, ws.TypeSubmissionResult, ws.SubmissionResultPayload{
			QuestionID:  rec.QuestionID,
			Status:      status,
			TestsPassed: testsPassed,
			TotalTests:  totalTests,
		})
		return nil
	}

	s.outcomes.RecordSubmissionOutcome(rec.MatchID, rec.UserID, rec.QuestionID, testsPassed, totalTests)
	return nil
}

// ListForUser returns a player's submissions within one match.
func (s *Service) ListForUser(ctx context.Context, matchID, userID uuid.UUID) ([]Record, error) {
	return s.repo.ListByMatchUser(ctx, matchID, userID)
}

func resolveStatus(testsPassed, totalTests int) string {
	switch {
	case totalTests <= 0:
		return StatusError
	case testsPassed == totalTests:
		return StatusPassed
	default:
		return StatusFailed
	}
}
