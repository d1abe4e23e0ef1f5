package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gokatarajesh/code-arena/internal/submission"
)

// SubmissionRepository contains DB helpers for code submissions.
// It implements submission.Repository.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository constructs a new submission repository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Create inserts a pending submission and returns its ID.
func (r *SubmissionRepository) Create(ctx context.Context, matchID, userID uuid.UUID, questionID int, code, language string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (match_id, user_id, question_id, code, language, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		matchID, userID, questionID, code, language, submission.StatusPending,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert submission: %w", err)
	}
	return id, nil
}

// UpdateResult records the judge verdict on a submission.
func (r *SubmissionRepository) UpdateResult(ctx context.Context, id uuid.UUID, status string, testsPassed, totalTests int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET status = $2, tests_passed = $3, total_tests = $4, updated_at = now()
		 WHERE id = $1`,
		id, status, testsPassed, totalTests,
	)
	if err != nil {
		return fmt.Errorf("update submission result: %w", err)
	}
	return nil
}

// Get fetches a submission by ID. Returns nil when not found.
func (r *SubmissionRepository) Get(ctx context.Context, id uuid.UUID) (*submission.Record, error) {
	var (
		rec       submission.Record
		createdAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, match_id, user_id, question_id, language, status, tests_passed, total_tests, created_at
		 FROM submissions WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.MatchID, &rec.UserID, &rec.QuestionID, &rec.Language,
		&rec.Status, &rec.TestsPassed, &rec.TotalTests, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch submission: %w", err)
	}
	rec.CreatedAt = createdAt.UnixMilli()
	return &rec, nil
}

// ListByMatchUser returns one player's submissions within a match,
// oldest first.
func (r *SubmissionRepository) ListByMatchUser(ctx context.Context, matchID, userID uuid.UUID) ([]submission.Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, match_id, user_id, question_id, language, status, tests_passed, total_tests, created_at
		 FROM submissions
		 WHERE match_id = $1 AND user_id = $2
		 ORDER BY created_at ASC`,
		matchID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var records []submission.Record
	for rows.Next() {
		var (
			rec       submission.Record
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.MatchID, &rec.UserID, &rec.QuestionID, &rec.Language,
			&rec.Status, &rec.TestsPassed, &rec.TotalTests, &createdAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		rec.CreatedAt = createdAt.UnixMilli()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return records, nil
}
