// Package repository contains the Postgres data access layer.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gokatarajesh/code-arena/internal/match"
)

// MatchRepository contains DB helpers for matches, participants and
// their question assignments. It implements match.Persistence.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository constructs a new match repository.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// CreateMatch persists the match row, both participants, and the ordered
// question assignment in one transaction.
func (r *MatchRepository) CreateMatch(ctx context.Context, participants [2]match.Participant, questionIDs []int) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var matchID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO matches (status) VALUES ($1) RETURNING id`,
		match.StatusCountdown,
	).Scan(&matchID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert match: %w", err)
	}

	for _, p := range participants {
		_, err = tx.Exec(ctx,
			`INSERT INTO match_participants (match_id, user_id, rating_before)
			 VALUES ($1, $2, $3)`,
			matchID, p.UserID, p.Rating,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	for i, qid := range questionIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO match_questions (match_id, question_id, position)
			 VALUES ($1, $2, $3)`,
			matchID, qid, i,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert match question: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit tx: %w", err)
	}
	return matchID, nil
}

// UpdateMatchStatus transitions a match and stamps the given timestamps.
// Nil timestamps are left untouched.
func (r *MatchRepository) UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, status string, startedAt, endedAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE matches
		 SET status = $2,
		     started_at = COALESCE($3, started_at),
		     ended_at = COALESCE($4, ended_at)
		 WHERE id = $1`,
		matchID, status, startedAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	return nil
}

// RecordMatchResult stores the winner. Nil winnerID marks a draw.
func (r *MatchRepository) RecordMatchResult(ctx context.Context, matchID uuid.UUID, winnerID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE matches SET winner_id = $2 WHERE id = $1`,
		matchID, winnerID,
	)
	if err != nil {
		return fmt.Errorf("record match result: %w", err)
	}
	return nil
}

// RecordParticipantRatingChange stores the settled Elo delta for one side.
func (r *MatchRepository) RecordParticipantRatingChange(ctx context.Context, matchID, userID uuid.UUID, delta int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE match_participants SET rating_change = $3
		 WHERE match_id = $1 AND user_id = $2`,
		matchID, userID, delta,
	)
	if err != nil {
		return fmt.Errorf("record rating change: %w", err)
	}
	return nil
}

// IncrementUserRating applies a settled Elo delta to the user row.
func (r *MatchRepository) IncrementUserRating(ctx context.Context, userID uuid.UUID, delta int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET rating = rating + $2, updated_at = now() WHERE id = $1`,
		userID, delta,
	)
	if err != nil {
		return fmt.Errorf("increment user rating: %w", err)
	}
	return nil
}

// FetchRandomQuestions picks count random questions for a new match.
func (r *MatchRepository) FetchRandomQuestions(ctx context.Context, count int) ([]match.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, category, difficulty, prompt
		 FROM questions
		 ORDER BY random()
		 LIMIT $1`,
		count,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	defer rows.Close()

	var questions []match.Question
	for rows.Next() {
		var q match.Question
		if err := rows.Scan(&q.ID, &q.Category, &q.Difficulty, &q.Prompt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

// ListHistory returns a user's finished matches, newest first.
func (r *MatchRepository) ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]match.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id,
		        opp.user_id,
		        u.display_name,
		        opp.rating_before,
		        CASE
		          WHEN m.winner_id IS NULL THEN 'draw'
		          WHEN m.winner_id = $1 THEN 'win'
		          ELSE 'loss'
		        END,
		        me.rating_change,
		        m.started_at,
		        m.ended_at
		 FROM matches m
		 JOIN match_participants me ON me.match_id = m.id AND me.user_id = $1
		 JOIN match_participants opp ON opp.match_id = m.id AND opp.user_id <> $1
		 JOIN users u ON u.id = opp.user_id
		 WHERE m.status = $2
		 ORDER BY m.ended_at DESC NULLS LAST
		 LIMIT $3 OFFSET $4`,
		userID, match.StatusFinished, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []match.HistoryEntry
	for rows.Next() {
		var e match.HistoryEntry
		if err := rows.Scan(
			&e.MatchID, &e.OpponentID, &e.OpponentName, &e.OpponentRating,
			&e.Result, &e.RatingChange, &e.StartedAt, &e.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// GetDetail fetches a single match with both participants.
// Returns nil when the match does not exist.
func (r *MatchRepository) GetDetail(ctx context.Context, matchID uuid.UUID) (*match.MatchDetail, error) {
	var d match.MatchDetail
	err := r.pool.QueryRow(ctx,
		`SELECT id, status, winner_id, started_at, ended_at
		 FROM matches WHERE id = $1`,
		matchID,
	).Scan(&d.MatchID, &d.Status, &d.WinnerID, &d.StartedAt, &d.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch match: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT p.user_id, u.display_name, p.rating_before, p.rating_change
		 FROM match_participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.match_id = $1`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p match.MatchDetailPlayer
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.RatingBefore, &p.RatingChange); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		d.Players = append(d.Players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return &d, nil
}
