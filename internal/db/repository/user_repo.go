package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is a player account row.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Rating      int       `json:"rating"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserRepository contains DB helpers for player accounts.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a new user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get fetches a user by ID. Returns nil when not found.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, email, rating, created_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.DisplayName, &u.Email, &u.Rating, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return &u, nil
}

// Rating returns just the current rating for a user.
func (r *UserRepository) Rating(ctx context.Context, id uuid.UUID) (int, error) {
	var rating int
	err := r.pool.QueryRow(ctx,
		`SELECT rating FROM users WHERE id = $1`, id,
	).Scan(&rating)
	if err != nil {
		return 0, fmt.Errorf("fetch rating: %w", err)
	}
	return rating, nil
}
