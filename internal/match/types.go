package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Submission validation failures surfaced to clients.
var (
	ErrMatchNotRunning = errors.New("match is not running")
	ErrNotParticipant  = errors.New("user is not a participant")
	ErrUnknownQuestion = errors.New("question is not part of this match")
	ErrAlreadySolved   = errors.New("question already solved")
)

// Match lifecycle states. Transitions are monotonic:
// countdown -> running -> finished.
const (
	StatusCountdown = "countdown"
	StatusRunning   = "running"
	StatusFinished  = "finished"
)

// QueueEntry represents a player waiting in the matchmaking queue.
type QueueEntry struct {
	UserID      uuid.UUID
	DisplayName string
	Rating      int
	JoinedAt    int64 // unix millis
}

// Participant is the identity tuple a match is created from.
type Participant struct {
	UserID      uuid.UUID
	DisplayName string
	Rating      int
}

// Player tracks one side's live progress inside an active match.
type Player struct {
	UserID      uuid.UUID
	DisplayName string
	Rating      int
	Solved      map[int]struct{} // questionIDs with a fully passing submission
	Ready       bool
}

// ActiveMatch is the authoritative in-memory state of a live duel.
// All lifecycle mutations are serialized on mu.
type ActiveMatch struct {
	mu sync.Mutex

	MatchID     uuid.UUID
	Players     [2]*Player
	QuestionIDs []int
	Status      string
	StartedAt   int64 // unix millis, 0 until running
	EndsAt      int64 // unix millis, 0 until running

	// At most one of these is live at a time.
	countdownCancel context.CancelFunc
	timerCancel     context.CancelFunc
}

func (m *ActiveMatch) player(userID uuid.UUID) *Player {
	for _, p := range m.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (m *ActiveMatch) opponentOf(userID uuid.UUID) *Player {
	for _, p := range m.Players {
		if p.UserID != userID {
			return p
		}
	}
	return nil
}

// CheckSubmission validates that a submission is acceptable right now:
// the match is running, the user plays in it, the question belongs to it,
// and the user has not already solved it.
func (m *ActiveMatch) CheckSubmission(userID uuid.UUID, questionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status != StatusRunning {
		return ErrMatchNotRunning
	}
	p := m.player(userID)
	if p == nil {
		return ErrNotParticipant
	}
	known := false
	for _, id := range m.QuestionIDs {
		if id == questionID {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownQuestion
	}
	if _, solved := p.Solved[questionID]; solved {
		return ErrAlreadySolved
	}
	return nil
}

// Question is the subset of a coding problem the engine hands to clients.
type Question struct {
	ID         int
	Category   string
	Difficulty string
	Prompt     string
}

// Persistence is the durable-store collaborator contract. Writes issued
// during live play are best-effort; in-memory state stays authoritative.
type Persistence interface {
	CreateMatch(ctx context.Context, participants [2]Participant, questionIDs []int) (uuid.UUID, error)
	UpdateMatchStatus(ctx context.Context, matchID uuid.UUID, status string, startedAt, endedAt *time.Time) error
	RecordMatchResult(ctx context.Context, matchID uuid.UUID, winnerID *uuid.UUID) error
	RecordParticipantRatingChange(ctx context.Context, matchID, userID uuid.UUID, delta int) error
	IncrementUserRating(ctx context.Context, userID uuid.UUID, delta int) error
	FetchRandomQuestions(ctx context.Context, count int) ([]Question, error)
}

// Transport delivers events to connected players.
type Transport interface {
	SendToUser(userID uuid.UUID, event string, payload any) bool
	BroadcastToMatchRoom(matchID uuid.UUID, event string, payload any)
	AddUserToMatchRoom(userID, matchID uuid.UUID)
	RemoveUserFromMatchRoom(userID, matchID uuid.UUID)
}

// RatingQueue is the shared ordered set of waiting players, keyed by rating.
type RatingQueue interface {
	Enqueue(ctx context.Context, entry QueueEntry) error
	Dequeue(ctx context.Context, userID uuid.UUID) error
	Contains(ctx context.Context, userID uuid.UUID) (bool, error)
	PositionOf(ctx context.Context, userID uuid.UUID) (int, error)
	Size(ctx context.Context) (int64, error)
	RangeByRating(ctx context.Context, min, max int) ([]uuid.UUID, error)
	Entry(ctx context.Context, userID uuid.UUID) (*QueueEntry, error)
	RemovePair(ctx context.Context, a, b uuid.UUID) error
	Clear(ctx context.Context) error
}
