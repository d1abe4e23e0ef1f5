package ws

import "encoding/json"

// Event names for the WebSocket protocol.
const (
	// Client -> Server
	TypeJoinQueue  = "match:join-queue"
	TypeLeaveQueue = "match:leave-queue"
	TypeReady      = "match:ready"
	TypeSubmitCode = "match:submit-code"

	// Server -> Client
	TypeQueueStatus      = "match:queue-status"
	TypeMatchFound       = "match:found"
	TypeCountdown        = "match:countdown"
	TypeMatchStarted     = "match:started"
	TypeSubmissionResult = "match:submission-result"
	TypeOpponentProgress = "match:opponent-progress"
	TypeTimerUpdate      = "match:timer-update"
	TypeMatchEnded       = "match:ended"
	TypeError            = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client Messages (incoming)

type ReadyPayload struct {
	MatchID string `json:"match_id"`
}

type SubmitCodePayload struct {
	MatchID    string `json:"match_id"`
	QuestionID int    `json:"question_id"`
	Code       string `json:"code"`
	Language   string `json:"language"`
}

// Server Messages (outgoing)

type QueueStatusPayload struct {
	Position             int `json:"position"`
	EstimatedWaitSeconds int `json:"estimated_wait_seconds"`
}

type Opponent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

type QuestionPayload struct {
	ID         int    `json:"id"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Prompt     string `json:"prompt"`
}

type MatchFoundPayload struct {
	MatchID   string            `json:"match_id"`
	Opponent  Opponent          `json:"opponent"`
	Questions []QuestionPayload `json:"questions"`
}

type CountdownPayload struct {
	MatchID          string `json:"match_id"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

type MatchStartedPayload struct {
	MatchID   string `json:"match_id"`
	StartedAt string `json:"started_at"` // RFC 3339
}

type SubmissionResultPayload struct {
	QuestionID  int    `json:"question_id"`
	Status      string `json:"status"` // "passed", "failed" or "error"
	TestsPassed int    `json:"tests_passed"`
	TotalTests  int    `json:"total_tests"`
}

type OpponentProgressPayload struct {
	QuestionID int  `json:"question_id"`
	Solved     bool `json:"solved"`
}

type TimerUpdatePayload struct {
	MatchID          string `json:"match_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type MatchEndedPayload struct {
	MatchID       string         `json:"match_id"`
	WinnerID      *string        `json:"winner_id"` // null on draw
	RatingChanges map[string]int `json:"rating_changes"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
