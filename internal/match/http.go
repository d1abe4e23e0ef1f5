package match

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/auth"
	httperrors "github.com/gokatarajesh/code-arena/pkg/http/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryEntry is one row of a player's match history.
type HistoryEntry struct {
	MatchID        uuid.UUID  `json:"matchId"`
	OpponentID     uuid.UUID  `json:"opponentId"`
	OpponentName   string     `json:"opponentName"`
	OpponentRating int        `json:"opponentRating"`
	Result         string     `json:"result"` // win | loss | draw
	RatingChange   int        `json:"ratingChange"`
	StartedAt      *time.Time `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt"`
}

// MatchDetail is a finished match as reported over the REST API.
type MatchDetail struct {
	MatchID   uuid.UUID           `json:"matchId"`
	Status    string              `json:"status"`
	WinnerID  *uuid.UUID          `json:"winnerId"`
	StartedAt *time.Time          `json:"startedAt"`
	EndedAt   *time.Time          `json:"endedAt"`
	Players   []MatchDetailPlayer `json:"players"`
}

// MatchDetailPlayer is one side of a match in the detail view.
type MatchDetailPlayer struct {
	UserID       uuid.UUID `json:"userId"`
	DisplayName  string    `json:"displayName"`
	RatingBefore int       `json:"ratingBefore"`
	RatingChange int       `json:"ratingChange"`
}

// History reads finished matches back out of the durable store.
type History interface {
	ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]HistoryEntry, error)
	GetDetail(ctx context.Context, matchID uuid.UUID) (*MatchDetail, error)
}

// HTTPHandlers provides REST endpoints for match history.
type HTTPHandlers struct {
	history History
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for match endpoints.
func NewHTTPHandlers(history History, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		history: history,
		logger:  logger.With().Str("component", "match_http").Logger(),
	}
}

// HandleHistory handles GET /v1/matches/history
func (h *HTTPHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Authentication required")
		return
	}

	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := h.history.ListHistory(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", claims.UserID.String()).Msg("list history failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeInternalError, "Failed to load history")
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"matches": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

// HandleGetMatch handles GET /v1/matches/{matchID}
func (h *HTTPHandlers) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Authentication required")
		return
	}

	matchID, err := uuid.Parse(r.PathValue("matchID"))
	if err != nil {
		httperrors.RespondError(w, http.StatusBadRequest, httperrors.ErrCodeValidationFailed, "Invalid match ID")
		return
	}

	detail, err := h.history.GetDetail(r.Context(), matchID)
	if err != nil {
		h.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("fetch match failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeInternalError, "Failed to load match")
		return
	}
	if detail == nil {
		httperrors.RespondError(w, http.StatusNotFound, httperrors.ErrCodeNotFound, "Match not found")
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
