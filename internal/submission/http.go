package submission

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/code-arena/pkg/http/errors"
)

// HTTPHandler exposes the judge result intake and submission listing.
type HTTPHandler struct {
	service      *Service
	callbackAuth string
	logger       zerolog.Logger
}

// NewHTTPHandler creates a submission HTTP handler. callbackAuth is the
// shared secret the judge presents on result callbacks.
func NewHTTPHandler(service *Service, callbackAuth string, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:      service,
		callbackAuth: callbackAuth,
		logger:       logger.With().Str("component", "submission_http").Logger(),
	}
}

type judgeResultRequest struct {
	SubmissionID string `json:"submissionId"`
	TestsPassed  int    `json:"testsPassed"`
	TotalTests   int    `json:"totalTests"`
}

// HandleJudgeResult receives an asynchronous verdict from the judge.
// POST /v1/judge/results
func (h *HTTPHandler) HandleJudgeResult(w http.ResponseWriter, r *http.Request) {
	if h.callbackAuth != "" && r.Header.Get("X-Judge-Token") != h.callbackAuth {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Invalid judge token")
		return
	}

	var req judgeResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondError(w, http.StatusBadRequest, httperrors.ErrCodeInvalidRequest, "Invalid request body")
		return
	}

	submissionID, err := uuid.Parse(req.SubmissionID)
	if err != nil {
		httperrors.RespondError(w, http.StatusBadRequest, httperrors.ErrCodeValidationFailed, "Invalid submission ID")
		return
	}
	if req.TestsPassed < 0 {
		httperrors.RespondError(w, http.StatusBadRequest, httperrors.ErrCodeValidationFailed, "testsPassed must be non-negative")
		return
	}

	if err := h.service.ApplyResult(r.Context(), submissionID, req.TestsPassed, req.TotalTests); err != nil {
		if errors.Is(err, ErrUnknownSubmission) {
			httperrors.RespondError(w, http.StatusNotFound, httperrors.ErrCodeNotFound, "Submission not found")
			return
		}
		h.logger.Error().Err(err).Str("submission_id", submissionID.String()).Msg("apply judge result failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeInternalError, "Failed to apply result")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// HandleListSubmissions returns the caller's submissions for a match.
// GET /v1/matches/{matchID}/submissions
func (h *HTTPHandler) HandleListSubmissions(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	matchID, err := uuid.Parse(r.PathValue("matchID"))
	if err != nil {
		httperrors.RespondError(w, http.StatusBadRequest, httperrors.ErrCodeValidationFailed, "Invalid match ID")
		return
	}

	records, err := h.service.ListForUser(r.Context(), matchID, userID)
	if err != nil {
		h.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("list submissions failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeInternalError, "Failed to list submissions")
		return
	}
	if records == nil {
		records = []Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"submissions": records})
}
