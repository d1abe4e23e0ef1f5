package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPJudge dispatches submissions to the external execution service.
// The judge runs the code against the question's test suite and calls
// back with the verdict.
type HTTPJudge struct {
	baseURL       string
	callbackToken string
	client        *http.Client
	logger        zerolog.Logger
}

// NewHTTPJudge creates a judge client.
func NewHTTPJudge(baseURL, callbackToken string, timeout time.Duration, logger zerolog.Logger) *HTTPJudge {
	return &HTTPJudge{
		baseURL:       baseURL,
		callbackToken: callbackToken,
		client:        &http.Client{Timeout: timeout},
		logger:        logger.With().Str("component", "judge_client").Logger(),
	}
}

type judgeDispatchRequest struct {
	SubmissionID string `json:"submissionId"`
	QuestionID   int    `json:"questionId"`
	Code         string `json:"code"`
	Language     string `json:"language"`
}

// Enqueue posts the submission to the judge's execution endpoint.
func (j *HTTPJudge) Enqueue(ctx context.Context, submissionID uuid.UUID, questionID int, code, language string) error {
	body, err := json.Marshal(judgeDispatchRequest{
		SubmissionID: submissionID.String(),
		QuestionID:   questionID,
		Code:         code,
		Language:     language,
	})
	if err != nil {
		return fmt.Errorf("marshal judge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if j.callbackToken != "" {
		req.Header.Set("X-Judge-Token", j.callbackToken)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch to judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("judge rejected submission: status %d", resp.StatusCode)
	}

	j.logger.Debug().
		Str("submission_id", submissionID.String()).
		Int("question_id", questionID).
		Msg("submission queued for execution")
	return nil
}
