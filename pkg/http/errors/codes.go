package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInvalidToken = "invalid_token"
	ErrCodeTokenExpired = "token_expired"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound = "not_found"
	ErrCodeConflict = "conflict"

	// Queue errors
	ErrCodeAlreadyInQueue = "already_in_queue"
	ErrCodeAlreadyInMatch = "already_in_match"
	ErrCodeEnqueueFailed  = "enqueue_failed"

	// Match errors
	ErrCodeInvalidMatchID      = "invalid_match_id"
	ErrCodeMatchCreationFailed = "match_creation_failed"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeSubmitFailed        = "submit_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
