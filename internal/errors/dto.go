package errors

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information. Code and Retryable are part of the
// external contract: callers use Retryable to decide whether to resubmit the
// request with the same idempotency key.
type ErrorDetail struct {
	Code          string         `json:"code"`
	Display       string         `json:"message"`
	Retryable     bool           `json:"retryable"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}
