package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/hubwatch/internal/app"
	"github.com/rpggio/hubwatch/internal/domain/order"
	"github.com/rpggio/hubwatch/internal/domain/session"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
	cause        error
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return &APIError{Code: "INVALID_CREDENTIALS", Message: "login rejected", RecoveryHint: "Check username and password", cause: err}
	case errors.Is(err, app.ErrNotAuthenticated):
		return &APIError{Code: "NOT_AUTHENTICATED", Message: "no active session", RecoveryHint: "Call login first", cause: err}
	case errors.Is(err, app.ErrNotRunning):
		return &APIError{Code: "NOT_RUNNING", Message: "sync loop is not running", RecoveryHint: "Retry after the client finishes starting", cause: err}
	case errors.Is(err, order.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), cause: err}
	case errors.Is(err, order.ErrInvalidResponse):
		return &APIError{Code: "INVALID_RESPONSE", Message: err.Error(), cause: err}
	case errors.Is(err, order.ErrSubmitFailed):
		return &APIError{Code: "SUBMIT_FAILED", Message: err.Error(), RecoveryHint: "Check get_status for API health", cause: err}
	default:
		return nil
	}
}

func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
