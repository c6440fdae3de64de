// Package errors provides the standardized error taxonomy for the insight pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Interpretation: Completion Service reply unparsable. Recovered locally
	// as intent=unknown, surfaced as a clarification request, never fatal.
	ErrCodeInterpretationFailed ErrorCode = "INTERPRETATION_FAILED"
	ErrCodeCompletionTimeout    ErrorCode = "COMPLETION_TIMEOUT"

	// Data access: the only hard-stop failures past input validation.
	ErrCodeDataAccessFailed         ErrorCode = "DATA_ACCESS_FAILED"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"
	ErrCodeIdentifierNotAllowed     ErrorCode = "IDENTIFIER_NOT_ALLOWED"

	// Narrative: recovered locally with fallback text, never blocks the envelope.
	ErrCodeNarrativeGenerationFailed ErrorCode = "NARRATIVE_GENERATION_FAILED"

	// Caller-fixable request problems.
	ErrCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInterpretationFailedError marks an unparsable Completion Service reply.
func NewInterpretationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInterpretationFailed,
		Message:   "Could not interpret the question",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompletionTimeoutError creates a retryable completion timeout error.
func NewCompletionTimeoutError(stage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompletionTimeout,
		Message:   "Completion service call timed out",
		Details:   fmt.Sprintf("stage: %s", stage),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDataAccessError wraps a dataset store failure. It deliberately carries the
// query intent instead of SQL text so bound values never leak into logs.
func NewDataAccessError(intent string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDataAccessFailed,
		Message:   "Could not retrieve data",
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"intent": intent},
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(intent string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Dataset query timeout",
		Details:   fmt.Sprintf("intent: %s", intent),
		Retryable: true,
		Metadata:  map[string]interface{}{"intent": intent},
		Timestamp: time.Now().UTC(),
	}
}

// NewIdentifierNotAllowedError flags a table or column outside the registry
// allow-list. Non-retryable: the compiled shape itself is wrong.
func NewIdentifierNotAllowedError(identifier string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIdentifierNotAllowed,
		Message:   "Identifier not present in dataset registry",
		Details:   fmt.Sprintf("identifier: %s", identifier),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNarrativeGenerationFailedError marks a failed narrate/recommend call.
func NewNarrativeGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNarrativeGenerationFailed,
		Message:   "Narrative generation failed, fallback text used",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a caller-fixable 400-equivalent error.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationError,
		Message:   fmt.Sprintf("Invalid request: %s", field),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a 404-equivalent error for history lookups.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Conversation not found for this owner",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeDataAccessFailed:
		return 3 // Retryable technical errors

	case ErrCodeQueryTimeout,
		ErrCodeCompletionTimeout:
		return 2 // Partial retry for timeouts

	case ErrCodeNarrativeGenerationFailed:
		return 1 // One more attempt before the fixed fallback

	default:
		return 0 // Caller-fixable errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "DATA_ACCESS") || strings.Contains(codeStr, "IDENTIFIER"):
		return "DATABASE"
	case strings.Contains(codeStr, "COMPLETION") || strings.Contains(codeStr, "INTERPRETATION") || strings.Contains(codeStr, "NARRATIVE"):
		return "AI"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "SESSION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
