package pipeline

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: a flaky network fetch during configure, a build timeout.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or resource exhaustion.
	// Should be retried with exponential backoff.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates contention on a shared resource.
	// Examples: a locked build directory, a busy serial console on a board.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: a compile error, a missing tool, an invalid manifest.
	ErrorClassPermanent ErrorClass = "permanent"
)

// PipelineError represents a classified error with build context.
// nolint:revive // PipelineError is intentionally named to distinguish from standard errors
type PipelineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Step is the pipeline step ID that caused the error, if applicable.
	Step string `json:"step,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// ExitCode is the tool exit code when the error came from a subprocess.
	ExitCode int `json:"exit_code,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Step != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (step=%s, operation=%s): %s",
			e.Class, e.Message, e.Step, e.Operation, e.unwrapMessage())
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step=%s): %s",
			e.Class, e.Message, e.Step, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *PipelineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *PipelineError {
	return &PipelineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *PipelineError {
	return &PipelineError{
		Class:   ErrorClassThrottled,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *PipelineError {
	return &PipelineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *PipelineError {
	return &PipelineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithStep adds step context to an error.
func (e *PipelineError) WithStep(stepID string) *PipelineError {
	e.Step = stepID
	return e
}

// WithOperation adds operation context to an error.
func (e *PipelineError) WithOperation(operation string) *PipelineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *PipelineError) WithCode(code string) *PipelineError {
	e.Code = code
	return e
}

// WithExitCode records the subprocess exit code on the error.
func (e *PipelineError) WithExitCode(code int) *PipelineError {
	e.ExitCode = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *PipelineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *PipelineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *PipelineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *PipelineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient, throttled, and conflict errors are retryable.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeToolMissing      = "TOOL_MISSING"
	ErrCodeToolFailed       = "TOOL_FAILED"
	ErrCodeArtifactMissing  = "ARTIFACT_MISSING"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
)
