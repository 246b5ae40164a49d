package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrFlowNotFound        = errors.New("flow not found")
	ErrNoActiveFlow        = errors.New("no active flow")
	ErrDraftNotInitialized = errors.New("draft not initialized")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode identifies a failure class in the pipeline taxonomy.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION"
	CodeNetwork              ErrorCode = "NETWORK"
	CodeTimeout              ErrorCode = "TIMEOUT"
	CodeCancelled            ErrorCode = "CANCELLED"
	CodeProcessingFailed     ErrorCode = "PROCESSING_FAILED"
	CodeClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
	CodeAlreadyProcessing    ErrorCode = "ALREADY_PROCESSING"
	CodeRetryLimit           ErrorCode = "RETRY_LIMIT_EXCEEDED"
	CodeUnknown              ErrorCode = "UNKNOWN_ERROR"
)

// PipelineError is the uniform failure shape every pipeline and orchestrator
// error is normalized to before it crosses a component boundary.
type PipelineError struct {
	Code        ErrorCode
	Message     string
	UserMessage string
	Retryable   bool
	Context     map[string]string
	Err         error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return "pipeline error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// WithContext attaches a key/value pair for diagnostics and returns the error.
func (e *PipelineError) WithContext(key, value string) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func ValidationError(message string) *PipelineError {
	return &PipelineError{
		Code:        CodeValidation,
		Message:     message,
		UserMessage: "The selected file can't be processed. Try another image.",
		Retryable:   false,
	}
}

func NetworkError(operation string, err error) *PipelineError {
	return &PipelineError{
		Code:        CodeNetwork,
		Message:     operation + " failed",
		UserMessage: "A network problem interrupted processing. Check the connection and retry.",
		Retryable:   true,
		Err:         err,
	}
}

func TimeoutError(operation string) *PipelineError {
	return &PipelineError{
		Code:        CodeTimeout,
		Message:     operation + " timed out",
		UserMessage: "Processing is taking longer than expected. Please retry.",
		Retryable:   true,
	}
}

func CancelledError() *PipelineError {
	return &PipelineError{
		Code:      CodeCancelled,
		Message:   "processing cancelled",
		Retryable: false,
	}
}

func ProcessingFailedError(message string, err error) *PipelineError {
	return &PipelineError{
		Code:        CodeProcessingFailed,
		Message:     message,
		UserMessage: "The document could not be processed. Please retry.",
		Retryable:   true,
		Err:         err,
	}
}

func ClassificationFailedError(message string, err error) *PipelineError {
	return &PipelineError{
		Code:        CodeClassificationFailed,
		Message:     message,
		UserMessage: "The document could not be classified. Please retry.",
		Retryable:   true,
		Err:         err,
	}
}

func AlreadyProcessingError() *PipelineError {
	return &PipelineError{
		Code:        CodeAlreadyProcessing,
		Message:     "another image is already being processed",
		UserMessage: "Please wait for the current document to finish.",
		Retryable:   false,
	}
}

func RetryLimitError(attempts int) *PipelineError {
	return &PipelineError{
		Code:        CodeRetryLimit,
		Message:     fmt.Sprintf("retry limit reached after %d attempts", attempts),
		UserMessage: "Processing keeps failing. Start over with a new capture.",
		Retryable:   false,
	}
}

// Normalize converts any error into a PipelineError. Typed errors pass
// through unchanged; context cancellation and deadlines map onto the
// CANCELLED and TIMEOUT classes; everything else is wrapped as UNKNOWN_ERROR,
// non-retryable.
func Normalize(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.Canceled) {
		return CancelledError()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError("operation")
	}
	return &PipelineError{
		Code:        CodeUnknown,
		Message:     "unexpected failure",
		UserMessage: "Something went wrong. Please retry or start over.",
		Retryable:   false,
		Err:         err,
	}
}

// IsRetryable reports whether the normalized form of err may be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Normalize(err).Retryable
}

// CodeOf returns the taxonomy code of the normalized form of err.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// ErrorRecord is an append-only entry in a flow's error history. Records are
// never mutated or removed once appended.
type ErrorRecord struct {
	Step        Step              `json:"step"`
	Stage       string            `json:"stage,omitempty"`
	Code        ErrorCode         `json:"code"`
	Message     string            `json:"message"`
	UserMessage string            `json:"user_message,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Retryable   bool              `json:"retryable"`
	Context     map[string]string `json:"context,omitempty"`
}

// NewErrorRecord builds a history entry from a normalized error.
func NewErrorRecord(step Step, stage string, err error, at time.Time) ErrorRecord {
	perr := Normalize(err)
	return ErrorRecord{
		Step:        step,
		Stage:       stage,
		Code:        perr.Code,
		Message:     perr.Message,
		UserMessage: perr.UserMessage,
		Timestamp:   at,
		Retryable:   perr.Retryable,
		Context:     perr.Context,
	}
}
