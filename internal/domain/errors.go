package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels shared by every subsystem.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the assistant-chat flow.
var (
	// ErrConfig is returned when the assistant service credential is absent.
	// It is detected before any network call.
	ErrConfig = fmt.Errorf("assistant credential not configured")

	// ErrExternalAPI covers any failure reported by, or while reaching, the
	// assistant service: transport errors, non-2xx responses, malformed payloads.
	ErrExternalAPI = fmt.Errorf("assistant service error")

	// ErrRunFailed is returned when a run reaches a failing terminal status.
	ErrRunFailed = fmt.Errorf("assistant run failed")

	// ErrRunTimeout is returned when polling exceeds its attempt or time budget.
	ErrRunTimeout = fmt.Errorf("assistant run timed out: %w", ErrTimeout)

	// Refinements of ErrExternalAPI produced by the service adapter.
	ErrPersonaNotFound = fmt.Errorf("assistant persona %w", ErrNotFound)
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrCircuitOpen     = fmt.Errorf("assistant service circuit open")

	ErrJournalWrite = fmt.Errorf("run journal write failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "RunExecutor.PollUntilTerminal")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail, never shown to clients
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ExternalAPIError tags err as an assistant service failure while keeping
// any finer sentinel (not found, auth, rate limit) reachable via errors.Is.
func ExternalAPIError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExternalAPI) {
		return WrapOp(op, err)
	}
	return &DomainError{Op: op, Err: errors.Join(ErrExternalAPI, err)}
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeConfig          ErrorCode = "CONFIG"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodePersonaNotFound ErrorCode = "PERSONA_NOT_FOUND"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeCircuitOpen     ErrorCode = "CIRCUIT_OPEN"
	CodeExternalAPI     ErrorCode = "EXTERNAL_API"
	CodeRunFailed       ErrorCode = "RUN_FAILED"
	CodeRunTimeout      ErrorCode = "RUN_TIMEOUT"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeLimitReached    ErrorCode = "LIMIT_REACHED"
	CodeCancelled       ErrorCode = "CANCELLED"
	CodeJournalWrite    ErrorCode = "JOURNAL_WRITE"
)

// codeOrder lists sentinels from most to least specific. ErrorCodeOf returns
// the code of the first sentinel the error matches.
var codeOrder = []struct {
	err  error
	code ErrorCode
}{
	{ErrConfig, CodeConfig},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrRunFailed, CodeRunFailed},
	{ErrRunTimeout, CodeRunTimeout},
	{context.Canceled, CodeCancelled},
	{ErrPersonaNotFound, CodePersonaNotFound},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrRateLimit, CodeRateLimit},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrNotFound, CodeNotFound},
	{ErrExternalAPI, CodeExternalAPI},
	{ErrLimitReached, CodeLimitReached},
	{ErrJournalWrite, CodeJournalWrite},
	{ErrTimeout, CodeTimeout},
	{context.DeadlineExceeded, CodeTimeout},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, c := range codeOrder {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e)
}

// publicDetails maps codes to the sanitized text that may be shown to clients.
var publicDetails = map[ErrorCode]string{
	CodeInvalidInput:    "Invalid chat request",
	CodeRunFailed:       "Assistant run failed",
	CodeRunTimeout:      "Assistant run timed out",
	CodePersonaNotFound: "Assistant not found",
	CodeNotFound:        "Assistant resource not found",
	CodeAuthInvalid:     "Assistant service rejected the credentials",
	CodeRateLimit:       "Assistant service rate limit exceeded",
	CodeCircuitOpen:     "Assistant service temporarily unavailable",
	CodeExternalAPI:     "Assistant service unavailable",
	CodeLimitReached:    "Too many concurrent requests",
	CodeTimeout:         "Request timed out",
	CodeCancelled:       "Request cancelled",
}

// PublicDetail returns a stable client-facing description of err. Raw
// upstream text is never included.
func PublicDetail(err error) string {
	if d, ok := publicDetails[ErrorCodeOf(err)]; ok {
		return d
	}
	return "Internal error"
}
