package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("already exists")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrLimitReached = fmt.Errorf("limit reached")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")

	// Generation errors, recovered inside the agent as degraded envelopes.
	ErrGenerationFailed = fmt.Errorf("generation failed")
	ErrEmptyResponse    = fmt.Errorf("model returned an empty response")

	// Tool protocol errors.
	ErrMalformedToolResponse = fmt.Errorf("malformed tool response")
	ErrToolFailure           = fmt.Errorf("tool execution failed")

	// Agent switching.
	ErrUnknownAgent = fmt.Errorf("unknown agent")

	// History persistence.
	ErrPersistence = fmt.Errorf("history persistence failed")

	// Inbox lifecycle.
	ErrShutdownRequested = fmt.Errorf("shutdown requested")
	ErrInboxClosed       = fmt.Errorf("inbox closed")

	// Resilience errors.
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid = fmt.Errorf("authentication failed")
	ErrServerError = fmt.Errorf("provider server error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Agent.Generate")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for logs and API responses.
type ErrorCode string

const (
	CodeUnknown               ErrorCode = "UNKNOWN"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeDuplicate             ErrorCode = "DUPLICATE"
	CodeTimeout               ErrorCode = "TIMEOUT"
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"
	CodeLimitReached          ErrorCode = "LIMIT_REACHED"
	CodeProviderNotFound      ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound          ErrorCode = "TOOL_NOT_FOUND"
	CodeConfigLoad            ErrorCode = "CONFIG_LOAD"
	CodeGenerationFailed      ErrorCode = "GENERATION_FAILED"
	CodeEmptyResponse         ErrorCode = "EMPTY_RESPONSE"
	CodeMalformedToolResponse ErrorCode = "MALFORMED_TOOL_RESPONSE"
	CodeToolFailure           ErrorCode = "TOOL_FAILURE"
	CodeUnknownAgent          ErrorCode = "UNKNOWN_AGENT"
	CodePersistence           ErrorCode = "PERSISTENCE"
	CodeShutdownRequested     ErrorCode = "SHUTDOWN_REQUESTED"
	CodeInboxClosed           ErrorCode = "INBOX_CLOSED"
	CodeRateLimit             ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid           ErrorCode = "AUTH_INVALID"
	CodeServerError           ErrorCode = "SERVER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// Order of lookup in ErrorCodeOf is unspecified, so sentinels must not wrap
// one another.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:              CodeNotFound,
	ErrDuplicate:             CodeDuplicate,
	ErrTimeout:               CodeTimeout,
	ErrInvalidInput:          CodeInvalidInput,
	ErrLimitReached:          CodeLimitReached,
	ErrProviderNotFound:      CodeProviderNotFound,
	ErrToolNotFound:          CodeToolNotFound,
	ErrConfigLoad:            CodeConfigLoad,
	ErrGenerationFailed:      CodeGenerationFailed,
	ErrEmptyResponse:         CodeEmptyResponse,
	ErrMalformedToolResponse: CodeMalformedToolResponse,
	ErrToolFailure:           CodeToolFailure,
	ErrUnknownAgent:          CodeUnknownAgent,
	ErrPersistence:           CodePersistence,
	ErrShutdownRequested:     CodeShutdownRequested,
	ErrInboxClosed:           CodeInboxClosed,
	ErrRateLimit:             CodeRateLimit,
	ErrAuthInvalid:           CodeAuthInvalid,
	ErrServerError:           CodeServerError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
