package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrToolNotFound    = fmt.Errorf("tool not found")
	ErrAgentNotFound   = fmt.Errorf("agent not found")
	ErrAgentDuplicate  = fmt.Errorf("agent already exists")
	ErrAgentProtected  = fmt.Errorf("agent is protected")
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrMaxIterations   = fmt.Errorf("tool execution limit reached")
	ErrStreamProtocol  = fmt.Errorf("stream protocol violation")
	ErrConfigInvalid   = fmt.Errorf("invalid configuration")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")

	// Resilience errors.
	ErrTimeout         = fmt.Errorf("operation timed out")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrProviderError   = fmt.Errorf("provider error")
	ErrToolFailure     = fmt.Errorf("tool execution failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
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
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow)
}

// IsTurnFatal reports whether err ends the current turn while leaving the
// session usable. Tool-level failures are recovered inside the loop and never
// reach this classification.
func IsTurnFatal(err error) bool {
	return errors.Is(err, ErrStreamProtocol) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderError) || errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrAuthInvalid) || errors.Is(err, ErrContextOverflow)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeToolNotFound    ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure     ErrorCode = "TOOL_FAILURE"
	CodeAgentNotFound   ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate  ErrorCode = "AGENT_DUPLICATE"
	CodeAgentProtected  ErrorCode = "AGENT_PROTECTED"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeMaxIterations   ErrorCode = "MAX_ITERATIONS"
	CodeStreamProtocol  ErrorCode = "STREAM_PROTOCOL"
	CodeConfigInvalid   ErrorCode = "CONFIG_INVALID"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeContextOverflow ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeProviderError   ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrToolNotFound:    CodeToolNotFound,
	ErrToolFailure:     CodeToolFailure,
	ErrAgentNotFound:   CodeAgentNotFound,
	ErrAgentDuplicate:  CodeAgentDuplicate,
	ErrAgentProtected:  CodeAgentProtected,
	ErrSessionNotFound: CodeSessionNotFound,
	ErrMaxIterations:   CodeMaxIterations,
	ErrStreamProtocol:  CodeStreamProtocol,
	ErrConfigInvalid:   CodeConfigInvalid,
	ErrConfigLoad:      CodeConfigLoad,
	ErrTimeout:         CodeTimeout,
	ErrContextOverflow: CodeContextOverflow,
	ErrRateLimit:       CodeRateLimit,
	ErrAuthInvalid:     CodeAuthInvalid,
	ErrProviderError:   CodeProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	// Unwrap DomainError to check its inner sentinel.
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
