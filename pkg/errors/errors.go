package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "DDB1001"
	ErrCodeConnectionTimeout    ErrorCode = "DDB1002"
	ErrCodeAuthenticationFailed ErrorCode = "DDB1003"
	ErrCodeNetworkUnavailable   ErrorCode = "DDB1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "DDB2001"
	ErrCodeConfigInvalid  ErrorCode = "DDB2002"
	ErrCodeConfigMissing  ErrorCode = "DDB2003"
	ErrCodeSecretResolve  ErrorCode = "DDB2004"

	// Query and warehouse errors (4xxx)
	ErrCodeMalformedQuery ErrorCode = "DDB4001"
	ErrCodeSQLPermission  ErrorCode = "DDB4002"
	ErrCodeSQLTimeout     ErrorCode = "DDB4003"
	ErrCodeSQLTransaction ErrorCode = "DDB4004"
	ErrCodeNotFound       ErrorCode = "DDB4005"
	ErrCodeSQLExecution   ErrorCode = "DDB4006"
	ErrCodeStagingFailed  ErrorCode = "DDB4007"
	ErrCodeJobFailed      ErrorCode = "DDB4008"
	ErrCodeAlreadyExists  ErrorCode = "DDB4009"

	// Validation errors (6xxx)
	ErrCodeInvalidArgument ErrorCode = "DDB6001"
	ErrCodeUnmappedType    ErrorCode = "DDB6002"
	ErrCodeEmptySchema     ErrorCode = "DDB6003"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "DDB9001"
	ErrCodeTimeout            ErrorCode = "DDB9002"
	ErrCodeResourceExhausted  ErrorCode = "DDB9003"
	ErrCodeServiceUnavailable ErrorCode = "DDB9004"
	ErrCodeResultParsing      ErrorCode = "DDB9005"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL"
	SeverityError    ErrorSeverity = "ERROR"
	SeverityWarning  ErrorSeverity = "WARNING"
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so sentinel values built
// with Code() work with the standard errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit its context
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// Code returns a bare AppError usable as an errors.Is target.
func Code(code ErrorCode) *AppError {
	return &AppError{Code: code}
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the warehouse endpoint is accessible",
			"Check the credentials configured for the backend",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Refer to the configuration documentation",
		)
}

// InvalidArgument reports a caller-supplied value that cannot be used.
func InvalidArgument(field, reason string) *AppError {
	return New(ErrCodeInvalidArgument, fmt.Sprintf("invalid %s: %s", field, reason)).
		WithContext("field", field).
		WithSeverity(SeverityWarning)
}

// MalformedQuery wraps a warehouse rejection of query text.
func MalformedQuery(query string, cause error) *AppError {
	return Wrap(cause, ErrCodeMalformedQuery, "Warehouse rejected the query").
		WithContext("query", truncateString(query, 200))
}

// NotFound wraps a warehouse "does not exist" condition.
func NotFound(object string, cause error) *AppError {
	return Wrap(cause, ErrCodeNotFound, fmt.Sprintf("%s not found", object)).
		WithContext("object", object)
}

// StagingError reports that the staging file could not be produced.
func StagingError(cause error) *AppError {
	return Wrap(cause, ErrCodeStagingFailed, "Cannot produce staging file").
		WithSuggestions(
			"Check that the staging bucket exists and is writable",
			"Verify the object storage credentials",
		)
}

// JobError wraps a failed warehouse load or insert job.
func JobError(job string, cause error) *AppError {
	return Wrap(cause, ErrCodeJobFailed, fmt.Sprintf("%s job failed", job)).
		WithContext("job", job)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	lower := strings.ToLower(message)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "access denied") {
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check the permissions of the configured user or service account",
			"Verify the role has the required privileges",
		)
	} else if strings.Contains(lower, "timeout") {
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase the query timeout setting",
		)
	}

	return err
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, Code(code))
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
