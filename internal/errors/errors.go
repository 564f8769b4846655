package errors

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// Error code constants for structured errors.
const (
	CodeTableRead       = "TABLE_READ_FAILED"
	CodeTableStructure  = "TABLE_STRUCTURE"
	CodeStoreAllocation = "STORE_ALLOCATION"
	CodeSinkError       = "SINK_ERROR"
	CodeConfigError     = "CONFIG_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeHealthCheck     = "HEALTH_CHECK_FAILED"
)

// Fault classes reported by the collection cycle.
type FaultClass string

const (
	FaultNone       FaultClass = ""
	FaultTransient  FaultClass = "transient"
	FaultStructural FaultClass = "structural"
	FaultFatal      FaultClass = "fatal"
)

// =============================================================================
// IRQ ERROR (STRUCTURED ERROR)
// =============================================================================

// IrqError represents a structured error with context.
type IrqError struct {
	Code      string
	Message   string
	Cause     error
	Timestamp time.Time
	Context   map[string]any
}

func (e *IrqError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}

	return e.Message
}

func (e *IrqError) Unwrap() error {
	return e.Cause
}

// Is matches by error code, so constructed errors compare equal to the sentinels.
func (e *IrqError) Is(target error) bool {
	t, ok := target.(*IrqError)
	if !ok {
		return false
	}

	return e.Code != "" && e.Code == t.Code
}

// WithContext adds context to the error.
func (e *IrqError) WithContext(key string, value any) *IrqError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}

	e.Context[key] = value

	return e
}

func newError(code, message string, cause error, ctx map[string]any) *IrqError {
	if ctx == nil {
		ctx = make(map[string]any)
	}

	return &IrqError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   ctx,
	}
}

// ErrTableRead creates a transient read error for the given table source.
func ErrTableRead(path string, cause error) *IrqError {
	return newError(CodeTableRead, "cannot read table '"+path+"'", cause, map[string]any{"path": path})
}

// ErrTableStructure creates a structural error for a table whose shape cannot be used.
func ErrTableStructure(path, reason string) *IrqError {
	return newError(CodeTableStructure, fmt.Sprintf("unusable table '%s': %s", path, reason), nil,
		map[string]any{"path": path, "reason": reason})
}

// ErrStoreAllocation creates the fatal error raised when the record store cannot be sized.
func ErrStoreAllocation(rows, columns int, cause error) *IrqError {
	return newError(CodeStoreAllocation, fmt.Sprintf("cannot allocate record store for %d rows x %d columns", rows, columns), cause,
		map[string]any{"rows": rows, "columns": columns})
}

// ErrSink creates a sink error for the given operation.
func ErrSink(sink, operation string, cause error) *IrqError {
	return newError(CodeSinkError, "sink '"+sink+"' failed during "+operation, cause,
		map[string]any{"sink": sink, "operation": operation})
}

// ErrConfigError creates a config error.
func ErrConfigError(message string, cause error) *IrqError {
	return newError(CodeConfigError, message, cause, nil)
}

// ErrValidationError creates a validation error.
func ErrValidationError(field string, cause error) *IrqError {
	return newError(CodeValidationError, fmt.Sprintf("validation error for field '%s'", field), cause,
		map[string]any{"field": field})
}

// ErrHealthCheckFailed creates a health check error.
func ErrHealthCheckFailed(component string, cause error) *IrqError {
	return newError(CodeHealthCheck, "health check failed for '"+component+"'", cause,
		map[string]any{"component": component})
}

// =============================================================================
// STANDARD ERRORS PACKAGE INTEGRATION
// =============================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// =============================================================================
// SENTINEL ERRORS (for use with Is)
// =============================================================================

var (
	ErrTableReadSentinel       = &IrqError{Code: CodeTableRead}
	ErrTableStructureSentinel  = &IrqError{Code: CodeTableStructure}
	ErrStoreAllocationSentinel = &IrqError{Code: CodeStoreAllocation}
	ErrSinkSentinel            = &IrqError{Code: CodeSinkError}
	ErrConfigErrorSentinel     = &IrqError{Code: CodeConfigError}
	ErrValidationSentinel      = &IrqError{Code: CodeValidationError}
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsTransient reports whether err is a read fault that should simply be retried.
func IsTransient(err error) bool {
	return Is(err, ErrTableReadSentinel)
}

// IsStructural reports whether err describes a table that could not be interpreted.
func IsStructural(err error) bool {
	return Is(err, ErrTableStructureSentinel)
}

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	return Is(err, ErrStoreAllocationSentinel)
}

// IsSinkError reports whether err originated in a metric sink.
func IsSinkError(err error) bool {
	return Is(err, ErrSinkSentinel)
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	return Is(err, ErrValidationSentinel)
}

// Classify maps an error to the fault class the scheduler acts on.
// Sink failures abort a single cycle and are retried like transient faults.
func Classify(err error) FaultClass {
	switch {
	case err == nil:
		return FaultNone
	case IsFatal(err):
		return FaultFatal
	case IsStructural(err):
		return FaultStructural
	default:
		return FaultTransient
	}
}
