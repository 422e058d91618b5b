// Package errors provides domain-specific errors for the listingsync engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the sync error taxonomy.
var (
	ErrFetch          = errors.New("fetch failed")
	ErrPersistence    = errors.New("persist failed")
	ErrMatchAmbiguity = errors.New("multiple local records share one external id")
	ErrMediaDownload  = errors.New("media download failed")
	ErrNotFound       = errors.New("record not found")
	ErrValidation     = errors.New("validation failed")
	ErrNoExternalID   = errors.New("record has no external id")
	ErrUnknownEntity  = errors.New("unknown entity type")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeFetch          ErrorCode = "FETCH"
	CodePersistence    ErrorCode = "PERSISTENCE"
	CodeMatchAmbiguity ErrorCode = "MATCH_AMBIGUITY"
	CodeMedia          ErrorCode = "MEDIA"
	CodeValidation     ErrorCode = "VALIDATION"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeConfiguration  ErrorCode = "CONFIG"
)

var codeSentinels = map[ErrorCode]error{
	CodeFetch:          ErrFetch,
	CodePersistence:    ErrPersistence,
	CodeMatchAmbiguity: ErrMatchAmbiguity,
	CodeMedia:          ErrMediaDownload,
	CodeValidation:     ErrValidation,
	CodeNotFound:       ErrNotFound,
}

// SyncError wraps errors with a code and debugging context.
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel that corresponds to the error's code, so
// errors.Is(err, ErrFetch) holds for any FETCH-coded SyncError.
func (e *SyncError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// NewError creates a new SyncError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
func WithContext(err *SyncError, key string, value interface{}) *SyncError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// CodeOf returns the code of the first SyncError in err's chain, or "" when there is none.
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets target to that error value.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a validation SyncError scoped to a domain area.
func New(domain, message string) *SyncError {
	return &SyncError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("[%s] %s", domain, message),
		Context: make(map[string]interface{}),
	}
}
