package errors

import (
	stderrors "errors"
	"fmt"
)

// IndexError is the structured error type for lockerindex.
// It carries a stable code so callers can branch on the failure kind
// without string matching.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_401_UNKNOWN_TYPE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work against the sentinels below.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new IndexError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. They match any IndexError with the same code.
var (
	ErrUnknownType        = &IndexError{Code: ErrCodeUnknownType}
	ErrMissingID          = &IndexError{Code: ErrCodeMissingID}
	ErrMalformedRecord    = &IndexError{Code: ErrCodeMalformedRecord}
	ErrEngineUnset        = &IndexError{Code: ErrCodeEngineUnset}
	ErrEngineConstruction = &IndexError{Code: ErrCodeEngineConstruction}
	ErrNullEngine         = &IndexError{Code: ErrCodeNullEngine}
	ErrIndexIO            = &IndexError{Code: ErrCodeIndexIO}
	ErrLockerUnavailable  = &IndexError{Code: ErrCodeLockerUnavailable}
)

// UnknownType reports a record type with no field mapping.
func UnknownType(docType string) *IndexError {
	return New(ErrCodeUnknownType, "no valid mapping for the type: "+docType, nil).
		WithDetail("type", docType)
}

// MissingID reports a record submitted without a usable id.
func MissingID() *IndexError {
	return New(ErrCodeMissingID, "no valid id property was found", nil)
}

// IndexIO wraps a failure surfaced by the underlying index store.
func IndexIO(op string, cause error) *IndexError {
	if cause == nil {
		return nil
	}
	return New(ErrCodeIndexIO, fmt.Sprintf("%s: %v", op, cause), cause).WithDetail("op", op)
}

// As finds the first IndexError in err's chain.
func As(err error) (*IndexError, bool) {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first IndexError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if ie, ok := As(err); ok {
		return ie.Code
	}
	return ""
}
