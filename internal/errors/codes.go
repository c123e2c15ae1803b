// Package errors provides structured error handling for lockerindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index directory, datastore)
//   - 3XX: Network errors (locker fetch)
//   - 4XX: Validation errors (records, ids, types)
//   - 5XX: Internal errors (engine selection and state)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeIndexIO      = "ERR_201_INDEX_IO"
	ErrCodeDatastoreIO  = "ERR_202_DATASTORE_IO"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"

	// Network errors (300-399)
	ErrCodeLockerUnavailable = "ERR_301_LOCKER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeUnknownType     = "ERR_401_UNKNOWN_TYPE"
	ErrCodeMissingID       = "ERR_402_MISSING_ID"
	ErrCodeMalformedRecord = "ERR_403_MALFORMED_RECORD"
	ErrCodeInvalidQuery    = "ERR_404_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeEngineUnset        = "ERR_501_ENGINE_UNSET"
	ErrCodeEngineConstruction = "ERR_502_ENGINE_CONSTRUCTION"
	ErrCodeNullEngine         = "ERR_503_NULL_ENGINE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "401" from "ERR_401_UNKNOWN_TYPE")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEngineUnset, ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeEngineConstruction, ErrCodeLockerUnavailable:
		return SeverityWarning
	}
	return SeverityError
}
