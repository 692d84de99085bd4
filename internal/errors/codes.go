// Package errors provides structured error handling for docuquery.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and index persistence errors
//   - 3XX: Document loader errors
//   - 4XX: Provider (embedding/generation) errors
//   - 5XX: Cache and index mutation errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates object storage and index persistence errors.
	CategoryStorage Category = "STORAGE"
	// CategoryLoader indicates document loading errors.
	CategoryLoader Category = "LOADER"
	// CategoryProvider indicates embedding/generation backend errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryBackend indicates cache and index mutation errors.
	CategoryBackend Category = "BACKEND"
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
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageDownload = "ERR_201_STORAGE_DOWNLOAD"
	ErrCodeIndexCorrupt    = "ERR_202_INDEX_CORRUPT"

	// Loader errors (300-399)
	ErrCodeUnsupportedType = "ERR_301_UNSUPPORTED_TYPE"
	ErrCodeEmptySource     = "ERR_302_EMPTY_SOURCE"
	ErrCodeLoadFailed      = "ERR_303_LOAD_FAILED"

	// Provider errors (400-499)
	ErrCodeProviderUnavailable = "ERR_401_PROVIDER_UNAVAILABLE"
	ErrCodeModelPullFailed     = "ERR_402_MODEL_PULL_FAILED"
	ErrCodeEmbeddingFailed     = "ERR_403_EMBEDDING_FAILED"
	ErrCodeGenerationFailed    = "ERR_404_GENERATION_FAILED"

	// Cache and index mutation errors (500-599)
	ErrCodeCacheBackend  = "ERR_501_CACHE_BACKEND"
	ErrCodeIndexMutation = "ERR_502_INDEX_MUTATION"
	ErrCodeInternal      = "ERR_503_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryBackend
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_UNSUPPORTED_TYPE")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryLoader
	case '4':
		return CategoryProvider
	default:
		return CategoryBackend
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt:
		return SeverityFatal
	case ErrCodeCacheBackend:
		// Cache failures degrade the call, they never fail it.
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderUnavailable, ErrCodeCacheBackend, ErrCodeStorageDownload:
		return true
	default:
		return false
	}
}
