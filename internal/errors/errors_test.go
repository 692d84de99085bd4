package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping with QueryError
	qErr := New(ErrCodeProviderUnavailable, "embedding backend unreachable", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, qErr)
	assert.Equal(t, originalErr, errors.Unwrap(qErr))
	assert.True(t, errors.Is(qErr, originalErr))
}

func TestQueryError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "loader error",
			code:     ErrCodeUnsupportedType,
			message:  "no loader for content type application/zip",
			expected: "[ERR_301_UNSUPPORTED_TYPE] no loader for content type application/zip",
		},
		{
			name:     "provider error",
			code:     ErrCodeProviderUnavailable,
			message:  "ollama not reachable",
			expected: "[ERR_401_PROVIDER_UNAVAILABLE] ollama not reachable",
		},
		{
			name:     "cache error",
			code:     ErrCodeCacheBackend,
			message:  "redis down",
			expected: "[ERR_501_CACHE_BACKEND] redis down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestQueryError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeEmptySource, "document A produced no segments", nil)
	err2 := New(ErrCodeEmptySource, "document B produced no segments", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestQueryError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeEmptySource, "no segments", nil)
	err2 := New(ErrCodeLoadFailed, "load failed", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeStorageDownload, CategoryStorage},
		{ErrCodeEmptySource, CategoryLoader},
		{ErrCodeModelPullFailed, CategoryProvider},
		{ErrCodeCacheBackend, CategoryBackend},
		{ErrCodeIndexMutation, CategoryBackend},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeProviderUnavailable, "down", nil)))
	assert.True(t, IsRetryable(New(ErrCodeCacheBackend, "down", nil)))
	assert.False(t, IsRetryable(New(ErrCodeEmptySource, "empty", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeLoadFailed, nil))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeIndexMutation, "vector delete failed", nil).
		WithDetail("document_id", "doc-1").
		WithDetail("project_id", "proj-1")

	assert.Equal(t, "doc-1", err.Details["document_id"])
	assert.Equal(t, "proj-1", err.Details["project_id"])
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, SeverityWarning, New(ErrCodeCacheBackend, "m", nil).Severity)
	assert.Equal(t, SeverityFatal, New(ErrCodeIndexCorrupt, "m", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeLoadFailed, "m", nil).Severity)
}
