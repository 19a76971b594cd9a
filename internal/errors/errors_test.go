package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodeNotFound, "chunk missing", nil)
	assert.Equal(t, CategoryIO, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Retryable)
}

func TestRetryableCodesAreWarningSeverity(t *testing.T) {
	err := New(ErrCodeVectorStoreUnavailable, "timeout reaching vector store", nil)
	assert.True(t, err.Retryable)
	assert.Equal(t, SeverityWarning, err.Severity)
}

func TestCorruptStoreIsFatal(t *testing.T) {
	err := New(ErrCodeCorruptStore, "catalog.db checksum mismatch", nil)
	assert.Equal(t, SeverityFatal, err.Severity)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeIOError, nil))
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	sentinel := New(ErrCodeNotFound, "sentinel", nil)
	wrapped := Wrap(ErrCodeNotFound, stderrors.New("boom"))
	assert.True(t, stderrors.Is(wrapped, sentinel))
}

func TestWithDetailAndSuggestionChain(t *testing.T) {
	err := New(ErrCodeInvalidConfig, "bad yaml", nil).
		WithDetail("file", "docseek.yaml").
		WithSuggestion("check indentation")
	require.Equal(t, "docseek.yaml", err.Details["file"])
	assert.Equal(t, "check indentation", err.Suggestion)
}

func TestIsRetryableAndIsFatalOnPlainError(t *testing.T) {
	plain := stderrors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Equal(t, "", Code(plain))
}
