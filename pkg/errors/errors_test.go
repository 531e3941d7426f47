package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[DDB1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify credentials"),
			expected: "[DDB1001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify credentials",
		},
		{
			name: "error with context",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("host", "example.com").
				WithContext("port", 443),
			expected: "[DDB1001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("connection refused")

	appErr := Wrap(baseErr, ErrCodeConnectionFailed, "Failed to connect to warehouse")

	assert.Equal(t, baseErr, appErr.Cause)
	assert.Equal(t, ErrCodeConnectionFailed, appErr.Code)
	assert.True(t, stderrors.Is(appErr, baseErr))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestWrapInheritsContext(t *testing.T) {
	inner := New(ErrCodeNotFound, "missing").WithContext("object", "p.d.t")
	outer := Wrap(inner, ErrCodeJobFailed, "load failed")

	assert.Equal(t, "p.d.t", outer.Context["object"])
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("reading schema: %w", MalformedQuery("SELECT", fmt.Errorf("400")))

	assert.True(t, HasCode(err, ErrCodeMalformedQuery))
	assert.False(t, HasCode(err, ErrCodeNotFound))
	assert.True(t, stderrors.Is(err, Code(ErrCodeMalformedQuery)))
	assert.Equal(t, ErrCodeMalformedQuery, GetErrorCode(err))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("plain")))
}

func TestStagingError(t *testing.T) {
	cause := fmt.Errorf("bucket not found")
	err := StagingError(cause)

	assert.Equal(t, ErrCodeStagingFailed, err.Code)
	assert.Contains(t, err.Error(), "Cannot produce staging file")
	assert.True(t, stderrors.Is(err, cause))
}

func TestSQLErrorClassification(t *testing.T) {
	assert.Equal(t, ErrCodeSQLPermission, SQLError("permission denied on table", "SELECT 1", fmt.Errorf("x")).Code)
	assert.Equal(t, ErrCodeSQLTimeout, SQLError("statement timeout", "SELECT 1", fmt.Errorf("x")).Code)
	assert.Equal(t, ErrCodeSQLExecution, SQLError("failed", "SELECT 1", fmt.Errorf("x")).Code)
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	retries := 0

	config := &RetryConfig{
		MaxRetries:   2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		RetryableError: func(err error) bool {
			return true
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retries++
		},
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("temporary error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, retries)
}

func TestRetryExhausted(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		Multiplier:     1,
		RetryableError: func(error) bool { return true },
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		return fmt.Errorf("always")
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeResourceExhausted, GetErrorCode(err))
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func(ctx context.Context) error {
		attempts++
		return InvalidArgument("dataset", "must not be empty")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeInvalidArgument, GetErrorCode(err))
}

func TestCalculateDelayCapped(t *testing.T) {
	config := &RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10}
	assert.Equal(t, 2*time.Second, calculateDelay(3, config))
}
