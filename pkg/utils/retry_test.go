package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dokkuadmin/banflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTemporary = errors.New("temporary error")
	errFatal     = errors.New("fatal error")
)

func testOptions() utils.RetryOptions {
	return utils.RetryOptions{
		MaxElapsedTime:  100 * time.Millisecond,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		operation     func() func() (int, error)
		expectedCalls int
		expectedValue int
		expectedErr   error
	}{
		{
			name: "succeeds first try",
			operation: func() func() (int, error) {
				return func() (int, error) { return 1, nil }
			},
			expectedCalls: 1,
			expectedValue: 1,
		},
		{
			name: "succeeds after retries",
			operation: func() func() (int, error) {
				count := 0
				return func() (int, error) {
					count++
					if count < 3 {
						return 0, errTemporary
					}
					return count, nil
				}
			},
			expectedCalls: 3,
			expectedValue: 3,
		},
		{
			name: "fails all retries",
			operation: func() func() (int, error) {
				return func() (int, error) { return 0, errTemporary }
			},
			expectedCalls: 4, // Initial + 3 retries
			expectedErr:   errTemporary,
		},
		{
			name: "stops on permanent error",
			operation: func() func() (int, error) {
				return func() (int, error) { return 0, utils.Stop(errFatal) }
			},
			expectedCalls: 1,
			expectedErr:   errFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			op := tt.operation()

			value, err := utils.WithRetry(t.Context(), func() (int, error) {
				calls++
				return op()
			}, testOptions())

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedValue, value)
			}

			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestWithRetryContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	calls := 0

	opts := utils.RetryOptions{
		MaxElapsedTime:  time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		MaxRetries:      5,
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := utils.WithRetry(ctx, func() (struct{}, error) {
		calls++
		return struct{}{}, errTemporary
	}, opts)

	require.Error(t, err)
	assert.Less(t, calls, 5)
}
