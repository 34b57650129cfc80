package dbretry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dokkuadmin/banflow/internal/database/dbretry"
	"github.com/dokkuadmin/banflow/internal/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var (
	errTransient = errors.New("write tcp: connection reset by peer")
	errFatal     = errors.New("syntax error")
)

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "network reset", err: errTransient, want: true},
		{name: "wrapped network error", err: fmt.Errorf("query: %w", errTransient), want: true},
		{name: "sqlite busy", err: errors.New("database is locked"), want: true},
		{name: "plain error", err: errFatal, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "permanent transient", err: dbretry.Permanent(errTransient), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, dbretry.Permanent(nil))

	err := dbretry.Permanent(errTransient)
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, errTransient.Error(), err.Error())
}

func TestOperation(t *testing.T) {
	t.Parallel()

	t.Run("RetriesTransientErrors", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		result, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
			attempts++
			if attempts < 2 {
				return 0, errTransient
			}
			return 7, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 7, result)
		assert.Equal(t, 2, attempts)
	})

	t.Run("StopsOnFatalError", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		_, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
			attempts++
			return 0, errFatal
		})

		require.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, attempts)
	})

	t.Run("StopsOnPermanentError", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := dbretry.NoResult(t.Context(), func(context.Context) error {
			attempts++
			return dbretry.Permanent(errTransient)
		})

		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, attempts)
	})
}

func TestTransaction(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) *bun.DB {
		t.Helper()

		db := dbtest.NewDB(t)
		_, err := db.ExecContext(t.Context(), "CREATE TABLE counters (n INTEGER NOT NULL)")
		require.NoError(t, err)

		return db
	}

	count := func(t *testing.T, db *bun.DB) int {
		t.Helper()

		var n int
		require.NoError(t, db.NewRaw("SELECT COUNT(*) FROM counters").Scan(t.Context(), &n))
		return n
	}

	t.Run("RollsBackFailedAttempts", func(t *testing.T) {
		t.Parallel()

		db := setup(t)
		attempts := 0

		err := dbretry.Transaction(t.Context(), db, func(ctx context.Context, tx bun.Tx) error {
			attempts++
			if _, err := tx.ExecContext(ctx, "INSERT INTO counters (n) VALUES (?)", attempts); err != nil {
				return err
			}
			if attempts == 1 {
				return errTransient
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("PermanentErrorRollsBackOnce", func(t *testing.T) {
		t.Parallel()

		db := setup(t)
		attempts := 0

		err := dbretry.Transaction(t.Context(), db, func(ctx context.Context, tx bun.Tx) error {
			attempts++
			if _, err := tx.ExecContext(ctx, "INSERT INTO counters (n) VALUES (1)"); err != nil {
				return err
			}
			return dbretry.Permanent(errTransient)
		})

		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, attempts)
		assert.Zero(t, count(t, db))
	})
}
