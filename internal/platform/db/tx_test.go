package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	commits   *int
	rollbacks *int
}

func (t *fakeTx) Commit(ctx context.Context) error {
	*t.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	*t.rollbacks++
	return nil
}

type fakeBeginner struct {
	begins    int
	commits   int
	rollbacks int
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	return &fakeTx{commits: &b.commits, rollbacks: &b.rollbacks}, nil
}

func serializationErr() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	beginner := &fakeBeginner{}
	calls := 0
	err := withRetry(context.Background(), beginner, func(tx pgx.Tx) error {
		calls++
		if calls < 3 {
			return serializationErr()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, beginner.begins)
	require.Equal(t, 1, beginner.commits)
}

func TestWithTxGivesUpAfterBoundedAttempts(t *testing.T) {
	beginner := &fakeBeginner{}
	calls := 0
	err := withRetry(context.Background(), beginner, func(tx pgx.Tx) error {
		calls++
		return serializationErr()
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, "40001", pgErr.Code)
	require.Equal(t, txAttempts, calls)
	require.Equal(t, 0, beginner.commits)
}

func TestWithTxDoesNotRetryDomainErrors(t *testing.T) {
	beginner := &fakeBeginner{}
	boom := errors.New("insufficient stock")
	calls := 0
	err := withRetry(context.Background(), beginner, func(tx pgx.Tx) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, beginner.rollbacks)
}

func TestWithTxStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	beginner := &fakeBeginner{}
	calls := 0
	err := withRetry(ctx, beginner, func(tx pgx.Tx) error {
		calls++
		cancel()
		return serializationErr()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
