package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBeginner struct {
	begins int
	err    error
}

func (f *fakeBeginner) BeginTxx(_ context.Context, _ *sql.TxOptions) (*sqlx.Tx, error) {
	f.begins++
	if f.err != nil {
		return nil, f.err
	}
	return &sqlx.Tx{}, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestGetTxJoinsOpenTransaction(t *testing.T) {
	beginner := &fakeBeginner{}

	txCtx, tx, err := GetTx(context.Background(), testLogger(), beginner, nil)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.True(t, tx.IsOpen())
	assert.Equal(t, 1, beginner.begins)

	// a nested call on the returned context must reuse the open transaction
	_, nested, err := GetTx(txCtx, testLogger(), beginner, nil)
	require.NoError(t, err)
	assert.Same(t, tx, nested)
	assert.Equal(t, 1, beginner.begins, "joining must not begin a second transaction")
}

func TestGetTxBeginFailure(t *testing.T) {
	beginner := &fakeBeginner{err: errors.New("connection refused")}

	_, tx, err := GetTx(context.Background(), testLogger(), beginner, nil)
	assert.Error(t, err)
	assert.Nil(t, tx)
}

func TestRollbackNoopInsideJoinedContext(t *testing.T) {
	beginner := &fakeBeginner{}

	txCtx, tx, err := GetTx(context.Background(), testLogger(), beginner, nil)
	require.NoError(t, err)

	// rolling back with the opener's context leaves the transaction open;
	// only the opener closes it
	require.NoError(t, tx.Rollback(txCtx))
	assert.True(t, tx.IsOpen())
}

func TestCloseOnce(t *testing.T) {
	closed := &Transaction{logger: testLogger(), closed: true}

	assert.False(t, closed.IsOpen())
	assert.NoError(t, closed.Commit(context.Background()))
	assert.NoError(t, closed.Rollback(context.Background()))
}
