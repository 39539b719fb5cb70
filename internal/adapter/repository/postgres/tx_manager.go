package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/usecase"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// saveTxOptions is the isolation a wallet save runs under. Read committed is
// enough: the unique (aggregate_id, version) index serializes appends to one
// stream, and the projection row is only written after a successful append.
var saveTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	pool    txBeginner
	retrier *Retrier
}

// NewTxManager creates a TxManager. A non-nil retrier retries BEGIN on
// transient connection failures.
func NewTxManager(pool *pgxpool.Pool, retrier *Retrier) *TxManager {
	return newTxManager(pool, retrier)
}

func newTxManager(pool txBeginner, retrier *Retrier) *TxManager {
	return &TxManager{pool: pool, retrier: retrier}
}

// Begin starts a read-committed transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	var tx pgx.Tx
	begin := func() error {
		var err error
		tx, err = m.pool.BeginTx(ctx, saveTxOptions)
		return err
	}

	var err error
	if m.retrier != nil {
		err = m.retrier.Retry(ctx, "begin", begin)
	} else {
		err = begin()
	}
	if err != nil {
		return nil, mapError("begin", err)
	}

	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction. A unique violation raised by a deferred
// constraint surfaces here and is mapped like any other write error.
func (t *Tx) Commit(ctx context.Context) error {
	return mapError("commit", t.tx.Commit(ctx))
}

// Rollback aborts the transaction; after Commit it is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return mapError("rollback", err)
}

// PgxTx returns the underlying pgx.Tx.
func (t *Tx) PgxTx() pgx.Tx {
	return t.tx
}

// pgxTx unwraps a usecase.Transaction created by TxManager.
func pgxTx(tx usecase.Transaction) (pgx.Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, errors.New("postgres: transaction was not started by postgres.TxManager")
	}
	return t.tx, nil
}
