package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTxConflict marks a transaction that failed serialization or could not
// acquire its locks in time. The attempt left no partial state and is safe
// to retry.
var ErrTxConflict = errors.New("transaction conflict")

// Postgres SQLSTATE codes that indicate a retryable concurrency failure
// rather than a logic error.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateLockNotAvailable     = "55P03"
)

// RunInTx executes fn inside a serializable transaction. The transaction is
// planted in the context so that repositories using QuerierFromContext join
// it instead of the pool: every read fn performs sees a state no concurrent
// committed transaction can have invalidated by commit time.
//
// Serialization failures, deadlocks and lock timeouts are reported wrapped
// in ErrTxConflict so callers can distinguish "retry" from "reject".
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := beginTx(ctx, pool)
	if err != nil {
		return classifyTxErr(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	txCtx := context.WithValue(ctx, TxKey, tx)
	if err := fn(txCtx); err != nil {
		return classifyTxErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyTxErr(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// beginTx opens the transaction on the practice-scoped connection when the
// context carries one, so the transaction inherits its search_path.
func beginTx(ctx context.Context, pool *pgxpool.Pool) (pgx.Tx, error) {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	if conn, ok := ctx.Value(DBConnKey).(*pgxpool.Conn); ok && conn != nil {
		return conn.BeginTx(ctx, opts)
	}
	return pool.BeginTx(ctx, opts)
}

func classifyTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected, sqlstateLockNotAvailable:
			return fmt.Errorf("%w: %v", ErrTxConflict, err)
		}
	}
	return err
}

// IsTxConflict reports whether err is a retryable transaction conflict.
func IsTxConflict(err error) bool {
	return errors.Is(err, ErrTxConflict)
}
