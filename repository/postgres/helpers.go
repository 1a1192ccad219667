package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

// SQLSTATE codes mapped onto domain errors.
const (
	sqlStateForeignKeyViolation = "23503"
	sqlStateUniqueViolation     = "23505"
	sqlStateCheckViolation      = "23514"
)

// mapWriteError classifies constraint violations so callers see Invalid or
// Conflict instead of an internal error. Other errors are wrapped with op.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateForeignKeyViolation:
			return domain.WrapError(domain.ErrCodeInvalid,
				fmt.Sprintf("%s: referenced row does not exist (%s)", op, pgErr.ConstraintName), err)
		case sqlStateCheckViolation:
			return domain.WrapError(domain.ErrCodeInvalid,
				fmt.Sprintf("%s: value rejected by %s", op, pgErr.ConstraintName), err)
		case sqlStateUniqueViolation:
			return domain.WrapError(domain.ErrCodeConflict,
				fmt.Sprintf("%s: duplicate value (%s)", op, pgErr.ConstraintName), err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// conn returns the transaction stored in ctx, falling back to the pool.
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

type transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor backed by pgx transactions.
func NewTransactor(pool *pgxpool.Pool) repository.Transactor {
	return &transactor{pool: pool}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
