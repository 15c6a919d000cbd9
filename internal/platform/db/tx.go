package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return translateConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateConflict(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// ErrConflict matches every ConflictError.
var ErrConflict = errors.New("platform/db: concurrent update")

// ConflictError reports a serialization failure or deadlock. The caller may
// retry the whole request.
type ConflictError struct {
	err error
}

// NewConflictError wraps err as a ConflictError.
func NewConflictError(err error) *ConflictError {
	return &ConflictError{err: err}
}

func (e *ConflictError) Error() string { return "concurrent update, retry the request: " + e.err.Error() }
func (e *ConflictError) Unwrap() error { return e.err }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
func (e *ConflictError) Status() int          { return http.StatusConflict }
func (e *ConflictError) Title() string        { return "Concurrent Update" }

// IsConflict reports whether err is a serialization failure or deadlock, raw
// or already wrapped in a ConflictError. A conflict poisons the surrounding
// transaction and must not be swallowed by a savepoint.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func translateConflict(err error) error {
	if err == nil || errors.Is(err, ErrConflict) {
		return err
	}
	if IsConflict(err) {
		return &ConflictError{err: err}
	}
	return err
}

// Savepoint runs fn inside a nested transaction. A failure rolls back only the
// work done by fn and leaves the outer transaction usable.
func Savepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return translateConflict(err)
	}
	if err := sp.Commit(ctx); err != nil {
		return translateConflict(fmt.Errorf("platform/db: release savepoint: %w", err))
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
