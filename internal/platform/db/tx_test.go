package db

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestTranslateConflict(t *testing.T) {
	serial := fmt.Errorf("update products: %w", &pgconn.PgError{Code: "40001"})
	err := translateConflict(serial)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, http.StatusConflict, conflict.Status())

	deadlock := translateConflict(&pgconn.PgError{Code: "40P01"})
	require.True(t, errors.As(deadlock, &conflict))

	plain := errors.New("boom")
	require.Same(t, plain, translateConflict(plain))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("x")))
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(fmt.Errorf("lock: %w", &pgconn.PgError{Code: "40001"})))
	require.True(t, IsConflict(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsConflict(fmt.Errorf("cash: %w", NewConflictError(errors.New("x")))))
	require.False(t, IsConflict(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsConflict(errors.New("boom")))

	wrapped := NewConflictError(errors.New("x"))
	require.Same(t, wrapped, translateConflict(wrapped))
	require.True(t, errors.Is(wrapped, ErrConflict))
}
