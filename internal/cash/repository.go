package cash

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/platform/db"
)

// Repository persists register rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StoreTx implements Store over an open transaction.
type StoreTx struct {
	tx pgx.Tx
}

// NewStoreTx wraps a transaction.
func NewStoreTx(tx pgx.Tx) *StoreTx {
	return &StoreTx{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStoreTx(tx))
	})
}

func lastBalance(ctx context.Context, q db.Querier) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRow(ctx, `SELECT balance_after FROM cash_transactions ORDER BY id DESC LIMIT 1`).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return balance, err
}

// LastBalance reads outside any transaction.
func (r *Repository) LastBalance(ctx context.Context) (decimal.Decimal, error) {
	return lastBalance(ctx, r.pool)
}

// LastBalance reads the latest row visible to the transaction.
func (s *StoreTx) LastBalance(ctx context.Context) (decimal.Decimal, error) {
	return lastBalance(ctx, s.tx)
}

// LockRegister takes the register row lock.
func (s *StoreTx) LockRegister(ctx context.Context) error {
	var id int
	return s.tx.QueryRow(ctx, `SELECT id FROM cash_register WHERE id = 1 FOR UPDATE`).Scan(&id)
}

// InsertTransaction appends the row and moves the register pointer.
func (s *StoreTx) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO cash_transactions
		(transaction_type, amount, balance_before, balance_after, reference_type, reference_id, description, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		string(txn.Type), txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
		txn.ReferenceType, txn.ReferenceID, txn.Description, txn.CreatedBy, txn.CreatedAt,
	).Scan(&txn.ID)
	if err != nil {
		return Transaction{}, err
	}
	_, err = s.tx.Exec(ctx, `UPDATE cash_register SET balance = $1, last_transaction_id = $2, updated_at = NOW() WHERE id = 1`, txn.BalanceAfter, txn.ID)
	return txn, err
}

// Savepoint runs fn inside a nested pgx transaction.
func (s *StoreTx) Savepoint(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.Savepoint(ctx, s.tx, func(sp pgx.Tx) error {
		return fn(ctx, NewStoreTx(sp))
	})
}

const transactionColumns = `id, transaction_type, amount, balance_before, balance_after, reference_type, reference_id, description, created_by, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	var kind string
	err := row.Scan(&txn.ID, &kind, &txn.Amount, &txn.BalanceBefore, &txn.BalanceAfter,
		&txn.ReferenceType, &txn.ReferenceID, &txn.Description, &txn.CreatedBy, &txn.CreatedAt)
	txn.Type = TransactionType(kind)
	return txn, err
}

// ListTransactions returns rows newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	var kind *string
	if filter.Type != nil {
		v := string(*filter.Type)
		kind = &v
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM cash_transactions
		WHERE ($1::text IS NULL OR transaction_type = $1)
		ORDER BY id DESC
		OFFSET $2 LIMIT $3`, kind, filter.Page.Offset, filter.Page.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// ScanChain streams every row in insertion order.
func (r *Repository) ScanChain(ctx context.Context, fn func(Transaction) error) error {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM cash_transactions ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return err
		}
		if err := fn(txn); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RegisterBalance reads the denormalised register balance.
func (r *Repository) RegisterBalance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT balance FROM cash_register WHERE id = 1`).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return balance, err
}
