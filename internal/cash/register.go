package cash

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
)

// BalanceReader reads the latest balance_after, zero when the log is empty.
type BalanceReader interface {
	LastBalance(ctx context.Context) (decimal.Decimal, error)
}

// Store is the transactional storage behind the register.
type Store interface {
	BalanceReader
	// LockRegister serialises appends until the surrounding transaction ends.
	LockRegister(ctx context.Context) error
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	// Savepoint runs fn in a nested unit that rolls back alone on error.
	Savepoint(ctx context.Context, fn func(context.Context, Store) error) error
}

// FailureRecorder counts swallowed cash postings.
type FailureRecorder interface {
	CashPostFailed(referenceType string)
}

// RegisterConfig groups register settings.
type RegisterConfig struct {
	PrivilegedRole string
	Logger         *slog.Logger
	Failures       FailureRecorder
}

// Register derives the running balance and appends cash rows.
type Register struct {
	privilegedRole string
	logger         *slog.Logger
	failures       FailureRecorder
	now            func() time.Time
}

// NewRegister constructs a Register.
func NewRegister(cfg RegisterConfig) *Register {
	role := cfg.PrivilegedRole
	if role == "" {
		role = ledger.RoleAdmin
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Register{privilegedRole: role, logger: logger, failures: cfg.Failures, now: time.Now}
}

// CurrentBalance returns balance_after of the latest row.
func (r *Register) CurrentBalance(ctx context.Context, reader BalanceReader) (decimal.Decimal, error) {
	return reader.LastBalance(ctx)
}

// Post appends a row and fails the caller on any error.
func (r *Register) Post(ctx context.Context, store Store, in PostInput) (Transaction, error) {
	sign, err := in.Type.Sign()
	if err != nil {
		return Transaction{}, err
	}
	amount := ledger.Round2(in.Amount)
	if !amount.IsPositive() {
		return Transaction{}, &ledger.InvalidAmountError{Amount: in.Amount}
	}
	if err := store.LockRegister(ctx); err != nil {
		return Transaction{}, fmt.Errorf("cash: lock register: %w", err)
	}
	before, err := store.LastBalance(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("cash: read balance: %w", err)
	}
	after := before.Add(amount.Mul(decimal.NewFromInt(int64(sign))))
	txn, err := store.InsertTransaction(ctx, Transaction{
		Type:          in.Type,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Description:   in.Description,
		CreatedBy:     in.Actor,
		CreatedAt:     r.now().UTC(),
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("cash: insert transaction: %w", err)
	}
	return txn, nil
}

// PostBestEffort appends a row inside a savepoint. A failure rolls back the
// savepoint only and is logged and counted. The returned error is non nil only
// for a serialization conflict, which aborts the surrounding transaction.
func (r *Register) PostBestEffort(ctx context.Context, store Store, in PostInput) (*Transaction, error) {
	var posted Transaction
	err := store.Savepoint(ctx, func(ctx context.Context, sp Store) error {
		txn, err := r.Post(ctx, sp, in)
		if err != nil {
			return err
		}
		posted = txn
		return nil
	})
	if err != nil {
		if db.IsConflict(err) {
			return nil, fmt.Errorf("cash: post %s: %w", in.Type, err)
		}
		r.logger.Warn("cash posting skipped",
			slog.String("type", string(in.Type)),
			slog.String("reference_type", in.ReferenceType),
			slog.String("amount", ledger.FormatAmount(in.Amount)),
			slog.Any("error", err))
		if r.failures != nil {
			r.failures.CashPostFailed(in.ReferenceType)
		}
		return nil, nil
	}
	return &posted, nil
}

// ValidateAffordability checks an outflow against the current balance. The
// privileged role may overdraw with a warning, every other role is blocked.
func (r *Register) ValidateAffordability(ctx context.Context, reader BalanceReader, amount decimal.Decimal, actor ledger.Actor) (Affordability, error) {
	balance, err := reader.LastBalance(ctx)
	if err != nil {
		return Affordability{}, fmt.Errorf("cash: read balance: %w", err)
	}
	result := Affordability{Allowed: true, Balance: balance, Required: amount, Shortage: decimal.Zero}
	if amount.LessThanOrEqual(balance) {
		return result, nil
	}
	result.Shortage = amount.Sub(balance)
	result.Warning = ledger.ShortageMessage(balance, amount)
	result.Allowed = actor.Privileged(r.privilegedRole)
	return result, nil
}
