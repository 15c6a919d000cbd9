package cash

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Default descriptions for manual capital movements.
const (
	DepositDescription    = "Capital deposit"
	WithdrawalDescription = "Capital withdrawal"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	BalanceReader
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
	ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error)
	ScanChain(ctx context.Context, fn func(Transaction) error) error
	RegisterBalance(ctx context.Context) (decimal.Decimal, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived report caches after a commit.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service exposes manual register operations and reads.
type Service struct {
	repo     RepositoryPort
	register *Register
	audit    AuditPort
	cache    CacheBumper
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, register *Register, audit AuditPort, cache CacheBumper, logger *slog.Logger) *Service {
	if register == nil {
		register = NewRegister(RegisterConfig{Logger: logger})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, register: register, audit: audit, cache: cache, logger: logger}
}

// Deposit adds capital to the register. Errors fail the request.
func (s *Service) Deposit(ctx context.Context, input MovementInput) (Transaction, error) {
	return s.manual(ctx, TypeDeposit, DepositDescription, input)
}

// Withdraw removes capital. The register may not go negative, whatever the role.
func (s *Service) Withdraw(ctx context.Context, input MovementInput) (Transaction, error) {
	return s.manual(ctx, TypeWithdrawal, WithdrawalDescription, input)
}

func (s *Service) manual(ctx context.Context, kind TransactionType, description string, input MovementInput) (Transaction, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Transaction{}, err
	}
	amount := ledger.Round2(input.Amount)
	if !amount.IsPositive() {
		return Transaction{}, &ledger.InvalidAmountError{Amount: input.Amount}
	}
	if input.Description != "" {
		description = input.Description
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		if kind == TypeWithdrawal {
			if err := store.LockRegister(ctx); err != nil {
				return fmt.Errorf("cash: lock register: %w", err)
			}
			balance, err := s.register.CurrentBalance(ctx, store)
			if err != nil {
				return err
			}
			if amount.GreaterThan(balance) {
				return &ledger.InsufficientCashError{Available: balance, Required: amount}
			}
		}
		var err error
		txn, err = s.register.Post(ctx, store, PostInput{
			Type:          kind,
			Amount:        amount,
			ReferenceType: ReferenceManual,
			Description:   description,
			Actor:         input.Actor.Username,
		})
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor.Username,
			Action:   "cash:" + string(kind),
			Entity:   "cash_transaction",
			EntityID: strconv.FormatInt(txn.ID, 10),
			Meta: map[string]any{
				"amount":        ledger.FormatAmount(txn.Amount),
				"balance_after": ledger.FormatAmount(txn.BalanceAfter),
			},
		})
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	return txn, nil
}

// Balance returns the current register balance.
func (s *Service) Balance(ctx context.Context) (decimal.Decimal, error) {
	return s.register.CurrentBalance(ctx, s.repo)
}

// ListTransactions returns rows newest first, optionally of one type.
func (s *Service) ListTransactions(ctx context.Context, kind *TransactionType, page shared.Page) ([]Transaction, error) {
	if kind != nil {
		if _, err := kind.Sign(); err != nil {
			return nil, err
		}
	}
	return s.repo.ListTransactions(ctx, Filter{Type: kind, Page: shared.NewPage(page.Offset, page.Limit)})
}

// CheckAffordability previews the outflow gate without writing.
func (s *Service) CheckAffordability(ctx context.Context, amount decimal.Decimal, actor ledger.Actor) (Affordability, error) {
	rounded := ledger.Round2(amount)
	if !rounded.IsPositive() {
		return Affordability{}, &ledger.InvalidAmountError{Amount: amount}
	}
	return s.register.ValidateAffordability(ctx, s.repo, rounded, actor)
}

// CheckChain walks the log in insertion order and verifies every row links to
// its predecessor and applies its own sign.
func (s *Service) CheckChain(ctx context.Context) (ChainReport, error) {
	report := ChainReport{LastBalance: decimal.Zero}
	prev := decimal.Zero
	err := s.repo.ScanChain(ctx, func(txn Transaction) error {
		report.Checked++
		sign, err := txn.Type.Sign()
		expected := txn.BalanceBefore.Add(txn.Amount.Mul(decimal.NewFromInt(int64(sign))))
		if err != nil || !txn.BalanceBefore.Equal(prev) || !txn.BalanceAfter.Equal(expected) {
			report.Broken = append(report.Broken, txn.ID)
		}
		prev = txn.BalanceAfter
		return nil
	})
	if err != nil {
		return ChainReport{}, fmt.Errorf("cash: scan chain: %w", err)
	}
	report.LastBalance = prev
	registerBalance, err := s.repo.RegisterBalance(ctx)
	if err != nil {
		return ChainReport{}, fmt.Errorf("cash: read register: %w", err)
	}
	report.RegisterBalance = registerBalance
	report.RegisterMismatch = !registerBalance.Equal(prev)
	return report, nil
}
