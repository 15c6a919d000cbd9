package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	InconsistentMovements(ctx context.Context) ([]int64, error)
	NegativeProducts(ctx context.Context) ([]int64, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	StockStore
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived report caches after a commit.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service coordinates manual adjustments and movement reads.
type Service struct {
	repo     RepositoryPort
	recorder *Recorder
	audit    AuditPort
	cache    CacheBumper
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache CacheBumper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: NewRecorder(), audit: audit, cache: cache, logger: logger}
}

// Adjust records an add, subtract or set adjustment in its own transaction.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Movement{}, err
	}
	if input.Kind != MovementSet && input.Quantity <= 0 {
		return Movement{}, ledger.Invalid("quantity", "quantity must be greater than zero")
	}
	actor := input.Actor.Username
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		change := input.Quantity
		switch input.Kind {
		case MovementSubtract:
			change = -input.Quantity
		case MovementSet:
			product, err := tx.GetProductForUpdate(ctx, input.ProductID)
			if err != nil {
				return err
			}
			change = input.Quantity - product.Quantity
		}
		var err error
		movement, err = s.recorder.Record(ctx, tx, RecordInput{
			ProductID:     input.ProductID,
			Type:          input.Kind,
			Change:        change,
			Reason:        input.Reason,
			ReferenceType: ReferenceAdjustment,
			Notes:         input.Notes,
			Actor:         actor,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   fmt.Sprintf("inventory:%s", input.Kind),
			Entity:   "product",
			EntityID: strconv.FormatInt(input.ProductID, 10),
			Meta: map[string]any{
				"before": movement.QuantityBefore,
				"change": movement.QuantityChange,
				"after":  movement.QuantityAfter,
				"reason": input.Reason,
			},
		})
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	return movement, nil
}

// ListMovements returns movements newest first, optionally for one product.
func (s *Service) ListMovements(ctx context.Context, productID *int64, page shared.Page) ([]Movement, error) {
	return s.repo.ListMovements(ctx, MovementFilter{ProductID: productID, Page: shared.NewPage(page.Offset, page.Limit)})
}

// CheckIntegrity scans for movements and products breaking stock invariants.
func (s *Service) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	movements, err := s.repo.InconsistentMovements(ctx)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("inventory: scan movements: %w", err)
	}
	negatives, err := s.repo.NegativeProducts(ctx)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("inventory: scan products: %w", err)
	}
	return IntegrityReport{InconsistentMovements: movements, NegativeProducts: negatives}, nil
}
