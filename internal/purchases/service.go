package purchases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, page shared.Page) ([]Purchase, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	inventory.StockStore
	cash.Store

	ClaimInvoiceSequence(ctx context.Context, kind string) (int64, error)
	// GetSupplier reads without locking; used for line snapshots.
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	GetSupplierForUpdate(ctx context.Context, id int64) (Supplier, error)
	UpdateSupplierTotals(ctx context.Context, id int64, totalPurchases, balance decimal.Decimal) error

	InsertPurchase(ctx context.Context, purchase Purchase) (int64, error)
	InsertPurchaseItems(ctx context.Context, purchaseID int64, items []Item) ([]Item, error)
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	UpdatePurchase(ctx context.Context, purchase Purchase) error
	DeletePurchaseItems(ctx context.Context, purchaseID int64) error
	DeletePurchase(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// CacheBumper invalidates derived report caches after a commit.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// MetricsPort counts committed documents.
type MetricsPort interface {
	DocumentCommitted(kind string, op ledger.Operation)
}

// Dependencies groups the collaborators of Service. Only Repo is required.
type Dependencies struct {
	Repo        RepositoryPort
	Register    *cash.Register
	Locker      Locker
	Audit       AuditPort
	Idempotency IdempotencyPort
	Cache       CacheBumper
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// Config groups optional settings.
type Config struct {
	InvoiceWidth int
	Clock        func() time.Time
}

// Service runs purchase create, update and delete as single atomic units.
type Service struct {
	repo        RepositoryPort
	recorder    *inventory.Recorder
	register    *cash.Register
	locker      Locker
	audit       AuditPort
	idempotency IdempotencyPort
	cache       CacheBumper
	metrics     MetricsPort
	logger      *slog.Logger
	cfg         Config
}

// NewService builds Service.
func NewService(deps Dependencies, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	register := deps.Register
	if register == nil {
		register = cash.NewRegister(cash.RegisterConfig{Logger: logger})
	}
	if cfg.InvoiceWidth <= 0 {
		cfg.InvoiceWidth = ledger.DefaultNumberWidth
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		repo:        deps.Repo,
		recorder:    inventory.NewRecorder(),
		register:    register,
		locker:      deps.Locker,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// ============================================================================
// OPERATIONS
// ============================================================================

// Create records a purchase. When paid > 0 the register must cover the
// payment: the privileged role may overdraw and receives a warning, anyone
// else gets InsufficientCashError before anything is written.
func (s *Service) Create(ctx context.Context, input Input) (Result, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Result{}, err
	}
	date, err := ledger.DocumentDate(input.PurchaseDate, s.cfg.Clock())
	if err != nil {
		return Result{}, err
	}
	key, err := shared.NormalizeIdempotencyKey(input.IdempotencyKey)
	if err != nil {
		return Result{}, ledger.Invalid("idempotency_key", err.Error())
	}
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, Kind); err != nil {
			return Result{}, err
		}
	}

	var result Result
	err = s.withLock(ctx, shared.InvoiceLockKey(Kind), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			supplierName, err := s.resolveSupplier(ctx, tx, input)
			if err != nil {
				return err
			}
			items, totals, err := s.price(ctx, tx, input)
			if err != nil {
				return err
			}
			if totals.Paid.IsPositive() {
				warning, err := s.checkAffordability(ctx, tx, totals.Paid, input.Actor)
				if err != nil {
					return err
				}
				result.Warning = warning
			}
			issued, err := tx.ClaimInvoiceSequence(ctx, Kind)
			if err != nil {
				return fmt.Errorf("purchases: claim invoice number: %w", err)
			}
			now := s.cfg.Clock().UTC()
			p := header(input, supplierName, date, totals)
			p.InvoiceNo = ledger.NextInvoiceNumber(ledger.PrefixPurchaseInvoice, issued, s.cfg.InvoiceWidth)
			p.CreatedBy = input.Actor.Username
			p.CreatedAt, p.UpdatedAt = now, now
			if p.ID, err = tx.InsertPurchase(ctx, p); err != nil {
				return fmt.Errorf("purchases: insert purchase: %w", err)
			}
			if p.Items, err = tx.InsertPurchaseItems(ctx, p.ID, items); err != nil {
				return fmt.Errorf("purchases: insert items: %w", err)
			}
			if err := s.apply(ctx, tx, p, ReasonCreated, input.Actor.Username); err != nil {
				return err
			}
			if p.Paid.IsPositive() {
				id := p.ID
				if _, err := s.register.PostBestEffort(ctx, tx, cash.PostInput{
					Type:          cash.TypePurchaseExpense,
					Amount:        p.Paid,
					ReferenceType: cash.ReferencePurchase,
					ReferenceID:   &id,
					Description:   fmt.Sprintf("Purchase - invoice %s", p.InvoiceNo),
					Actor:         input.Actor.Username,
				}); err != nil {
					return err
				}
			}
			result.Purchase = p
			return nil
		})
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, key, Kind); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Result{}, err
	}
	if result.Warning != "" {
		s.logger.Warn("purchase overdraws cash register",
			slog.String("invoice_no", result.InvoiceNo),
			slog.String("actor", input.Actor.Username),
			slog.String("warning", result.Warning))
	}
	s.committed(ctx, ledger.OpCreate, result.Purchase, input.Actor)
	return result, nil
}

// Update replaces a purchase by reversing the stored version and applying the
// new one. Reversal needs every old line's stock still on hand. Cash already
// posted for the old version is left as is.
func (s *Service) Update(ctx context.Context, id int64, input Input) (Purchase, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Purchase{}, err
	}
	date, err := ledger.DocumentDate(input.PurchaseDate, s.cfg.Clock())
	if err != nil {
		return Purchase{}, err
	}
	var p Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		old, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.precheckReversal(ctx, tx, old, "cannot edit purchase"); err != nil {
			return err
		}
		supplierName, err := s.resolveSupplier(ctx, tx, input)
		if err != nil {
			return err
		}
		if err := s.reverse(ctx, tx, old, ReasonEdited, input.Actor.Username); err != nil {
			return err
		}
		if err := tx.DeletePurchaseItems(ctx, id); err != nil {
			return fmt.Errorf("purchases: delete items: %w", err)
		}
		items, totals, err := s.price(ctx, tx, input)
		if err != nil {
			return err
		}
		p = header(input, supplierName, date, totals)
		p.ID, p.InvoiceNo = old.ID, old.InvoiceNo
		p.CreatedBy, p.CreatedAt = old.CreatedBy, old.CreatedAt
		p.UpdatedAt = s.cfg.Clock().UTC()
		if err := tx.UpdatePurchase(ctx, p); err != nil {
			return fmt.Errorf("purchases: update purchase: %w", err)
		}
		if p.Items, err = tx.InsertPurchaseItems(ctx, id, items); err != nil {
			return fmt.Errorf("purchases: insert items: %w", err)
		}
		return s.apply(ctx, tx, p, ReasonEdited, input.Actor.Username)
	})
	if err != nil {
		return Purchase{}, err
	}
	s.committed(ctx, ledger.OpUpdate, p, input.Actor)
	return p, nil
}

// Delete reverses a purchase and removes it. Fails when stock received by the
// purchase has already been drawn down.
func (s *Service) Delete(ctx context.Context, id int64, actor ledger.Actor) error {
	var p Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.precheckReversal(ctx, tx, p, "cannot delete purchase"); err != nil {
			return err
		}
		if err := s.reverse(ctx, tx, p, ReasonDeleted, actor.Username); err != nil {
			return err
		}
		return tx.DeletePurchase(ctx, id)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, ledger.OpDelete, p, actor)
	return nil
}

// Get returns a purchase with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// List returns purchases newest first.
func (s *Service) List(ctx context.Context, page shared.Page) ([]Purchase, error) {
	return s.repo.ListPurchases(ctx, shared.NewPage(page.Offset, page.Limit))
}

// ============================================================================
// EFFECTS
// ============================================================================

// checkAffordability gates the payment against the locked register balance.
// Infrastructure failures inside the check roll back to a savepoint and let
// the purchase through without a warning. Serialization conflicts still fail
// the purchase.
func (s *Service) checkAffordability(ctx context.Context, tx TxRepository, paid decimal.Decimal, actor ledger.Actor) (string, error) {
	var result cash.Affordability
	err := tx.Savepoint(ctx, func(ctx context.Context, sp cash.Store) error {
		if err := sp.LockRegister(ctx); err != nil {
			return err
		}
		var err error
		result, err = s.register.ValidateAffordability(ctx, sp, paid, actor)
		return err
	})
	if err != nil {
		if db.IsConflict(err) {
			return "", fmt.Errorf("purchases: affordability: %w", err)
		}
		s.logger.Warn("cash affordability check skipped", slog.Any("error", err))
		return "", nil
	}
	if !result.Allowed {
		return "", &ledger.InsufficientCashError{Available: result.Balance, Required: paid}
	}
	return result.Warning, nil
}

// price resolves every line against product rows and snapshots the product's
// supplier onto the line.
func (s *Service) price(ctx context.Context, tx TxRepository, input Input) ([]Item, ledger.Totals, error) {
	items := make([]Item, 0, len(input.Items))
	subtotal := decimal.Zero
	for _, line := range input.Items {
		if line.UnitPrice.IsNegative() {
			return nil, ledger.Totals{}, ledger.Invalid("unit_price", "must not be negative")
		}
		product, err := tx.GetProductForUpdate(ctx, line.ProductID)
		if err != nil {
			return nil, ledger.Totals{}, err
		}
		productID := product.ID
		item := Item{
			ProductID:   &productID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   *line.UnitPrice,
			Total:       ledger.LineTotal(*line.UnitPrice, line.Quantity),
		}
		if product.SupplierID != nil {
			supplier, err := tx.GetSupplier(ctx, *product.SupplierID)
			switch {
			case err == nil:
				supplierID := supplier.ID
				item.SupplierID = &supplierID
				item.SupplierName = supplier.Name
			case !errors.Is(err, ledger.ErrNotFound):
				return nil, ledger.Totals{}, err
			}
		}
		subtotal = subtotal.Add(item.Total)
		items = append(items, item)
	}
	if err := ledger.ValidateMoney(subtotal, input.Discount, input.Paid); err != nil {
		return nil, ledger.Totals{}, err
	}
	return items, ledger.ComputeTotals(subtotal, input.Discount, input.Paid), nil
}

// precheckReversal verifies every line's stock can be taken back before any
// row is touched.
func (s *Service) precheckReversal(ctx context.Context, tx TxRepository, p Purchase, reason string) error {
	needed := make(map[int64]int64, len(p.Items))
	for _, item := range p.Items {
		if item.ProductID == nil {
			continue
		}
		product, err := tx.GetProductForUpdate(ctx, *item.ProductID)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		needed[product.ID] += item.Quantity
		if product.Quantity < needed[product.ID] {
			return &ledger.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Quantity,
				Requested:   needed[product.ID],
				Reason:      reason,
			}
		}
	}
	return nil
}

// apply receives stock for every line and credits the supplier.
func (s *Service) apply(ctx context.Context, tx TxRepository, p Purchase, reason, actor string) error {
	ref := p.ID
	for _, item := range p.Items {
		if item.ProductID == nil {
			continue
		}
		if _, err := s.recorder.Record(ctx, tx, inventory.RecordInput{
			ProductID:     *item.ProductID,
			Type:          inventory.MovementPurchase,
			Change:        item.Quantity,
			Reason:        reason,
			ReferenceType: Kind,
			ReferenceID:   &ref,
			Actor:         actor,
		}); err != nil {
			return err
		}
	}
	if p.SupplierID == nil {
		return nil
	}
	supplier, err := tx.GetSupplierForUpdate(ctx, *p.SupplierID)
	if err != nil {
		return err
	}
	return tx.UpdateSupplierTotals(ctx, supplier.ID,
		supplier.TotalPurchases.Add(p.Total),
		supplier.Balance.Add(p.Remaining))
}

// reverse takes back received stock and restores supplier figures. Lines
// whose product is gone and a deleted supplier are skipped.
func (s *Service) reverse(ctx context.Context, tx TxRepository, p Purchase, reason, actor string) error {
	ref := p.ID
	for _, item := range p.Items {
		if item.ProductID == nil {
			continue
		}
		if _, err := tx.GetProductForUpdate(ctx, *item.ProductID); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, inventory.RecordInput{
			ProductID:     *item.ProductID,
			Type:          inventory.MovementPurchaseReversal,
			Change:        -item.Quantity,
			Reason:        reason,
			ReferenceType: Kind,
			ReferenceID:   &ref,
			Actor:         actor,
		}); err != nil {
			return err
		}
	}
	if p.SupplierID == nil {
		return nil
	}
	supplier, err := tx.GetSupplierForUpdate(ctx, *p.SupplierID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	totalPurchases, balance := ledger.Reverse(supplier.TotalPurchases, supplier.Balance, p.Total, p.Remaining)
	return tx.UpdateSupplierTotals(ctx, supplier.ID, totalPurchases, balance)
}

func (s *Service) resolveSupplier(ctx context.Context, tx TxRepository, input Input) (string, error) {
	if input.SupplierID != nil {
		supplier, err := tx.GetSupplierForUpdate(ctx, *input.SupplierID)
		if err != nil {
			return "", err
		}
		return supplier.Name, nil
	}
	return strings.TrimSpace(input.SupplierName), nil
}

func header(input Input, supplierName string, date time.Time, totals ledger.Totals) Purchase {
	p := Purchase{
		SupplierID:   input.SupplierID,
		SupplierName: supplierName,
		PurchaseDate: date,
		Subtotal:     totals.Subtotal,
		Discount:     totals.Discount,
		Total:        totals.Total,
		Paid:         totals.Paid,
		Remaining:    totals.Remaining,
		Status:       totals.Status,
		Notes:        input.Notes,
	}
	if totals.Paid.IsPositive() && input.PaymentMethod != "" {
		method := input.PaymentMethod
		p.PaymentMethod = &method
	}
	return p
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}

func (s *Service) committed(ctx context.Context, op ledger.Operation, p Purchase, actor ledger.Actor) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor.Username,
			Action:   fmt.Sprintf("purchase:%s", op),
			Entity:   Kind,
			EntityID: strconv.FormatInt(p.ID, 10),
			Meta: map[string]any{
				"invoice_no": p.InvoiceNo,
				"total":      ledger.FormatAmount(p.Total),
				"paid":       ledger.FormatAmount(p.Paid),
				"lines":      len(p.Items),
			},
		})
	}
	if s.metrics != nil {
		s.metrics.DocumentCommitted(Kind, op)
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	s.logger.Info("purchase committed", slog.String("op", string(op)), slog.Int64("purchase_id", p.ID), slog.String("invoice_no", p.InvoiceNo))
}
