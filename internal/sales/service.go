package sales

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
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// DefaultWalkInCustomer names sales made without a customer record.
const DefaultWalkInCustomer = "Cash customer"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, page shared.Page) ([]Sale, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	inventory.StockStore
	cash.Store

	// ClaimInvoiceSequence increments the per-kind counter and returns the
	// number of invoices issued before this claim.
	ClaimInvoiceSequence(ctx context.Context, kind string) (int64, error)
	GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error)
	UpdateCustomerTotals(ctx context.Context, id int64, totalPurchases, balance decimal.Decimal) error

	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleItems(ctx context.Context, saleID int64, items []Item) ([]Item, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	UpdateSale(ctx context.Context, sale Sale) error
	DeleteSaleItems(ctx context.Context, saleID int64) error
	DeleteSale(ctx context.Context, id int64) error
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
	WalkInCustomer string
	InvoiceWidth   int
	Clock          func() time.Time
}

// Service runs sale create, update and delete as single atomic units.
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
	if cfg.WalkInCustomer == "" {
		cfg.WalkInCustomer = DefaultWalkInCustomer
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

// Create records a sale, draws stock, charges the customer and posts the
// payment to the cash register. The cash post is best-effort.
func (s *Service) Create(ctx context.Context, input Input) (Sale, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Sale{}, err
	}
	date, err := ledger.DocumentDate(input.SaleDate, s.cfg.Clock())
	if err != nil {
		return Sale{}, err
	}
	key, err := shared.NormalizeIdempotencyKey(input.IdempotencyKey)
	if err != nil {
		return Sale{}, ledger.Invalid("idempotency_key", err.Error())
	}
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, Kind); err != nil {
			return Sale{}, err
		}
	}

	var sale Sale
	err = s.withLock(ctx, shared.InvoiceLockKey(Kind), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			customerName, err := s.resolveCustomer(ctx, tx, input)
			if err != nil {
				return err
			}
			items, totals, err := s.price(ctx, tx, input)
			if err != nil {
				return err
			}
			issued, err := tx.ClaimInvoiceSequence(ctx, Kind)
			if err != nil {
				return fmt.Errorf("sales: claim invoice number: %w", err)
			}
			now := s.cfg.Clock().UTC()
			sale = header(input, customerName, date, totals)
			sale.InvoiceNo = ledger.NextInvoiceNumber(ledger.PrefixSaleInvoice, issued, s.cfg.InvoiceWidth)
			sale.CreatedBy = input.Actor.Username
			sale.CreatedAt, sale.UpdatedAt = now, now
			if sale.ID, err = tx.InsertSale(ctx, sale); err != nil {
				return fmt.Errorf("sales: insert sale: %w", err)
			}
			if sale.Items, err = tx.InsertSaleItems(ctx, sale.ID, items); err != nil {
				return fmt.Errorf("sales: insert items: %w", err)
			}
			if err := s.apply(ctx, tx, sale, ReasonCreated, input.Actor.Username); err != nil {
				return err
			}
			if sale.Paid.IsPositive() {
				id := sale.ID
				if _, err := s.register.PostBestEffort(ctx, tx, cash.PostInput{
					Type:          cash.TypeSaleIncome,
					Amount:        sale.Paid,
					ReferenceType: cash.ReferenceSale,
					ReferenceID:   &id,
					Description:   fmt.Sprintf("Sale - invoice %s", sale.InvoiceNo),
					Actor:         input.Actor.Username,
				}); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, key, Kind); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Sale{}, err
	}
	s.committed(ctx, ledger.OpCreate, sale, input.Actor)
	return sale, nil
}

// Update replaces a sale by reversing every effect of the stored version and
// applying the new one. Cash already posted for the old version is left as is.
func (s *Service) Update(ctx context.Context, id int64, input Input) (Sale, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Sale{}, err
	}
	date, err := ledger.DocumentDate(input.SaleDate, s.cfg.Clock())
	if err != nil {
		return Sale{}, err
	}
	var sale Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		old, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		customerName, err := s.resolveCustomer(ctx, tx, input)
		if err != nil {
			return err
		}
		if err := s.reverse(ctx, tx, old, ReasonEdited, input.Actor.Username); err != nil {
			return err
		}
		if err := tx.DeleteSaleItems(ctx, id); err != nil {
			return fmt.Errorf("sales: delete items: %w", err)
		}
		items, totals, err := s.price(ctx, tx, input)
		if err != nil {
			return err
		}
		sale = header(input, customerName, date, totals)
		sale.ID, sale.InvoiceNo = old.ID, old.InvoiceNo
		sale.CreatedBy, sale.CreatedAt = old.CreatedBy, old.CreatedAt
		sale.UpdatedAt = s.cfg.Clock().UTC()
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return fmt.Errorf("sales: update sale: %w", err)
		}
		if sale.Items, err = tx.InsertSaleItems(ctx, id, items); err != nil {
			return fmt.Errorf("sales: insert items: %w", err)
		}
		return s.apply(ctx, tx, sale, ReasonEdited, input.Actor.Username)
	})
	if err != nil {
		return Sale{}, err
	}
	s.committed(ctx, ledger.OpUpdate, sale, input.Actor)
	return sale, nil
}

// Delete reverses a sale and removes it. Movements and cash rows stay.
func (s *Service) Delete(ctx context.Context, id int64, actor ledger.Actor) error {
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.reverse(ctx, tx, sale, ReasonDeleted, actor.Username); err != nil {
			return err
		}
		return tx.DeleteSale(ctx, id)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, ledger.OpDelete, sale, actor)
	return nil
}

// Get returns a sale with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// List returns sales newest first.
func (s *Service) List(ctx context.Context, page shared.Page) ([]Sale, error) {
	return s.repo.ListSales(ctx, shared.NewPage(page.Offset, page.Limit))
}

// ============================================================================
// EFFECTS
// ============================================================================

// price resolves every line against locked product rows and checks stock.
// Quantities of repeated products are summed before the check.
func (s *Service) price(ctx context.Context, tx TxRepository, input Input) ([]Item, ledger.Totals, error) {
	items := make([]Item, 0, len(input.Items))
	requested := make(map[int64]int64, len(input.Items))
	subtotal := decimal.Zero
	for _, line := range input.Items {
		product, err := tx.GetProductForUpdate(ctx, line.ProductID)
		if err != nil {
			return nil, ledger.Totals{}, err
		}
		requested[product.ID] += line.Quantity
		if product.Quantity < requested[product.ID] {
			return nil, ledger.Totals{}, &ledger.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Quantity,
				Requested:   requested[product.ID],
			}
		}
		unitPrice := product.SalePrice
		if line.UnitPrice != nil {
			if line.UnitPrice.IsNegative() {
				return nil, ledger.Totals{}, ledger.Invalid("unit_price", "must not be negative")
			}
			unitPrice = *line.UnitPrice
		}
		productID := product.ID
		total := ledger.LineTotal(unitPrice, line.Quantity)
		subtotal = subtotal.Add(total)
		items = append(items, Item{
			ProductID:   &productID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			Total:       total,
		})
	}
	if err := ledger.ValidateMoney(subtotal, input.Discount, input.Paid); err != nil {
		return nil, ledger.Totals{}, err
	}
	return items, ledger.ComputeTotals(subtotal, input.Discount, input.Paid), nil
}

// apply draws stock for every line and charges the customer.
func (s *Service) apply(ctx context.Context, tx TxRepository, sale Sale, reason, actor string) error {
	ref := sale.ID
	for _, item := range sale.Items {
		if item.ProductID == nil {
			continue
		}
		if _, err := s.recorder.Record(ctx, tx, inventory.RecordInput{
			ProductID:     *item.ProductID,
			Type:          inventory.MovementSale,
			Change:        -item.Quantity,
			Reason:        reason,
			ReferenceType: Kind,
			ReferenceID:   &ref,
			Actor:         actor,
		}); err != nil {
			return err
		}
	}
	if sale.CustomerID == nil {
		return nil
	}
	customer, err := tx.GetCustomerForUpdate(ctx, *sale.CustomerID)
	if err != nil {
		return err
	}
	return tx.UpdateCustomerTotals(ctx, customer.ID,
		customer.TotalPurchases.Add(sale.Total),
		customer.Balance.Add(sale.Remaining))
}

// reverse restores stock and customer figures for a stored sale. Lines whose
// product is gone and a deleted customer are skipped.
func (s *Service) reverse(ctx context.Context, tx TxRepository, sale Sale, reason, actor string) error {
	ref := sale.ID
	for _, item := range sale.Items {
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
			Type:          inventory.MovementSaleReversal,
			Change:        item.Quantity,
			Reason:        reason,
			ReferenceType: Kind,
			ReferenceID:   &ref,
			Actor:         actor,
		}); err != nil {
			return err
		}
	}
	if sale.CustomerID == nil {
		return nil
	}
	customer, err := tx.GetCustomerForUpdate(ctx, *sale.CustomerID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	totalPurchases, balance := ledger.Reverse(customer.TotalPurchases, customer.Balance, sale.Total, sale.Remaining)
	return tx.UpdateCustomerTotals(ctx, customer.ID, totalPurchases, balance)
}

// resolveCustomer returns the name snapshot for the header.
func (s *Service) resolveCustomer(ctx context.Context, tx TxRepository, input Input) (string, error) {
	if input.CustomerID != nil {
		customer, err := tx.GetCustomerForUpdate(ctx, *input.CustomerID)
		if err != nil {
			return "", err
		}
		return customer.Name, nil
	}
	if name := strings.TrimSpace(input.CustomerName); name != "" {
		return name, nil
	}
	return s.cfg.WalkInCustomer, nil
}

func header(input Input, customerName string, date time.Time, totals ledger.Totals) Sale {
	sale := Sale{
		CustomerID:   input.CustomerID,
		CustomerName: customerName,
		SaleDate:     date,
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
		sale.PaymentMethod = &method
	}
	return sale
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}

func (s *Service) committed(ctx context.Context, op ledger.Operation, sale Sale, actor ledger.Actor) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor.Username,
			Action:   fmt.Sprintf("sale:%s", op),
			Entity:   Kind,
			EntityID: strconv.FormatInt(sale.ID, 10),
			Meta: map[string]any{
				"invoice_no": sale.InvoiceNo,
				"total":      ledger.FormatAmount(sale.Total),
				"paid":       ledger.FormatAmount(sale.Paid),
				"lines":      len(sale.Items),
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
	s.logger.Info("sale committed", slog.String("op", string(op)), slog.Int64("sale_id", sale.ID), slog.String("invoice_no", sale.InvoiceNo))
}
