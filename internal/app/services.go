package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/storeledger/internal/audit"
	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/masterdata"
	"github.com/odyssey-erp/storeledger/internal/observability"
	"github.com/odyssey-erp/storeledger/internal/platform/lock"
	"github.com/odyssey-erp/storeledger/internal/purchases"
	"github.com/odyssey-erp/storeledger/internal/reports"
	"github.com/odyssey-erp/storeledger/internal/sales"
	"github.com/odyssey-erp/storeledger/internal/settings"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Services holds the domain services shared by the HTTP server, the worker
// and the command line.
type Services struct {
	Idempotency *shared.IdempotencyStore
	ReportCache *reports.Cache
	Inventory   *inventory.Service
	Cash        *cash.Service
	Sales       *sales.Service
	Purchases   *purchases.Service
	MasterData  *masterdata.Service
	Reports     *reports.Service
	Audit       *audit.Service
	Settings    *settings.Service
}

// BuildServices wires repositories and services. redisClient may be nil, in
// which case reports are computed on every request and invoice numbering is
// serialised by the database alone.
func BuildServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *Services {
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	locker := lock.New(redisClient, lock.Config{TTL: cfg.LockTTL})

	cashRepo := cash.NewRepository(pool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reports.NewRepository(pool), cashRepo, reportCache, metrics, logger)

	register := cash.NewRegister(cash.RegisterConfig{
		PrivilegedRole: cfg.PrivilegedRole,
		Logger:         logger,
		Failures:       metrics,
	})

	return &Services{
		Idempotency: idempotency,
		ReportCache: reportCache,
		Inventory:   inventory.NewService(inventory.NewRepository(pool), auditLogger, reportService, logger),
		Cash:        cash.NewService(cashRepo, register, auditLogger, reportService, logger),
		Sales: sales.NewService(sales.Dependencies{
			Repo:        sales.NewRepository(pool),
			Register:    register,
			Locker:      locker,
			Audit:       auditLogger,
			Idempotency: idempotency,
			Cache:       reportService,
			Metrics:     metrics,
			Logger:      logger,
		}, sales.Config{WalkInCustomer: cfg.WalkInCustomer, InvoiceWidth: cfg.InvoiceWidth}),
		Purchases: purchases.NewService(purchases.Dependencies{
			Repo:        purchases.NewRepository(pool),
			Register:    register,
			Locker:      locker,
			Audit:       auditLogger,
			Idempotency: idempotency,
			Cache:       reportService,
			Metrics:     metrics,
			Logger:      logger,
		}, purchases.Config{InvoiceWidth: cfg.InvoiceWidth}),
		MasterData: masterdata.NewService(masterdata.NewRepository(pool), auditLogger, reportService, logger),
		Reports:    reportService,
		Audit:      audit.NewService(audit.NewRepository(pool)),
		Settings:   settings.NewService(settings.NewRepository(pool), auditLogger, logger),
	}
}
