package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/storeledger/cmd/storeledger/cli"
	"github.com/odyssey-erp/storeledger/internal/app"
	"github.com/odyssey-erp/storeledger/internal/audit"
	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/masterdata"
	"github.com/odyssey-erp/storeledger/internal/observability"
	"github.com/odyssey-erp/storeledger/internal/platform/cache"
	"github.com/odyssey-erp/storeledger/internal/platform/db"
	"github.com/odyssey-erp/storeledger/internal/purchases"
	"github.com/odyssey-erp/storeledger/internal/reports"
	"github.com/odyssey-erp/storeledger/internal/sales"
	"github.com/odyssey-erp/storeledger/internal/settings"
	"github.com/odyssey-erp/storeledger/jobs"
)

const usage = `usage: storeledger <command> [flags]

commands:
  serve                 run the HTTP API (default)
  migrate               apply database migrations
  check [-json]         verify stock movements and the cash chain
  jobs trigger <name>   enqueue a background job
  jobs stats            show queue depth
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "check":
		os.Exit(check(ctx, cfg, logger, args))
	case "jobs":
		err = jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*pgxpool.Pool, *redis.Client, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, running without cache and locks", slog.Any("error", err))
		redisClient = nil
	}
	return pool, redisClient, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, redisClient, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services := app.BuildServices(cfg, pool, redisClient, metrics, logger)
	if err := services.ReportCache.ListenForInvalidation(ctx, reports.BumpChannel); err != nil {
		logger.Warn("report cache invalidation listener", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Database:          pool,
		InventoryHandler:  inventory.NewHandler(logger, services.Inventory),
		CashHandler:       cash.NewHandler(logger, services.Cash),
		SalesHandler:      sales.NewHandler(logger, services.Sales),
		PurchasesHandler:  purchases.NewHandler(logger, services.Purchases),
		MasterDataHandler: masterdata.NewHandler(logger, services.MasterData),
		ReportsHandler:    reports.NewHandler(logger, services.Reports),
		AuditHandler:      audit.NewHandler(logger, services.Audit),
		SettingsHandler:   settings.NewHandler(logger, services.Settings),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Any("files", applied))
	return nil
}

func check(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return cli.ExitFailure
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check: %v\n", err)
		return cli.ExitFailure
	}
	defer pool.Close()

	services := app.BuildServices(cfg, pool, nil, nil, logger)
	integrity := cli.NewIntegrityCLI(services.Inventory, services.Cash)
	return integrity.CheckCommand(ctx, cli.CheckOptions{JSONOutput: *jsonOutput})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("jobs: expected trigger <name> or stats")
	}
	helper, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = helper.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: name required (%s, %s, %s)", jobs.TaskLedgerIntegrity, jobs.TaskLowStockScan, jobs.TaskIdempotencyCleanup)
		}
		info, err := helper.Trigger(ctx, args[1])
		if errors.Is(err, asynq.ErrDuplicateTask) {
			fmt.Printf("%s already queued in the last minute\n", args[1])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := helper.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		return fmt.Errorf("jobs: unknown subcommand %s", args[0])
	}
	return nil
}
