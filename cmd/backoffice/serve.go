package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/audit"
	audithttp "github.com/odyssey-erp/backoffice/internal/audit/http"
	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/bom"
	"github.com/odyssey-erp/backoffice/internal/budget"
	"github.com/odyssey-erp/backoffice/internal/forecast"
	"github.com/odyssey-erp/backoffice/internal/grn"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/periods"
	periodshttp "github.com/odyssey-erp/backoffice/internal/periods/http"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/products"
	"github.com/odyssey-erp/backoffice/internal/purchases"
	"github.com/odyssey-erp/backoffice/internal/qc"
	"github.com/odyssey-erp/backoffice/internal/tenants"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/jobs"
	"github.com/odyssey-erp/backoffice/migrations"
)

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		migrator, err := db.NewMigrator(cfg.PGDSN, migrations.FS, logger)
		if err != nil {
			return err
		}
		err = migrator.Up()
		_ = migrator.Close()
		if err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Redis backs the audit queue and the period guard cache; without it the
	// server still runs, writing audit entries directly and skipping the cache.
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	var sink audit.Sink = audit.NewStoreSink(auditRepo)
	var inspector *asynq.Inspector
	if redisClient != nil && cfg.AuditQueueEnabled {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		queueClient := asynq.NewClient(redisOpt)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		sink = audit.NewQueueSink(queueClient)
		inspector = asynq.NewInspector(redisOpt)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}
	recorder := audit.NewRecorder(sink, logger,
		audit.WithTimeout(cfg.AuditEnqueueTimeout),
		audit.WithDropCounter(metrics.AuditDropped()),
	)

	periodsRepo := periods.NewRepository(pool)
	var guardCache *cache.Versioned
	if redisClient != nil {
		guardCache = cache.NewVersioned(redisClient, "periods", cfg.PeriodCacheTTL)
	}
	guard := periods.NewGuard(periodsRepo, guardCache, logger)
	periodsService := periods.NewService(periodsRepo, guard, recorder)

	tenantsService := tenants.NewService(tenants.NewRepository(pool), recorder)
	usersService := users.NewService(users.NewRepository(pool), tenantsService, recorder)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	productsService := products.NewService(products.NewRepository(pool), recorder)
	purchasesService := purchases.NewService(purchases.NewRepository(pool), guard, recorder)
	ordersService := orders.NewService(orders.NewRepository(pool), guard, recorder)
	grnService := grn.NewService(grn.NewRepository(pool), guard, recorder)
	bomService := bom.NewService(bom.NewRepository(pool), productsService, recorder)
	budgetService := budget.NewService(budget.NewRepository(pool), recorder)
	forecastService := forecast.NewService(forecast.NewRepository(pool), productsService, recorder)
	qcService := qc.NewService(qc.NewRepository(pool), productsService, recorder)

	var jobHandler *jobs.Handler
	if inspector != nil {
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		Tokens:           issuer,
		AuthHandler:      auth.NewHandler(logger, usersService, issuer),
		PeriodsHandler:   periodshttp.NewHandler(logger, periodsService),
		AuditHandler:     audithttp.NewHandler(logger, auditService, recorder, cfg.AuditRetentionDays),
		TenantsHandler:   tenants.NewHandler(logger, tenantsService),
		UsersHandler:     users.NewHandler(logger, usersService),
		PurchasesHandler: purchases.NewHandler(logger, purchasesService),
		OrdersHandler:    orders.NewHandler(logger, ordersService),
		ProductsHandler:  products.NewHandler(logger, productsService),
		BOMHandler:       bom.NewHandler(logger, bomService),
		BudgetHandler:    budget.NewHandler(logger, budgetService),
		ForecastHandler:  forecast.NewHandler(logger, forecastService),
		GRNHandler:       grn.NewHandler(logger, grnService),
		QCHandler:        qc.NewHandler(logger, qcService),
		JobHandler:       jobHandler,
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
