package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/recurpay/billing-gateway/internal/adapters/authnet"
	"github.com/recurpay/billing-gateway/internal/adapters/postgres"
	redisadapter "github.com/recurpay/billing-gateway/internal/adapters/redis"
	"github.com/recurpay/billing-gateway/internal/auth"
	"github.com/recurpay/billing-gateway/internal/config"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	cronhandler "github.com/recurpay/billing-gateway/internal/handlers/cron"
	paymenthandler "github.com/recurpay/billing-gateway/internal/handlers/payment"
	planhandler "github.com/recurpay/billing-gateway/internal/handlers/plan"
	subscriptionhandler "github.com/recurpay/billing-gateway/internal/handlers/subscription"
	webhookhandler "github.com/recurpay/billing-gateway/internal/handlers/webhook"
	"github.com/recurpay/billing-gateway/internal/middleware"
	"github.com/recurpay/billing-gateway/internal/scheduler"
	billingservice "github.com/recurpay/billing-gateway/internal/services/billing"
	paymentservice "github.com/recurpay/billing-gateway/internal/services/payment"
	planservice "github.com/recurpay/billing-gateway/internal/services/plan"
	serviceports "github.com/recurpay/billing-gateway/internal/services/ports"
	subscriptionservice "github.com/recurpay/billing-gateway/internal/services/subscription"
	webhookservice "github.com/recurpay/billing-gateway/internal/services/webhook"
	"github.com/recurpay/billing-gateway/pkg/observability"
	"github.com/recurpay/billing-gateway/pkg/shutdown"
)

// Exit codes: 1 for configuration problems, 2 for infrastructure that
// failed to come up (database, secrets, instrumentation).
const (
	exitConfig = 1
	exitInit   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	logger, err := observability.NewLogger(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialize logger: %v\n", err)
		return exitInit
	}
	defer logger.Sync()

	logger.Info("starting billing gateway",
		zap.String("environment", cfg.Server.Environment),
		zap.String("processor_environment", cfg.Processor.Environment),
		zap.String("port", cfg.Server.Port),
	)

	ctx := context.Background()

	dbPool, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("database initialization failed", zap.Error(err))
		return exitInit
	}
	defer dbPool.Close()
	logger.Info("database pool established",
		zap.Int32("max_conns", cfg.Database.MaxConns))

	redisClient, err := initRedis(ctx, cfg, logger)
	if err != nil {
		logger.Error("redis initialization failed", zap.Error(err))
		return exitInit
	}
	defer redisClient.Close()

	secretManager, err := initSecretManager(ctx, cfg, logger)
	if err != nil {
		logger.Error("secret manager initialization failed", zap.Error(err))
		return exitInit
	}

	secrets, err := loadSecrets(ctx, secretManager)
	if err != nil {
		logger.Error("secret retrieval failed", zap.Error(err))
		return exitInit
	}

	deps := buildDependencies(cfg, dbPool, redisClient, secrets, logger)

	healthChecker := observability.NewHealthChecker(dbPool, redisClient)
	router := buildRouter(cfg, deps, healthChecker)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsServer := observability.StartMetricsServer(cfg.Server.MetricsPort, healthChecker, logger)

	sched := scheduler.New(logger, 3)
	if err := registerTasks(sched, cfg, deps, logger); err != nil {
		logger.Error("scheduler registration failed", zap.Error(err))
		return exitInit
	}
	if err := sched.Start(); err != nil {
		logger.Error("scheduler start failed", zap.Error(err))
		return exitInit
	}

	// LIFO: the API server stops taking requests first, then background
	// sweeps drain, then the metrics listener, then storage.
	manager := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	manager.RegisterNoErr("database-pool", dbPool.Close)
	manager.RegisterCloser("redis-client", redisClient)
	manager.RegisterNoErr("ip-burst-limiter", deps.ipBurst.Shutdown)
	manager.Register("metrics-server", func(ctx context.Context) error {
		return metricsServer.Shutdown(ctx)
	})
	manager.Register("scheduler", sched.Stop)
	manager.RegisterHTTPServer("http-server", httpServer)

	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	manager.WaitForShutdown()
	logger.Info("billing gateway stopped")
	return 0
}

// initRedis connects the rate-limiter backend. An unreachable server is
// only a warning: admission checks fail open until it recovers.
func initRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, rate limiting will fail open until it recovers",
			zap.Error(err))
	}
	return client, nil
}

// secretSet holds every secret the process needs, fetched once at boot
type secretSet struct {
	processorLoginID string
	processorTxnKey  string
	inboundHMAC      string
	outboundHMAC     string
	jwtSigning       string
	cron             string
}

func loadSecrets(ctx context.Context, sm ports.SecretManagerAdapter) (*secretSet, error) {
	fetch := func(path string) (string, error) {
		s, err := sm.GetSecret(ctx, path)
		if err != nil {
			return "", fmt.Errorf("get secret %s: %w", path, err)
		}
		return s.Value, nil
	}

	var set secretSet
	var err error
	if set.processorLoginID, err = fetch(ports.SecretProcessorAPILoginID); err != nil {
		return nil, err
	}
	if set.processorTxnKey, err = fetch(ports.SecretProcessorTransactionKey); err != nil {
		return nil, err
	}
	if set.inboundHMAC, err = fetch(ports.SecretWebhookInboundHMAC); err != nil {
		return nil, err
	}
	if set.outboundHMAC, err = fetch(ports.SecretWebhookOutboundHMAC); err != nil {
		return nil, err
	}
	if set.jwtSigning, err = fetch(ports.SecretJWTSigning); err != nil {
		return nil, err
	}
	if set.cron, err = fetch(ports.SecretCron); err != nil {
		return nil, err
	}
	return &set, nil
}

// dependencies holds the wired services and handlers
type dependencies struct {
	payments      serviceports.PaymentService
	subscriptions serviceports.SubscriptionService
	billing       serviceports.BillingService
	plans         serviceports.PlanService
	inbound       serviceports.WebhookInboundService
	outbound      serviceports.WebhookOutboundService

	paymentHandler      *paymenthandler.Handler
	subscriptionHandler *subscriptionhandler.Handler
	planHandler         *planhandler.Handler
	webhookHandler      *webhookhandler.Handler
	cronHandler         *cronhandler.Handler

	authenticator *middleware.Authenticator
	rateLimit     *middleware.RateLimit
	ipBurst       *middleware.IPBurst
}

// buildDependencies wires adapters into services and services into
// handlers. Construction only; nothing here touches the network.
func buildDependencies(cfg *config.Config, dbPool *pgxpool.Pool, redisClient *goredis.Client, secrets *secretSet, logger *zap.Logger) *dependencies {
	log := observability.NewZapLogger(logger)

	db := postgres.NewDBExecutor(dbPool)
	transactions := postgres.NewTransactionRepository(db)
	orders := postgres.NewOrderRepository(db)
	customers := postgres.NewCustomerRepository(db)
	paymentMethods := postgres.NewPaymentMethodRepository(db)
	subscriptions := postgres.NewSubscriptionRepository(db)
	plans := postgres.NewPlanRepository(db)
	invoices := postgres.NewInvoiceRepository(db)
	credits := postgres.NewCreditRepository(db)
	webhooks := postgres.NewWebhookRepository(db)
	apiKeys := postgres.NewAPIKeyRepository(db)
	auditLogs := postgres.NewAuditLogRepository(db)
	idempotency := postgres.NewIdempotencyStore(db)

	gateway := authnet.NewGateway(authnet.Config{
		APILoginID:     secrets.processorLoginID,
		TransactionKey: secrets.processorTxnKey,
		Environment:    cfg.Processor.Environment,
	}, &http.Client{Timeout: 30 * time.Second}, log)

	publisher := webhookservice.NewPublisher(webhooks, log, webhookservice.DefaultPublisherConfig())

	paymentSvc := paymentservice.NewService(
		db, transactions, orders, customers, paymentMethods, idempotency, gateway, publisher, log)

	subscriptionSvc := subscriptionservice.NewService(
		db, subscriptions, plans, invoices, credits, customers, paymentMethods,
		idempotency, auditLogs, gateway, publisher, log,
		subscriptionservice.Config{GracePeriodDays: cfg.Billing.GracePeriodDays})

	billingSvc := billingservice.NewService(
		db, subscriptions, invoices, plans, credits, paymentSvc, log,
		billingservice.Config{
			RetryDelayDays:   cfg.Billing.RetryDelayDays,
			MaxRetryAttempts: cfg.Billing.MaxRetryAttempts,
			GracePeriodDays:  cfg.Billing.GracePeriodDays,
			SweepBatch:       cfg.Billing.SweepBatch,
		})

	planSvc := planservice.NewService(db, plans, log)

	inboundSvc := webhookservice.NewInboundService(db, webhooks, transactions, publisher, log,
		webhookservice.InboundConfig{
			SigningSecret:   secrets.inboundHMAC,
			DuplicateWindow: cfg.Webhook.DuplicateWindow,
		})

	outboundSvc := webhookservice.NewOutboundService(webhooks,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		webhookservice.NewBreakerRegistry(webhookservice.DefaultCircuitBreakerConfig()),
		log,
		webhookservice.OutboundConfig{
			SigningSecret: secrets.outboundHMAC,
			Timeout:       cfg.Webhook.Timeout,
			InitialDelay:  cfg.Webhook.RetryInitialDelay,
			Multiplier:    cfg.Webhook.RetryMultiplier,
			MaxDelay:      cfg.Webhook.RetryMaxDelay,
			Jitter:        cfg.Webhook.RetryJitter,
			Concurrency:   cfg.Webhook.Concurrency,
			SweepBatch:    cfg.Webhook.SweepBatch,
		})

	verifier := auth.NewTokenVerifier([]byte(secrets.jwtSigning), cfg.JWT.Issuer)
	keychain := auth.NewKeychain(apiKeys, log)
	limiter := redisadapter.NewRateLimiter(redisClient, log)

	return &dependencies{
		payments:      paymentSvc,
		subscriptions: subscriptionSvc,
		billing:       billingSvc,
		plans:         planSvc,
		inbound:       inboundSvc,
		outbound:      outboundSvc,

		paymentHandler:      paymenthandler.NewHandler(paymentSvc, paymentSvc, log),
		subscriptionHandler: subscriptionhandler.NewHandler(subscriptionSvc, log),
		planHandler:         planhandler.NewHandler(planSvc, log),
		webhookHandler:      webhookhandler.NewHandler(inboundSvc, log),
		cronHandler: cronhandler.NewHandler(billingSvc, outboundSvc, paymentSvc,
			cronhandler.Retention{
				Delivered: cfg.Webhook.DeliveredRetention,
				Failed:    cfg.Webhook.FailedRetention,
			}, secrets.cron, log),

		authenticator: middleware.NewAuthenticator(verifier, keychain, log),
		rateLimit:     middleware.NewRateLimit(limiter, cfg.RateLimit.PerHour, cfg.RateLimit.Burst, log),
		ipBurst:       middleware.NewIPBurst(cfg.RateLimit.IPPerSecond, cfg.RateLimit.IPBurst, log),
	}
}

// buildRouter mounts three surfaces: the authenticated API under
// /api/v1, the signature-verified processor webhook, and the
// shared-secret cron endpoints.
func buildRouter(cfg *config.Config, deps *dependencies, healthChecker *observability.HealthChecker) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestContext)
	router.Use(observability.HTTPMetrics)
	router.Use(middleware.NewSecurityHeaders(cfg.Logger.Development).Middleware)
	router.Use(deps.ipBurst.Middleware)

	router.HandleFunc("/health", healthChecker.HealthHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(deps.authenticator.Middleware)
	api.Use(deps.rateLimit.Middleware)
	deps.paymentHandler.RegisterRoutes(api)
	deps.subscriptionHandler.RegisterRoutes(api)
	deps.planHandler.RegisterRoutes(api)

	// Inbound webhooks authenticate with the HMAC signature on the
	// body, not a bearer token.
	deps.webhookHandler.RegisterRoutes(router)

	deps.cronHandler.RegisterRoutes(router)

	return router
}

// registerTasks wires the background cadences. The same sweeps are
// reachable through /cron/* for external schedulers; the in-process
// scheduler is the default deployment mode.
func registerTasks(sched *scheduler.Scheduler, cfg *config.Config, deps *dependencies, logger *zap.Logger) error {
	sweep := func(name string, run func(ctx context.Context, now time.Time) (*serviceports.SweepReport, error)) func(context.Context, time.Time, int32) error {
		return func(ctx context.Context, now time.Time, _ int32) error {
			report, err := run(ctx, now)
			if err != nil {
				return err
			}
			logger.Info("billing sweep finished",
				zap.String("task", name),
				zap.Int("processed", report.Processed),
				zap.Int("succeeded", report.Succeeded),
				zap.Int("failed", report.Failed))
			return nil
		}
	}

	tasks := []scheduler.Task{
		{
			Name:    "process_due_billing",
			Every:   time.Hour,
			Timeout: 15 * time.Minute,
			Run:     sweep("process_due_billing", deps.billing.ProcessDueBilling),
		},
		{
			Name:    "retry_failed_payments",
			At:      scheduler.At(9, 0),
			Timeout: 15 * time.Minute,
			Run:     sweep("retry_failed_payments", deps.billing.RetryFailedPayments),
		},
		{
			Name:    "subscription_lifecycle",
			At:      scheduler.At(6, 0),
			Timeout: 10 * time.Minute,
			Run:     sweep("subscription_lifecycle", deps.billing.RunLifecycle),
		},
		{
			Name:  "deliver_webhooks",
			Every: 5 * time.Minute,
			Run: func(ctx context.Context, now time.Time, _ int32) error {
				report, err := deps.outbound.DeliverDue(ctx, now)
				if err != nil {
					return err
				}
				if report.Picked > 0 {
					logger.Info("webhook delivery pass finished",
						zap.Int("picked", report.Picked),
						zap.Int("delivered", report.Delivered),
						zap.Int("retried", report.Retried),
						zap.Int("failed", report.Failed),
						zap.Int("skipped", report.Skipped))
				}
				return nil
			},
		},
		{
			Name: "cleanup_webhooks",
			At:   scheduler.At(2, 0),
			Run: func(ctx context.Context, now time.Time, _ int32) error {
				deleted, err := deps.outbound.Cleanup(ctx,
					now.Add(-cfg.Webhook.DeliveredRetention),
					now.Add(-cfg.Webhook.FailedRetention))
				if err != nil {
					return err
				}
				if deleted > 0 {
					logger.Info("webhook ledger pruned", zap.Int64("deleted", deleted))
				}
				return nil
			},
		},
		{
			Name: "prune_audit_logs",
			At:   scheduler.At(3, 0),
			Run: func(ctx context.Context, now time.Time, _ int32) error {
				deleted, err := deps.subscriptions.PruneAuditLogs(ctx, cfg.Audit.Retention)
				if err != nil {
					return err
				}
				if deleted > 0 {
					logger.Info("audit trail pruned", zap.Int64("deleted", deleted))
				}
				return nil
			},
		},
		{
			Name:  "reconcile_pending",
			Every: 15 * time.Minute,
			Bound: 100,
			Run: func(ctx context.Context, now time.Time, bound int32) error {
				report, err := deps.payments.ReconcilePending(ctx, 30*time.Minute, bound)
				if err != nil {
					return err
				}
				if report.Scanned > 0 {
					logger.Info("pending transactions reconciled",
						zap.Int("scanned", report.Scanned),
						zap.Int("settled", report.Settled),
						zap.Int("failed", report.Failed),
						zap.Int("unresolved", report.Unresolved))
				}
				return nil
			},
		},
	}

	for _, task := range tasks {
		if err := sched.Register(task); err != nil {
			return err
		}
	}
	return nil
}
