package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-booking/cmd/mainconfig"
	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/booking"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/dashboard"
	"github.com/wolfman30/clinic-booking/internal/events"
	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if cfg.SchedulingWebhookSecret == "" {
		logger.Warn("SCHEDULING_WEBHOOK_SECRET not set; every webhook delivery will be rejected")
	}

	ctx := context.Background()
	pool, sqlDB, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	defer sqlDB.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	awsCfg := loadAWS(ctx, cfg, logger)
	metricsHandler, m := setupMetrics()

	// Repositories and services
	profiles := users.NewRepository(pool)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Sender:   bootstrap.BuildEmailSender(cfg, awsCfg, logger),
		Contacts: profiles,
		Location: cfg.Location(),
		Metrics:  m.notifications,
		Logger:   logger,
	})
	apptService := appointments.NewService(appointments.NewRepository(pool), appointments.ServiceConfig{
		Notifier:           dispatcher,
		Metrics:            m.appointments,
		CancellationNotice: cfg.CancellationNotice,
		Logger:             logger,
	})
	ledger := events.NewProcessedStore(pool)
	processor := booking.NewProcessor(
		booking.NewVerifier(cfg.SchedulingWebhookSecret),
		booking.NewNormalizer(profiles, nil, nil),
		apptService,
		booking.ProcessorConfig{
			Ledger:  ledger,
			Guard:   events.NewDeliveryGuard(redisClient, cfg.WebhookLockTTL),
			Metrics: m.webhooks,
			Logger:  logger,
		},
	)
	coordinator := bootstrap.BuildCoordinator(cfg, bootstrap.CoordinatorDeps{
		Pool:     pool,
		Profiles: profiles,
		AWS:      awsCfg,
		Metrics:  m.cascade,
		Logger:   logger,
	})

	// Setup router
	webhookLimiter := httpmiddleware.NewRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookBurst)
	r := router.New(&router.Config{
		Logger:             logger,
		SchedulingWebhook:  handlers.NewSchedulingWebhookHandler(processor, logger),
		AdminUsers:         handlers.NewAdminUsersHandler(coordinator, logger),
		AdminDashboard:     handlers.NewAdminDashboardHandler(dashboard.NewAggregator(sqlDB), logger),
		Appointments:       handlers.NewAppointmentsHandler(apptService, profiles, booking.DefaultCatalog, logger),
		WebhookLimiter:     webhookLimiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthSecret:         cfg.AdminJWTSecret,
		CognitoUserPoolID:  cfg.CognitoUserPoolID,
		CognitoClientID:    cfg.CognitoAppClientID,
		CognitoRegion:      cfg.AWSRegion,
		Ping:               pool.Ping,
	})

	maintCtx, stopMaintenance := context.WithCancel(ctx)
	defer stopMaintenance()
	go runMaintenance(maintCtx, maintenance{
		limiter:   webhookLimiter,
		ledger:    ledger,
		retention: cfg.WebhookLedgerRetention,
		interval:  5 * time.Minute,
		logger:    logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// loadAWS returns nil when the SDK config cannot be built; S3, SES and Cognito
// features then stay disabled.
func loadAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if cfg.MediaBucket == "" && cfg.CognitoUserPoolID == "" && cfg.EmailProvider != "ses" {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Warn("failed to load AWS config, AWS-backed features disabled", "error", err)
		return nil
	}
	return &awsCfg
}

type ledgerPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type maintenance struct {
	limiter   *httpmiddleware.RateLimiter
	ledger    ledgerPruner
	retention time.Duration
	interval  time.Duration
	logger    *logging.Logger
}

// runMaintenance evicts idle rate-limit buckets and prunes old ledger rows until ctx ends.
func runMaintenance(ctx context.Context, m maintenance) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.limiter.Evict(10 * time.Minute)
			if m.ledger == nil || m.retention <= 0 {
				continue
			}
			n, err := m.ledger.Prune(ctx, now.Add(-m.retention))
			if err != nil {
				m.logger.Warn("failed to prune webhook ledger", "error", err)
			} else if n > 0 {
				m.logger.Info("pruned webhook ledger", "rows", n)
			}
		}
	}
}
