package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"growthdesk_backend/internal/adapters"
	"growthdesk_backend/internal/capture"
	"growthdesk_backend/internal/delivery"
	"growthdesk_backend/internal/events"
	apphttp "growthdesk_backend/internal/http"
	"growthdesk_backend/internal/http/router"
	"growthdesk_backend/internal/leads"
	"growthdesk_backend/internal/notification"
	"growthdesk_backend/internal/nurture"
	"growthdesk_backend/internal/nurture/catalog"
	"growthdesk_backend/internal/practice"
	"growthdesk_backend/internal/staff"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/db"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	staffModule := staff.NewModule(pool, val, log)
	practiceModule := practice.NewModule(pool, val, log)

	// The roster adapter serves both sides of assignment: candidates in,
	// ownership counters out.
	roster := adapters.NewStaffRoster(staffModule.Service())
	leadsModule := leads.NewModule(pool, eventBus, val, roster, roster, log)

	nurtureModule, err := nurture.NewModule(
		pool,
		leadsModule.Repository(),
		adapters.NewPracticeDirectory(practiceModule.Service()),
		adapters.NewPracticeClock(practiceModule.Service()),
		eventBus,
		log,
	)
	if err != nil {
		log.Error("failed to initialize nurture module", "error", err)
		panic("failed to initialize nurture module: " + err.Error())
	}

	// Leads → nurture wiring goes through the ports bridge so neither
	// module imports the other.
	bridge := adapters.NewNurtureBridge(nurtureModule.Service())
	leadsModule.SetNurtureStarter(bridge)
	leadsModule.SetNurtureCanceler(bridge)
	leadsModule.SetEngagementRecorder(bridge)

	nurtureModule.Service().RegisterSender(catalog.ChannelEmail, delivery.NewEmailSender(cfg, log))
	if sms := delivery.NewSMSSender(cfg, log); sms != nil {
		nurtureModule.Service().RegisterSender(catalog.ChannelSMS, sms)
	} else {
		log.Warn("SMS_GATEWAY_URL not configured; sms nurture steps will fail delivery")
	}

	captureModule := capture.NewModule(pool, leadsModule.IntakeService(), val, log)

	notificationModule := notification.NewModule(pool, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			staffModule,
			practiceModule,
			leadsModule,
			nurtureModule,
			captureModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
