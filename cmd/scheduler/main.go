package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"growthdesk_backend/internal/adapters"
	"growthdesk_backend/internal/delivery"
	"growthdesk_backend/internal/events"
	"growthdesk_backend/internal/leads"
	"growthdesk_backend/internal/notification"
	"growthdesk_backend/internal/nurture"
	"growthdesk_backend/internal/nurture/catalog"
	"growthdesk_backend/internal/practice"
	"growthdesk_backend/internal/scheduler"
	"growthdesk_backend/internal/staff"
	"growthdesk_backend/platform/config"
	"growthdesk_backend/platform/db"
	"growthdesk_backend/platform/logger"
	"growthdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The scheduler process runs the asynq worker and the outbox dispatcher.
// It composes the same domain modules as the API so deliveries go
// through identical lifecycle, scoring, and notification paths.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	staffModule := staff.NewModule(pool, val, log)
	practiceModule := practice.NewModule(pool, val, log)

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

	// Worker-side deliveries raise the same events the API raises, so
	// notifications fire no matter which process advanced the lead.
	notification.NewModule(pool, eventBus, log)

	worker, err := scheduler.NewWorker(cfg, nurtureModule.Service(), leadsModule.Orchestrator(), eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}
	defer func() { _ = worker.Close() }()

	dispatcher, err := scheduler.NewDispatcher(cfg, nurtureModule.Repository(), log)
	if err != nil {
		log.Error("failed to initialize dispatcher", "error", err)
		panic("failed to initialize dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	wg.Wait()
	eventBus.Wait()
	log.Info("scheduler stopped")
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
