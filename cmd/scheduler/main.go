package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trialops_backend/internal/config"
	"trialops_backend/internal/db"
	"trialops_backend/internal/detection"
	emailpkg "trialops_backend/internal/email"
	"trialops_backend/internal/events"
	"trialops_backend/internal/notification"
	"trialops_backend/internal/records"
	"trialops_backend/internal/scheduler"
	"trialops_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "sweepInterval", cfg.SweepInterval.String())

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

	sender := newSender(cfg, log)

	recordsModule := records.New(pool, eventBus)

	detectionModule, err := detection.New(pool, recordsModule.Repository(), eventBus, log, detection.Options{
		WorkflowMappingFile: cfg.WorkflowMappingFile,
		RuleOverridesFile:   cfg.RuleOverridesFile,
	})
	if err != nil {
		log.Error("failed to initialize detection module", "error", err)
		panic("failed to initialize detection module: " + err.Error())
	}

	notificationModule := notification.New(pool, sender, eventBus, log, notification.Options{
		RoleEmails:  cfg.RoleEmails,
		AppBaseURL:  cfg.AppBaseURL,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	client.BindBus(eventBus, cfg.OutboxBatchSize)

	// Periodic ticks: each sweep re-analyzes batches with open signals and
	// drains whatever the outbox accumulated.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.EnqueueSweep(ctx); err != nil {
					log.Error("failed to enqueue sweep", "error", err)
				}
				if err := client.EnqueueOutboxDispatch(ctx, cfg.OutboxBatchSize); err != nil {
					log.Error("failed to enqueue outbox dispatch", "error", err)
				}
			}
		}
	}()

	worker, err := scheduler.NewWorker(cfg, detectionModule.Service(), notificationModule, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("scheduler stopped")
}

func newSender(cfg *config.Config, log *logger.Logger) emailpkg.Sender {
	if !cfg.EmailEnabled {
		log.Warn("SMTP not configured; notification emails disabled")
		return emailpkg.NoopSender{}
	}
	return emailpkg.NewSMTPSender(
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.EmailFromAddress, cfg.EmailFromName, cfg.EmailTimeout,
	)
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
