package scheduler

import (
	"context"
	"fmt"

	"trialops_backend/internal/config"
	"trialops_backend/internal/detection/service"
	"trialops_backend/platform/logger"
	"trialops_backend/platform/validator"

	"github.com/hibiken/asynq"
)

// BatchAnalyzer runs evaluation batches; implemented by the detection service.
type BatchAnalyzer interface {
	AnalyzeDomainData(ctx context.Context, trialID, domain, source string, recordIDs []string) (service.RunSummary, error)
	AnalyzeOpenBatches(ctx context.Context) error
}

// OutboxProcessor drains queued emails; implemented by the notification module.
type OutboxProcessor interface {
	ProcessOutbox(ctx context.Context, limit int) (int, error)
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	analyzer BatchAnalyzer
	outbox   OutboxProcessor
	validate *validator.Validator
	log      *logger.Logger

	outboxBatchSize int
}

func NewWorker(cfg *config.Config, analyzer BatchAnalyzer, outbox OutboxProcessor, log *logger.Logger) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSInsecure)
	if err != nil {
		return nil, err
	}

	queue := cfg.AsynqQueue
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.AsynqConcurrency
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:          server,
		mux:             mux,
		analyzer:        analyzer,
		outbox:          outbox,
		validate:        validator.New(),
		log:             log,
		outboxBatchSize: cfg.OutboxBatchSize,
	}

	mux.HandleFunc(TaskAnalyzeBatch, w.handleAnalyzeBatch)
	mux.HandleFunc(TaskSweepOpenBatches, w.handleSweep)
	mux.HandleFunc(TaskOutboxDispatch, w.handleOutboxDispatch)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleAnalyzeBatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAnalyzeBatchPayload(task)
	if err != nil {
		return err
	}
	if err := w.validate.Struct(payload); err != nil {
		// Malformed payloads never become valid; do not retry them.
		return fmt.Errorf("invalid analyze batch payload: %w: %w", err, asynq.SkipRetry)
	}

	_, err = w.analyzer.AnalyzeDomainData(ctx, payload.TrialID, payload.Domain, payload.Source, payload.RecordIDs)
	return err
}

func (w *Worker) handleSweep(ctx context.Context, _ *asynq.Task) error {
	if err := w.analyzer.AnalyzeOpenBatches(ctx); err != nil {
		// Partial sweep failures are logged, not retried: the next sweep
		// covers the same batches again.
		w.log.Error("sweep finished with errors", "error", err)
	}
	return nil
}

func (w *Worker) handleOutboxDispatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutboxDispatchPayload(task)
	if err != nil {
		return err
	}

	limit := payload.Limit
	if limit < 1 {
		limit = w.outboxBatchSize
	}

	sent, err := w.outbox.ProcessOutbox(ctx, limit)
	if err != nil {
		return err
	}
	if sent > 0 {
		w.log.Info("dispatched notification emails", "sent", sent)
	}
	return nil
}
