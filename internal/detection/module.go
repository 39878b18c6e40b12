// Package detection wires the signal detection workflow: rule evaluation,
// reconciliation against live signals, and task materialization.
package detection

import (
	"context"
	"fmt"

	"trialops_backend/internal/detection/handler"
	"trialops_backend/internal/detection/repository"
	"trialops_backend/internal/detection/service"
	"trialops_backend/internal/events"
	apphttp "trialops_backend/internal/http"
	"trialops_backend/internal/rules"
	"trialops_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the detection service with its HTTP handler and event
// subscriptions.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
	log     *logger.Logger
}

// Options configures module construction.
type Options struct {
	// WorkflowMappingFile overrides role routing and due-date offsets.
	WorkflowMappingFile string
	// RuleOverridesFile overrides rule catalog severities and enablement.
	RuleOverridesFile string
}

// New constructs the detection module and subscribes it to ingestion events.
func New(pool *pgxpool.Pool, records service.RecordReader, bus events.Bus, log *logger.Logger, opts Options) (*Module, error) {
	catalog := rules.DefaultCatalog()
	if opts.RuleOverridesFile != "" {
		if err := catalog.ApplyOverrides(opts.RuleOverridesFile); err != nil {
			return nil, fmt.Errorf("detection: %w", err)
		}
	}

	mapping := service.DefaultWorkflowMapping()
	if opts.WorkflowMappingFile != "" {
		if err := mapping.LoadOverrides(opts.WorkflowMappingFile); err != nil {
			return nil, fmt.Errorf("detection: %w", err)
		}
	}

	repo := repository.New(pool)
	svc := service.New(repo, records, rules.NewEvaluator(catalog), service.NewMaterializer(repo, mapping), bus, log)

	m := &Module{
		svc:     svc,
		handler: handler.New(svc),
		log:     log,
	}

	bus.Subscribe(events.RecordsIngested{}.EventName(), events.HandlerFunc(m.onRecordsIngested))

	return m, nil
}

// Name implements http.Module.
func (m *Module) Name() string { return "detection" }

// RegisterRoutes implements http.Module.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1, ctx.TriggerRateLimiter.RateLimit())
}

// Service exposes the detection service for the scheduler worker.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) onRecordsIngested(ctx context.Context, event events.Event) error {
	ingested, ok := event.(events.RecordsIngested)
	if !ok {
		return fmt.Errorf("detection: unexpected event type %T", event)
	}

	_, err := m.svc.AnalyzeDomainData(ctx, ingested.TrialID, ingested.Domain, ingested.Source, ingested.RecordIDs)
	if err != nil {
		m.log.WithBatch(ingested.TrialID, ingested.Domain, ingested.Source).
			Error("analysis after ingestion failed", "error", err)
		return err
	}
	return nil
}
