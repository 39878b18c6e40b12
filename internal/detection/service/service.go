package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trialops_backend/internal/detection/repository"
	"trialops_backend/internal/events"
	"trialops_backend/internal/rules"
	"trialops_backend/platform/apperr"
	"trialops_backend/platform/logger"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	opAnalyze            = "detection.service.analyze"
	opSweep              = "detection.service.sweep"
	opListSignals        = "detection.service.list_signals"
	opGetSignal          = "detection.service.get_signal"
	opUpdateSignalStatus = "detection.service.update_signal_status"
	opListTasks          = "detection.service.list_tasks"
	opGetTask            = "detection.service.get_task"
	opUpdateTaskStatus   = "detection.service.update_task_status"
)

// Store is the persistence surface the detection service depends on.
type Store interface {
	PlanApplier
	ListOpenSignals(ctx context.Context, trialID, domain, source string) ([]repository.Signal, error)
	ListOpenBatches(ctx context.Context) ([]repository.BatchKey, error)
	ListSignals(ctx context.Context, filter repository.SignalFilter) ([]repository.Signal, error)
	GetSignal(ctx context.Context, id uuid.UUID) (repository.Signal, error)
	UpdateSignalStatus(ctx context.Context, id uuid.UUID, status string, fromStatuses []string) (repository.Signal, error)
	ListTasks(ctx context.Context, filter repository.TaskFilter) ([]repository.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (repository.Task, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string, fromStatuses []string, userID *uuid.UUID, note *string) (repository.Task, error)
}

// RecordReader reads domain records for evaluation. Implemented by the
// records module; detection never writes records.
type RecordReader interface {
	ListBatch(ctx context.Context, trialID, domain, source string, recordIDs []string) ([]rules.DomainRecord, error)
}

// Service orchestrates evaluation runs and the signal/task lifecycle.
type Service struct {
	store        Store
	records      RecordReader
	evaluator    *rules.Evaluator
	materializer *Materializer
	bus          events.Bus
	log          *logger.Logger

	// One mutex per batch key. Runs for the same (trial, domain, source)
	// serialize; different batches proceed concurrently. Entries are never
	// evicted: the key space is bounded by the trials' domain/source
	// combinations, a few dozen per trial at most.
	batchLocks sync.Map

	now func() time.Time
}

// New creates the detection service.
func New(store Store, records RecordReader, evaluator *rules.Evaluator, materializer *Materializer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:        store,
		records:      records,
		evaluator:    evaluator,
		materializer: materializer,
		bus:          bus,
		log:          log,
		now:          time.Now,
	}
}

// RunSummary reports what one evaluation run did.
type RunSummary struct {
	TrialID  string `json:"trialId"`
	Domain   string `json:"domain"`
	Source   string `json:"source"`
	Records  int    `json:"records"`
	Findings int    `json:"findings"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Resolved int    `json:"resolved"`
}

// AnalyzeDomainData evaluates one batch and reconciles the outcome with its
// live signals. A nil recordIDs slice means the whole batch; a non-empty one
// scopes both evaluation and reconciliation to those records, so signals
// outside the subset are never touched.
func (s *Service) AnalyzeDomainData(ctx context.Context, trialID, domain, source string, recordIDs []string) (RunSummary, error) {
	if trialID == "" || domain == "" || source == "" {
		return RunSummary{}, apperr.Validation("trialId, domain and source are required").WithOp(opAnalyze)
	}

	unlock := s.lockBatch(trialID, domain, source)
	defer unlock()

	now := s.now()
	summary := RunSummary{TrialID: trialID, Domain: domain, Source: source}

	records, err := s.records.ListBatch(ctx, trialID, domain, source, recordIDs)
	if err != nil {
		return summary, err
	}
	summary.Records = len(records)

	var findings []rules.DiscrepancyFinding
	for _, record := range records {
		findings = append(findings, s.evaluator.Evaluate(domain, record, now)...)
	}
	summary.Findings = len(findings)

	open, err := s.store.ListOpenSignals(ctx, trialID, domain, source)
	if err != nil {
		return summary, err
	}
	if len(recordIDs) > 0 {
		open = filterByRecordIDs(open, recordIDs)
	}

	plan := Reconcile(findings, open)
	result, err := s.materializer.Apply(ctx, plan, now)
	if err != nil {
		return summary, err
	}
	summary.Created = len(result.Created)
	summary.Resolved = len(result.Resolved)
	summary.Updated = result.Updated

	for _, pair := range result.Created {
		audience := s.materializer.Audience(pair.Signal.Domain, rules.DiscrepancyType(pair.Signal.DiscrepancyType))
		s.bus.Publish(ctx, events.TaskCreated{
			BaseEvent:       events.NewBaseEvent(),
			TaskID:          pair.Task.ID,
			SignalID:        pair.Signal.ID,
			TrialID:         pair.Signal.TrialID,
			Domain:          pair.Signal.Domain,
			Source:          pair.Signal.Source,
			RecordID:        pair.Signal.RecordID,
			DiscrepancyType: pair.Signal.DiscrepancyType,
			Title:           pair.Task.Title,
			Description:     pair.Task.Description,
			Priority:        pair.Task.Priority,
			AssignedRole:    pair.Task.AssignedRole,
			AlsoNotify:      audience.AlsoNotify,
			DueDate:         pair.Task.DueDate,
		})
	}
	for _, pair := range result.Resolved {
		audience := s.materializer.Audience(pair.Signal.Domain, rules.DiscrepancyType(pair.Signal.DiscrepancyType))
		s.bus.Publish(ctx, events.TaskAutoResolved{
			BaseEvent:       events.NewBaseEvent(),
			TaskID:          pair.Task.ID,
			SignalID:        pair.Signal.ID,
			TrialID:         pair.Signal.TrialID,
			Domain:          pair.Signal.Domain,
			Source:          pair.Signal.Source,
			RecordID:        pair.Signal.RecordID,
			DiscrepancyType: pair.Signal.DiscrepancyType,
			Title:           pair.Task.Title,
			Priority:        pair.Task.Priority,
			AssignedRole:    pair.Task.AssignedRole,
			AlsoNotify:      audience.AlsoNotify,
			Completed:       pair.Completed,
		})
	}

	s.log.EvaluationRun(trialID, domain, source,
		summary.Records, summary.Findings, summary.Created, summary.Resolved, summary.Updated)

	return summary, nil
}

// AnalyzeOpenBatches re-runs every batch that still has live signals, so
// discrepancies fixed upstream resolve even when no ingestion event arrives.
// Batches fan out concurrently; the per-batch lock keeps each key serialized.
func (s *Service) AnalyzeOpenBatches(ctx context.Context) error {
	keys, err := s.store.ListOpenBatches(ctx)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("list open batches: %v", err)).WithOp(opSweep)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)

	var (
		mu   sync.Mutex
		errs error
	)
	for _, key := range keys {
		key := key
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			if _, err := s.AnalyzeDomainData(groupCtx, key.TrialID, key.Domain, key.Source, nil); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("batch %s/%s/%s: %w", key.TrialID, key.Domain, key.Source, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (s *Service) lockBatch(trialID, domain, source string) func() {
	key := trialID + "/" + domain + "/" + source
	value, _ := s.batchLocks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func filterByRecordIDs(signals []repository.Signal, recordIDs []string) []repository.Signal {
	wanted := make(map[string]bool, len(recordIDs))
	for _, id := range recordIDs {
		wanted[id] = true
	}
	filtered := signals[:0:0]
	for _, sig := range signals {
		if wanted[sig.RecordID] {
			filtered = append(filtered, sig)
		}
	}
	return filtered
}

// ListSignals returns signals for the review UI.
func (s *Service) ListSignals(ctx context.Context, filter repository.SignalFilter) ([]repository.Signal, error) {
	signals, err := s.store.ListSignals(ctx, filter)
	if err != nil {
		return nil, err
	}
	return signals, nil
}

// GetSignal returns one signal.
func (s *Service) GetSignal(ctx context.Context, id uuid.UUID) (repository.Signal, error) {
	return s.store.GetSignal(ctx, id)
}

// signalTransitions maps a target status to the statuses a human may move
// a signal from. Resolution itself belongs to the evaluator, not to users.
var signalTransitions = map[string][]string{
	repository.SignalStatusInProgress: {repository.SignalStatusOpen},
	repository.SignalStatusClosed: {
		repository.SignalStatusOpen,
		repository.SignalStatusInProgress,
		repository.SignalStatusResolved,
	},
}

// UpdateSignalStatus applies a human status transition to a signal.
func (s *Service) UpdateSignalStatus(ctx context.Context, id uuid.UUID, status string) (repository.Signal, error) {
	allowed, ok := signalTransitions[status]
	if !ok {
		return repository.Signal{}, apperr.InvalidTransition(fmt.Sprintf("signals cannot be moved to %q", status)).WithOp(opUpdateSignalStatus)
	}

	current, err := s.store.GetSignal(ctx, id)
	if err != nil {
		return repository.Signal{}, err
	}
	if !contains(allowed, current.Status) {
		return repository.Signal{}, apperr.InvalidTransition(
			fmt.Sprintf("signal cannot move from %q to %q", current.Status, status)).WithOp(opUpdateSignalStatus)
	}

	return s.store.UpdateSignalStatus(ctx, id, status, []string{current.Status})
}

// ListTasks returns tasks for the work queue UI.
func (s *Service) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]repository.Task, error) {
	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (repository.Task, error) {
	return s.store.GetTask(ctx, id)
}

// taskTransitions maps a target status to the statuses a human may move a
// task from. pending_review can go back to in_progress when review bounces.
var taskTransitions = map[string][]string{
	repository.TaskStatusInProgress: {
		repository.TaskStatusNotStarted,
		repository.TaskStatusPendingReview,
	},
	repository.TaskStatusPendingReview: {repository.TaskStatusInProgress},
	repository.TaskStatusCompleted:     {repository.TaskStatusPendingReview},
}

// UpdateTaskStatus applies a human status transition to a task, recording
// the acting user as assignee and appending any review note.
func (s *Service) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string, userID *uuid.UUID, note *string) (repository.Task, error) {
	allowed, ok := taskTransitions[status]
	if !ok {
		return repository.Task{}, apperr.InvalidTransition(fmt.Sprintf("tasks cannot be moved to %q", status)).WithOp(opUpdateTaskStatus)
	}

	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return repository.Task{}, err
	}
	if !contains(allowed, current.Status) {
		return repository.Task{}, apperr.InvalidTransition(
			fmt.Sprintf("task cannot move from %q to %q", current.Status, status)).WithOp(opUpdateTaskStatus)
	}

	return s.store.UpdateTaskStatus(ctx, id, status, []string{current.Status}, userID, note)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
