package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"trialops_backend/internal/detection/repository"
	"trialops_backend/internal/events"
	"trialops_backend/internal/rules"
	"trialops_backend/platform/apperr"
	"trialops_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeStore mirrors the repository's transactional semantics in memory:
// the open natural-key guard, resolve auto-completion, and status guards.
type fakeStore struct {
	mu      sync.Mutex
	signals map[uuid.UUID]repository.Signal
	tasks   map[uuid.UUID]repository.Task
	byID    map[uuid.UUID]uuid.UUID // signal id -> task id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		signals: make(map[uuid.UUID]repository.Signal),
		tasks:   make(map[uuid.UUID]repository.Task),
		byID:    make(map[uuid.UUID]uuid.UUID),
	}
}

func isLive(status string) bool {
	return status == repository.SignalStatusOpen || status == repository.SignalStatusInProgress
}

func (f *fakeStore) hasLive(trialID, domain, source, recordID, dtype string) bool {
	for _, s := range f.signals {
		if isLive(s.Status) && s.TrialID == trialID && s.Domain == domain &&
			s.Source == source && s.RecordID == recordID && s.DiscrepancyType == dtype {
			return true
		}
	}
	return false
}

func (f *fakeStore) ApplyBatch(_ context.Context, params repository.BatchParams) (repository.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result repository.BatchResult
	now := time.Now()

	for _, item := range params.Creates {
		if f.hasLive(item.TrialID, item.Domain, item.Source, item.RecordID, item.DiscrepancyType) {
			continue
		}
		sig := repository.Signal{
			ID:              uuid.New(),
			DetectionID:     item.DetectionID,
			TrialID:         item.TrialID,
			Domain:          item.Domain,
			Source:          item.Source,
			RecordID:        item.RecordID,
			DiscrepancyType: item.DiscrepancyType,
			SignalType:      item.SignalType,
			Title:           item.SignalTitle,
			Observation:     item.Observation,
			Priority:        item.Priority,
			Status:          repository.SignalStatusOpen,
			CreatedBy:       "system",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		task := repository.Task{
			ID:           uuid.New(),
			SignalID:     sig.ID,
			TrialID:      item.TrialID,
			Title:        item.TaskTitle,
			Description:  item.TaskDescription,
			Priority:     item.Priority,
			Status:       repository.TaskStatusNotStarted,
			AssignedRole: item.AssignedRole,
			DueDate:      item.DueDate,
			Domain:       item.Domain,
			RecordID:     item.RecordID,
			Source:       item.Source,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		f.signals[sig.ID] = sig
		f.tasks[task.ID] = task
		f.byID[sig.ID] = task.ID
		result.Created = append(result.Created, repository.CreatedPair{Signal: sig, Task: task})
	}

	for _, item := range params.Resolves {
		sig, ok := f.signals[item.SignalID]
		if !ok || !isLive(sig.Status) {
			continue
		}
		sig.Status = repository.SignalStatusResolved
		resolvedAt := now
		sig.ResolvedAt = &resolvedAt
		f.signals[sig.ID] = sig

		task := f.tasks[f.byID[sig.ID]]
		completed := false
		if task.Status == repository.TaskStatusNotStarted || task.Status == repository.TaskStatusInProgress {
			task.Status = repository.TaskStatusCompleted
			completedAt := now
			task.CompletedAt = &completedAt
			completed = true
		}
		note := item.Note
		if task.ReviewNote != nil {
			note = *task.ReviewNote + "\n" + item.Note
		}
		task.ReviewNote = &note
		f.tasks[task.ID] = task

		result.Resolved = append(result.Resolved, repository.ResolvedPair{Signal: sig, Task: task, Completed: completed})
	}

	for _, item := range params.Updates {
		sig, ok := f.signals[item.SignalID]
		if !ok || !isLive(sig.Status) {
			continue
		}
		sig.Priority = item.Priority
		sig.Title = item.Title
		sig.Observation = item.Observation
		f.signals[sig.ID] = sig
		result.Updated++
	}

	return result, nil
}

func (f *fakeStore) ListOpenSignals(_ context.Context, trialID, domain, source string) ([]repository.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Signal
	for _, s := range f.signals {
		if isLive(s.Status) && s.TrialID == trialID && s.Domain == domain && s.Source == source {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOpenBatches(context.Context) ([]repository.BatchKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[repository.BatchKey]bool)
	var keys []repository.BatchKey
	for _, s := range f.signals {
		if !isLive(s.Status) {
			continue
		}
		key := repository.BatchKey{TrialID: s.TrialID, Domain: s.Domain, Source: s.Source}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeStore) ListSignals(_ context.Context, filter repository.SignalFilter) ([]repository.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Signal
	for _, s := range f.signals {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) GetSignal(_ context.Context, id uuid.UUID) (repository.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.signals[id]
	if !ok {
		return repository.Signal{}, apperr.NotFound("signal not found")
	}
	return s, nil
}

func (f *fakeStore) UpdateSignalStatus(_ context.Context, id uuid.UUID, status string, from []string) (repository.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.signals[id]
	if !ok || !containsStr(from, s.Status) {
		return repository.Signal{}, apperr.Conflict("signal is no longer in the expected status")
	}
	s.Status = status
	f.signals[id] = s
	return s, nil
}

func (f *fakeStore) ListTasks(_ context.Context, filter repository.TaskFilter) ([]repository.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Task
	for _, t := range f.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) GetTask(_ context.Context, id uuid.UUID) (repository.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	return t, nil
}

func (f *fakeStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status string, from []string, userID *uuid.UUID, note *string) (repository.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || !containsStr(from, t.Status) {
		return repository.Task{}, apperr.Conflict("task is no longer in the expected status")
	}
	t.Status = status
	if userID != nil {
		t.AssignedUserID = userID
	}
	if note != nil {
		t.ReviewNote = note
	}
	f.tasks[id] = t
	return t, nil
}

func containsStr(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// fakeReader serves a mutable in-memory batch of records.
type fakeReader struct {
	mu      sync.Mutex
	records map[string]rules.DomainRecord
}

func newFakeReader() *fakeReader {
	return &fakeReader{records: make(map[string]rules.DomainRecord)}
}

func (r *fakeReader) put(record rules.DomainRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.RecordID] = record
}

func (r *fakeReader) remove(recordID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, recordID)
}

func (r *fakeReader) ListBatch(_ context.Context, trialID, domain, source string, recordIDs []string) ([]rules.DomainRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[string]bool, len(recordIDs))
	for _, id := range recordIDs {
		wanted[id] = true
	}
	var out []rules.DomainRecord
	for _, rec := range r.records {
		if rec.TrialID != trialID || rec.Domain != domain || rec.Source != source {
			continue
		}
		if len(recordIDs) > 0 && !wanted[rec.RecordID] {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// fakeBus records published events synchronously.
type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) byName(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeReader, *fakeBus, time.Time) {
	t.Helper()
	store := newFakeStore()
	reader := newFakeReader()
	bus := &fakeBus{}
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	svc := New(store, reader, rules.NewEvaluator(rules.DefaultCatalog()),
		NewMaterializer(store, DefaultWorkflowMapping()), bus, logger.New("development"))
	svc.now = func() time.Time { return now }

	return svc, store, reader, bus, now
}

func labRecord(recordID string, result float64, updatedAt time.Time) rules.DomainRecord {
	return rules.DomainRecord{
		TrialID:  "CT-001",
		Domain:   "LB",
		Source:   "central_lab",
		RecordID: recordID,
		Fields: map[string]any{
			"LBTESTCD": "GLUC",
			"LBORRES":  result,
			"LBSTNRLO": 13.0,
			"LBSTNRHI": 17.0,
			"LBDTC":    "2025-05-30",
		},
		UpdatedAt: updatedAt,
	}
}

func TestAnalyzeCreatesSignalAndTask(t *testing.T) {
	svc, store, reader, bus, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))

	summary, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if summary.Created != 1 || summary.Resolved != 0 || summary.Updated != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if len(store.signals) != 1 || len(store.tasks) != 1 {
		t.Fatalf("expected one signal and one task, got %d/%d", len(store.signals), len(store.tasks))
	}
	for _, task := range store.tasks {
		if task.Priority != "high" {
			t.Fatalf("expected high priority, got %s", task.Priority)
		}
		if task.AssignedRole != "Data Manager" {
			t.Fatalf("expected Data Manager, got %s", task.AssignedRole)
		}
		wantDue := now.Add(3 * 24 * time.Hour)
		if !task.DueDate.Equal(wantDue) {
			t.Fatalf("expected due %v, got %v", wantDue, task.DueDate)
		}
	}

	created := bus.byName("detection.task.created")
	if len(created) != 1 {
		t.Fatalf("expected one TaskCreated event, got %d", len(created))
	}
	event := created[0].(events.TaskCreated)
	if len(event.AlsoNotify) != 1 || event.AlsoNotify[0] != "Medical Monitor" {
		t.Fatalf("expected Medical Monitor in alsoNotify, got %v", event.AlsoNotify)
	}
}

func TestAnalyzeRerunIsIdempotent(t *testing.T) {
	svc, store, reader, bus, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))

	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	summary, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if summary.Created != 0 || summary.Updated != 0 || summary.Resolved != 0 {
		t.Fatalf("second run should be a no-op, got %+v", summary)
	}
	if len(store.signals) != 1 {
		t.Fatalf("expected one signal after re-run, got %d", len(store.signals))
	}
	if got := len(bus.byName("detection.task.created")); got != 1 {
		t.Fatalf("expected one TaskCreated event total, got %d", got)
	}
}

func TestAnalyzeAutoResolvesAndCompletesTask(t *testing.T) {
	svc, store, reader, bus, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))

	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	reader.put(labRecord("LB-100", 15.0, now))
	summary, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Resolved != 1 || summary.Created != 0 {
		t.Fatalf("expected one resolve, got %+v", summary)
	}

	for _, task := range store.tasks {
		if task.Status != repository.TaskStatusCompleted {
			t.Fatalf("expected completed task, got %s", task.Status)
		}
		if task.ReviewNote == nil || !strings.Contains(*task.ReviewNote, "no longer present") {
			t.Fatalf("expected resolution note on task")
		}
	}
	for _, sig := range store.signals {
		if sig.Status != repository.SignalStatusResolved {
			t.Fatalf("expected resolved signal, got %s", sig.Status)
		}
	}

	resolved := bus.byName("detection.task.auto_resolved")
	if len(resolved) != 1 {
		t.Fatalf("expected one TaskAutoResolved event, got %d", len(resolved))
	}
	if !resolved[0].(events.TaskAutoResolved).Completed {
		t.Fatalf("expected Completed=true for untouched task")
	}
}

func TestAnalyzeAutoResolveKeepsHumanOwnedTaskStatus(t *testing.T) {
	svc, store, reader, bus, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))

	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	for id, task := range store.tasks {
		task.Status = repository.TaskStatusPendingReview
		store.tasks[id] = task
	}

	reader.put(labRecord("LB-100", 15.0, now))
	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	for _, task := range store.tasks {
		if task.Status != repository.TaskStatusPendingReview {
			t.Fatalf("human-owned task should keep its status, got %s", task.Status)
		}
		if task.ReviewNote == nil {
			t.Fatalf("expected annotation on human-owned task")
		}
	}

	resolved := bus.byName("detection.task.auto_resolved")
	if len(resolved) != 1 {
		t.Fatalf("expected one TaskAutoResolved event, got %d", len(resolved))
	}
	if resolved[0].(events.TaskAutoResolved).Completed {
		t.Fatalf("expected Completed=false for human-owned task")
	}
}

func TestAnalyzeCriticalDueDate(t *testing.T) {
	svc, store, reader, _, now := newTestService(t)
	reader.put(rules.DomainRecord{
		TrialID:  "CT-001",
		Domain:   "DM",
		Source:   "edc",
		RecordID: "DM-001",
		Fields: map[string]any{
			"SEX": "F",
		},
		UpdatedAt: now,
	})

	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "DM", "edc", nil); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	for _, task := range store.tasks {
		if task.Priority != "critical" {
			t.Fatalf("expected critical task, got %s", task.Priority)
		}
		wantDue := now.Add(24 * time.Hour)
		if !task.DueDate.Equal(wantDue) {
			t.Fatalf("expected due %v, got %v", wantDue, task.DueDate)
		}
	}
}

func TestAnalyzeScopedRunLeavesOtherRecordsAlone(t *testing.T) {
	svc, store, reader, _, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))
	reader.put(labRecord("LB-200", 26.0, now))

	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("full run failed: %v", err)
	}
	if len(store.signals) != 2 {
		t.Fatalf("expected two signals, got %d", len(store.signals))
	}

	// Fix only LB-100 and re-analyze just that record: LB-200's signal
	// must stay open even though it is not in the scoped evaluation.
	reader.put(labRecord("LB-100", 15.0, now))
	summary, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", []string{"LB-100"})
	if err != nil {
		t.Fatalf("scoped run failed: %v", err)
	}
	if summary.Resolved != 1 {
		t.Fatalf("expected one resolve, got %+v", summary)
	}

	open := 0
	for _, sig := range store.signals {
		if isLive(sig.Status) {
			open++
			if sig.RecordID != "LB-200" {
				t.Fatalf("wrong signal left open: %s", sig.RecordID)
			}
		}
	}
	if open != 1 {
		t.Fatalf("expected one open signal, got %d", open)
	}
}

func TestAnalyzeUpdatesSeverityInPlace(t *testing.T) {
	svc, store, reader, _, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))

	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// A different out-of-range value changes the observation message; the
	// signal updates in place and no second task appears.
	reader.put(labRecord("LB-100", 30.0, now))
	summary, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Updated != 1 || summary.Created != 0 || summary.Resolved != 0 {
		t.Fatalf("expected one in-place update, got %+v", summary)
	}
	if len(store.tasks) != 1 {
		t.Fatalf("update must not create a second task, got %d", len(store.tasks))
	}
}

func TestAnalyzeDeletedRecordResolvesItsSignals(t *testing.T) {
	svc, store, reader, bus, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))

	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The record disappears upstream entirely; its signal must resolve on
	// the next full batch run.
	reader.remove("LB-100")
	summary, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Records != 0 || summary.Resolved != 1 || summary.Created != 0 {
		t.Fatalf("expected a resolve for the deleted record, got %+v", summary)
	}

	for _, sig := range store.signals {
		if sig.Status != repository.SignalStatusResolved {
			t.Fatalf("expected resolved signal, got %s", sig.Status)
		}
	}
	for _, task := range store.tasks {
		if task.Status != repository.TaskStatusCompleted {
			t.Fatalf("expected completed task, got %s", task.Status)
		}
	}
	if len(bus.byName("detection.task.auto_resolved")) != 1 {
		t.Fatalf("expected one TaskAutoResolved event")
	}
}

// gatedStore holds every ApplyBatch call at a rendezvous so tests can
// observe which runs reach the store concurrently.
type gatedStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ApplyBatch(ctx context.Context, params repository.BatchParams) (repository.BatchResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeStore.ApplyBatch(ctx, params)
}

func newGatedService(t *testing.T) (*Service, *gatedStore, *fakeReader, time.Time) {
	t.Helper()
	gate := &gatedStore{
		fakeStore: newFakeStore(),
		entered:   make(chan struct{}, 2),
		release:   make(chan struct{}),
	}
	reader := newFakeReader()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	svc := New(gate, reader, rules.NewEvaluator(rules.DefaultCatalog()),
		NewMaterializer(gate, DefaultWorkflowMapping()), &fakeBus{}, logger.New("development"))
	svc.now = func() time.Time { return now }

	return svc, gate, reader, now
}

func TestAnalyzeSerializesSameBatchKey(t *testing.T) {
	svc, gate, reader, now := newGatedService(t)
	reader.put(labRecord("LB-100", 25.5, now))

	summaries := make([]RunSummary, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil)
			if err != nil {
				t.Errorf("run %d failed: %v", i, err)
			}
			summaries[i] = summary
		}(i)
	}

	<-gate.entered
	// While the first run holds the store, the second run for the same
	// batch key must be waiting on the batch lock, not applying a plan.
	select {
	case <-gate.entered:
		t.Fatalf("second run reached the store while the first held the batch")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate.release)
	wg.Wait()

	if got := summaries[0].Created + summaries[1].Created; got != 1 {
		t.Fatalf("concurrent same-key runs created %d signals, want 1", got)
	}
	if len(gate.signals) != 1 {
		t.Fatalf("expected one signal, got %d", len(gate.signals))
	}
}

func TestAnalyzeDistinctBatchKeysRunConcurrently(t *testing.T) {
	svc, gate, reader, now := newGatedService(t)
	reader.put(labRecord("LB-100", 25.5, now))
	reader.put(rules.DomainRecord{
		TrialID:  "CT-001",
		Domain:   "VS",
		Source:   "edc",
		RecordID: "VS-100",
		Fields: map[string]any{
			"VSTESTCD": "SYSBP",
			"VSORRES":  200.0,
			"VSORNRLO": 90.0,
			"VSORNRHI": 140.0,
		},
		UpdatedAt: now,
	})

	var wg sync.WaitGroup
	for _, batch := range []struct{ domain, source string }{
		{"LB", "central_lab"},
		{"VS", "edc"},
	} {
		batch := batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", batch.domain, batch.source, nil); err != nil {
				t.Errorf("batch %s/%s failed: %v", batch.domain, batch.source, err)
			}
		}()
	}

	// Both batches must reach the store while the gate is closed: distinct
	// keys do not serialize against each other.
	for i := 0; i < 2; i++ {
		select {
		case <-gate.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("batch %d never reached the store; distinct keys are serializing", i+1)
		}
	}

	close(gate.release)
	wg.Wait()

	if len(gate.signals) != 2 {
		t.Fatalf("expected two signals, got %d", len(gate.signals))
	}
}

func TestUpdateTaskStatusRejectsInvalidTransition(t *testing.T) {
	svc, store, reader, _, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))
	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var taskID uuid.UUID
	for id := range store.tasks {
		taskID = id
	}

	_, err := svc.UpdateTaskStatus(context.Background(), taskID, repository.TaskStatusCompleted, nil, nil)
	if apperr.GetKind(err) != apperr.KindInvalidTransition {
		t.Fatalf("expected invalid transition error, got %v", err)
	}

	if _, err := svc.UpdateTaskStatus(context.Background(), taskID, repository.TaskStatusInProgress, nil, nil); err != nil {
		t.Fatalf("not_started -> in_progress should succeed: %v", err)
	}
}

func TestUpdateSignalStatusLifecycle(t *testing.T) {
	svc, store, reader, _, now := newTestService(t)
	reader.put(labRecord("LB-100", 25.5, now))
	if _, err := svc.AnalyzeDomainData(context.Background(), "CT-001", "LB", "central_lab", nil); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var signalID uuid.UUID
	for id := range store.signals {
		signalID = id
	}

	if _, err := svc.UpdateSignalStatus(context.Background(), signalID, repository.SignalStatusInProgress); err != nil {
		t.Fatalf("open -> in_progress should succeed: %v", err)
	}
	_, err := svc.UpdateSignalStatus(context.Background(), signalID, repository.SignalStatusResolved)
	if apperr.GetKind(err) != apperr.KindInvalidTransition {
		t.Fatalf("humans must not resolve signals, got %v", err)
	}
	if _, err := svc.UpdateSignalStatus(context.Background(), signalID, repository.SignalStatusClosed); err != nil {
		t.Fatalf("in_progress -> closed should succeed: %v", err)
	}
}
