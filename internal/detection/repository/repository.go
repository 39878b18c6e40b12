// Package repository persists signals and tasks for the detection workflow.
package repository

import (
	"context"
	"fmt"
	"time"

	"trialops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opApplyBatch         = "detection.repository.apply_batch"
	opListOpenSignals    = "detection.repository.list_open_signals"
	opListSignals        = "detection.repository.list_signals"
	opGetSignal          = "detection.repository.get_signal"
	opUpdateSignalStatus = "detection.repository.update_signal_status"
	opListTasks          = "detection.repository.list_tasks"
	opGetTask            = "detection.repository.get_task"
	opUpdateTaskStatus   = "detection.repository.update_task_status"
	opListOpenBatches    = "detection.repository.list_open_batches"

	errRepoNotConfigured = "detection repository not configured"
)

// Signal status values.
const (
	SignalStatusOpen       = "open"
	SignalStatusInProgress = "in_progress"
	SignalStatusResolved   = "resolved"
	SignalStatusClosed     = "closed"
)

// Task status values.
const (
	TaskStatusNotStarted    = "not_started"
	TaskStatusInProgress    = "in_progress"
	TaskStatusPendingReview = "pending_review"
	TaskStatusCompleted     = "completed"
)

// Signal is a persisted, trackable data-quality issue.
type Signal struct {
	ID              uuid.UUID  `json:"id"`
	DetectionID     string     `json:"detectionId"`
	TrialID         string     `json:"trialId"`
	Domain          string     `json:"domain"`
	Source          string     `json:"source"`
	RecordID        string     `json:"recordId"`
	DiscrepancyType string     `json:"discrepancyType"`
	SignalType      string     `json:"signalType"`
	Title           string     `json:"title"`
	Observation     string     `json:"observation"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	CreatedBy       string     `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
}

// Task is the unit of work linked 1:1 to the signal that spawned it.
type Task struct {
	ID             uuid.UUID  `json:"id"`
	SignalID       uuid.UUID  `json:"signalId"`
	TrialID        string     `json:"trialId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	AssignedRole   string     `json:"assignedRole"`
	AssignedUserID *uuid.UUID `json:"assignedUserId,omitempty"`
	DueDate        time.Time  `json:"dueDate"`
	Domain         string     `json:"domain"`
	RecordID       string     `json:"recordId"`
	Source         string     `json:"source"`
	ReviewNote     *string    `json:"reviewNote,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// CreateItem is one create action of a reconciliation plan: a new signal
// plus its linked task.
type CreateItem struct {
	DetectionID     string
	TrialID         string
	Domain          string
	Source          string
	RecordID        string
	DiscrepancyType string
	SignalType      string
	SignalTitle     string
	Observation     string
	Priority        string
	TaskTitle       string
	TaskDescription string
	AssignedRole    string
	DueDate         time.Time
}

// ResolveItem is one resolve action: the signal resolves and its task is
// completed unless a human already owns it.
type ResolveItem struct {
	SignalID uuid.UUID
	Note     string
}

// UpdateItem is one update-in-place action: signal fields change, the task
// is untouched.
type UpdateItem struct {
	SignalID    uuid.UUID
	Priority    string
	Title       string
	Observation string
}

// BatchParams is one reconciliation plan ready for atomic application.
type BatchParams struct {
	Creates  []CreateItem
	Resolves []ResolveItem
	Updates  []UpdateItem
}

// CreatedPair reports a signal/task pair inserted by ApplyBatch.
type CreatedPair struct {
	Signal Signal
	Task   Task
}

// ResolvedPair reports a resolved signal and the final state of its task.
// Completed is false when the task was human-owned and only annotated.
type ResolvedPair struct {
	Signal    Signal
	Task      Task
	Completed bool
}

// BatchResult reports what ApplyBatch actually changed. Creates skipped by
// the idempotent conflict guard do not appear.
type BatchResult struct {
	Created  []CreatedPair
	Resolved []ResolvedPair
	Updated  int
}

// BatchKey identifies one (trial, domain, source) evaluation batch.
type BatchKey struct {
	TrialID string
	Domain  string
	Source  string
}

// Repository is the pgx-backed store for signals and tasks.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a detection repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ApplyBatch applies one reconciliation plan in a single transaction.
// Creates are guarded by the partial unique index on the open natural key,
// so re-applying the same plan inserts nothing new; a task insert failure
// rolls the paired signal back with the rest of the batch.
func (r *Repository) ApplyBatch(ctx context.Context, params BatchParams) (BatchResult, error) {
	if r == nil || r.pool == nil {
		return BatchResult{}, apperr.Internal(errRepoNotConfigured).WithOp(opApplyBatch)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return BatchResult{}, apperr.Internal(fmt.Sprintf("begin batch transaction: %v", err)).WithOp(opApplyBatch)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var result BatchResult

	for _, item := range params.Creates {
		pair, inserted, err := insertSignalWithTask(ctx, tx, item)
		if err != nil {
			return BatchResult{}, apperr.Internal(fmt.Sprintf("create signal/task failed: %v", err)).WithOp(opApplyBatch)
		}
		if inserted {
			result.Created = append(result.Created, pair)
		}
	}

	for _, item := range params.Resolves {
		pair, resolved, err := resolveSignalWithTask(ctx, tx, item)
		if err != nil {
			return BatchResult{}, apperr.Internal(fmt.Sprintf("resolve signal/task failed: %v", err)).WithOp(opApplyBatch)
		}
		if resolved {
			result.Resolved = append(result.Resolved, pair)
		}
	}

	for _, item := range params.Updates {
		tag, err := tx.Exec(ctx, `
			UPDATE signals
			SET priority = $2, title = $3, observation = $4, updated_at = now()
			WHERE id = $1 AND status IN ('open', 'in_progress')
		`, item.SignalID, item.Priority, item.Title, item.Observation)
		if err != nil {
			return BatchResult{}, apperr.Internal(fmt.Sprintf("update signal failed: %v", err)).WithOp(opApplyBatch)
		}
		result.Updated += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, apperr.Internal(fmt.Sprintf("commit batch transaction: %v", err)).WithOp(opApplyBatch)
	}

	return result, nil
}

func insertSignalWithTask(ctx context.Context, tx pgx.Tx, item CreateItem) (CreatedPair, bool, error) {
	var pair CreatedPair

	rows, err := tx.Query(ctx, `
		INSERT INTO signals
			(detection_id, trial_id, domain, source, record_id, discrepancy_type,
			 signal_type, title, observation, priority, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'open', 'system')
		ON CONFLICT (trial_id, domain, source, record_id, discrepancy_type)
			WHERE status IN ('open', 'in_progress')
			DO NOTHING
		RETURNING id, detection_id, trial_id, domain, source, record_id, discrepancy_type,
		          signal_type, title, observation, priority, status, created_by,
		          created_at, updated_at, resolved_at
	`, item.DetectionID, item.TrialID, item.Domain, item.Source, item.RecordID,
		item.DiscrepancyType, item.SignalType, item.SignalTitle, item.Observation, item.Priority)
	if err != nil {
		return pair, false, err
	}

	signal, inserted, err := scanOneSignal(rows)
	if err != nil {
		return pair, false, err
	}
	if !inserted {
		// An open signal for this natural key already exists; plan entry is
		// a duplicate from a concurrent or repeated run.
		return pair, false, nil
	}
	pair.Signal = signal

	err = tx.QueryRow(ctx, `
		INSERT INTO tasks
			(signal_id, trial_id, title, description, priority, status,
			 assigned_role, due_date, domain, record_id, source)
		VALUES ($1, $2, $3, $4, $5, 'not_started', $6, $7, $8, $9, $10)
		RETURNING id, signal_id, trial_id, title, description, priority, status,
		          assigned_role, assigned_user_id, due_date, domain, record_id, source,
		          review_note, created_at, updated_at, completed_at
	`, signal.ID, item.TrialID, item.TaskTitle, item.TaskDescription, item.Priority,
		item.AssignedRole, item.DueDate, item.Domain, item.RecordID, item.Source).Scan(
		&pair.Task.ID, &pair.Task.SignalID, &pair.Task.TrialID, &pair.Task.Title,
		&pair.Task.Description, &pair.Task.Priority, &pair.Task.Status,
		&pair.Task.AssignedRole, &pair.Task.AssignedUserID, &pair.Task.DueDate,
		&pair.Task.Domain, &pair.Task.RecordID, &pair.Task.Source, &pair.Task.ReviewNote,
		&pair.Task.CreatedAt, &pair.Task.UpdatedAt, &pair.Task.CompletedAt,
	)
	if err != nil {
		return pair, false, err
	}

	return pair, true, nil
}

func resolveSignalWithTask(ctx context.Context, tx pgx.Tx, item ResolveItem) (ResolvedPair, bool, error) {
	var pair ResolvedPair

	rows, err := tx.Query(ctx, `
		UPDATE signals
		SET status = 'resolved', resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('open', 'in_progress')
		RETURNING id, detection_id, trial_id, domain, source, record_id, discrepancy_type,
		          signal_type, title, observation, priority, status, created_by,
		          created_at, updated_at, resolved_at
	`, item.SignalID)
	if err != nil {
		return pair, false, err
	}
	signal, resolved, err := scanOneSignal(rows)
	if err != nil {
		return pair, false, err
	}
	if !resolved {
		// Signal already resolved or closed by an earlier run.
		return pair, false, nil
	}
	pair.Signal = signal

	// Auto-complete only tasks no human has taken ownership of;
	// pending_review and completed tasks just get the note appended.
	err = tx.QueryRow(ctx, `
		UPDATE tasks
		SET status      = CASE WHEN status IN ('not_started', 'in_progress') THEN 'completed' ELSE status END,
		    completed_at = CASE WHEN status IN ('not_started', 'in_progress') THEN now() ELSE completed_at END,
		    review_note = CASE WHEN review_note IS NULL THEN $2
		                       ELSE review_note || E'\n' || $2 END,
		    updated_at  = now()
		WHERE signal_id = $1
		RETURNING id, signal_id, trial_id, title, description, priority, status,
		          assigned_role, assigned_user_id, due_date, domain, record_id, source,
		          review_note, created_at, updated_at, completed_at
	`, item.SignalID, item.Note).Scan(
		&pair.Task.ID, &pair.Task.SignalID, &pair.Task.TrialID, &pair.Task.Title,
		&pair.Task.Description, &pair.Task.Priority, &pair.Task.Status,
		&pair.Task.AssignedRole, &pair.Task.AssignedUserID, &pair.Task.DueDate,
		&pair.Task.Domain, &pair.Task.RecordID, &pair.Task.Source, &pair.Task.ReviewNote,
		&pair.Task.CreatedAt, &pair.Task.UpdatedAt, &pair.Task.CompletedAt,
	)
	if err != nil {
		return pair, false, err
	}

	pair.Completed = pair.Task.Status == TaskStatusCompleted && pair.Task.CompletedAt != nil
	return pair, true, nil
}

func scanOneSignal(rows pgx.Rows) (Signal, bool, error) {
	defer rows.Close()
	if !rows.Next() {
		return Signal{}, false, rows.Err()
	}
	var s Signal
	if err := rows.Scan(
		&s.ID, &s.DetectionID, &s.TrialID, &s.Domain, &s.Source, &s.RecordID,
		&s.DiscrepancyType, &s.SignalType, &s.Title, &s.Observation, &s.Priority,
		&s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.ResolvedAt,
	); err != nil {
		return Signal{}, false, err
	}
	return s, true, rows.Err()
}

// ListOpenBatches returns the batch keys that still have live signals.
// The periodic sweep re-analyzes exactly these.
func (r *Repository) ListOpenBatches(ctx context.Context) ([]BatchKey, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListOpenBatches)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT trial_id, domain, source
		FROM signals
		WHERE status IN ('open', 'in_progress')
		ORDER BY trial_id, domain, source
	`)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list open batches failed: %v", err)).WithOp(opListOpenBatches)
	}
	defer rows.Close()

	var keys []BatchKey
	for rows.Next() {
		var key BatchKey
		if err := rows.Scan(&key.TrialID, &key.Domain, &key.Source); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan batch key failed: %v", err)).WithOp(opListOpenBatches)
		}
		keys = append(keys, key)
	}
	if rows.Err() != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate batch keys failed: %v", rows.Err())).WithOp(opListOpenBatches)
	}
	return keys, nil
}
