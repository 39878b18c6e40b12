package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trialops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, signal_id, trial_id, title, description, priority, status,
	assigned_role, assigned_user_id, due_date, domain, record_id, source,
	review_note, created_at, updated_at, completed_at`

// TaskFilter narrows ListTasks. Zero-value fields match everything.
type TaskFilter struct {
	TrialID      string
	Domain       string
	Status       string
	Priority     string
	AssignedRole string
	Limit        int
	Offset       int
}

// ListTasks returns tasks matching the filter, nearest due date first.
func (r *Repository) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListTasks)
	}

	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("trial_id", filter.TrialID)
	add("domain", filter.Domain)
	add("status", filter.Status)
	add("priority", filter.Priority)
	add("assigned_role", filter.AssignedRole)

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY due_date, created_at, id"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list tasks failed: %v", err)).WithOp(opListTasks)
	}
	return scanTasks(rows, opListTasks)
}

// GetTask returns one task by id.
func (r *Repository) GetTask(ctx context.Context, id uuid.UUID) (Task, error) {
	if r == nil || r.pool == nil {
		return Task{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetTask)
	}

	var t Task
	err := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id).Scan(
		&t.ID, &t.SignalID, &t.TrialID, &t.Title, &t.Description, &t.Priority,
		&t.Status, &t.AssignedRole, &t.AssignedUserID, &t.DueDate, &t.Domain,
		&t.RecordID, &t.Source, &t.ReviewNote, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, apperr.NotFound("task not found").WithOp(opGetTask)
	}
	if err != nil {
		return Task{}, apperr.Internal(fmt.Sprintf("get task failed: %v", err)).WithOp(opGetTask)
	}
	return t, nil
}

// UpdateTaskStatus moves a task to the given status and optionally claims it
// for the acting user. fromStatuses guards against concurrent transitions.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string, fromStatuses []string, userID *uuid.UUID, note *string) (Task, error) {
	if r == nil || r.pool == nil {
		return Task{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateTaskStatus)
	}

	var t Task
	err := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status           = $2,
		    assigned_user_id = COALESCE($4, assigned_user_id),
		    review_note      = CASE WHEN $5::text IS NULL THEN review_note
		                            WHEN review_note IS NULL THEN $5
		                            ELSE review_note || E'\n' || $5 END,
		    completed_at     = CASE WHEN $2 = 'completed' AND completed_at IS NULL THEN now() ELSE completed_at END,
		    updated_at       = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+taskColumns+`
	`, id, status, fromStatuses, userID, note).Scan(
		&t.ID, &t.SignalID, &t.TrialID, &t.Title, &t.Description, &t.Priority,
		&t.Status, &t.AssignedRole, &t.AssignedUserID, &t.DueDate, &t.Domain,
		&t.RecordID, &t.Source, &t.ReviewNote, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, apperr.Conflict("task is no longer in the expected status").WithOp(opUpdateTaskStatus)
	}
	if err != nil {
		return Task{}, apperr.Internal(fmt.Sprintf("update task status failed: %v", err)).WithOp(opUpdateTaskStatus)
	}
	return t, nil
}

func scanTasks(rows pgx.Rows, op string) ([]Task, error) {
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(
			&t.ID, &t.SignalID, &t.TrialID, &t.Title, &t.Description, &t.Priority,
			&t.Status, &t.AssignedRole, &t.AssignedUserID, &t.DueDate, &t.Domain,
			&t.RecordID, &t.Source, &t.ReviewNote, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
		); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan task failed: %v", err)).WithOp(op)
		}
		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate tasks failed: %v", rows.Err())).WithOp(op)
	}
	return tasks, nil
}
