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

const signalColumns = `id, detection_id, trial_id, domain, source, record_id, discrepancy_type,
	signal_type, title, observation, priority, status, created_by,
	created_at, updated_at, resolved_at`

// SignalFilter narrows ListSignals. Zero-value fields match everything.
type SignalFilter struct {
	TrialID  string
	Domain   string
	Source   string
	Status   string
	Priority string
	Limit    int
	Offset   int
}

// ListOpenSignals returns the live signals for one evaluation batch,
// the input the reconciler diffs fresh findings against.
func (r *Repository) ListOpenSignals(ctx context.Context, trialID, domain, source string) ([]Signal, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListOpenSignals)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE trial_id = $1 AND domain = $2 AND source = $3
		  AND status IN ('open', 'in_progress')
		ORDER BY record_id, discrepancy_type
	`, trialID, domain, source)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list open signals failed: %v", err)).WithOp(opListOpenSignals)
	}
	return scanSignals(rows, opListOpenSignals)
}

// ListSignals returns signals matching the filter, newest first.
func (r *Repository) ListSignals(ctx context.Context, filter SignalFilter) ([]Signal, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListSignals)
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
	add("source", filter.Source)
	add("status", filter.Status)
	add("priority", filter.Priority)

	query := `SELECT ` + signalColumns + ` FROM signals`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

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
		return nil, apperr.Internal(fmt.Sprintf("list signals failed: %v", err)).WithOp(opListSignals)
	}
	return scanSignals(rows, opListSignals)
}

// GetSignal returns one signal by id.
func (r *Repository) GetSignal(ctx context.Context, id uuid.UUID) (Signal, error) {
	if r == nil || r.pool == nil {
		return Signal{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetSignal)
	}

	var s Signal
	err := r.pool.QueryRow(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE id = $1
	`, id).Scan(
		&s.ID, &s.DetectionID, &s.TrialID, &s.Domain, &s.Source, &s.RecordID,
		&s.DiscrepancyType, &s.SignalType, &s.Title, &s.Observation, &s.Priority,
		&s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Signal{}, apperr.NotFound("signal not found").WithOp(opGetSignal)
	}
	if err != nil {
		return Signal{}, apperr.Internal(fmt.Sprintf("get signal failed: %v", err)).WithOp(opGetSignal)
	}
	return s, nil
}

// UpdateSignalStatus moves a signal to the given status. The service layer
// owns transition validation; fromStatuses guards against races.
func (r *Repository) UpdateSignalStatus(ctx context.Context, id uuid.UUID, status string, fromStatuses []string) (Signal, error) {
	if r == nil || r.pool == nil {
		return Signal{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdateSignalStatus)
	}

	var s Signal
	err := r.pool.QueryRow(ctx, `
		UPDATE signals
		SET status      = $2,
		    resolved_at = CASE WHEN $2 IN ('resolved', 'closed') AND resolved_at IS NULL THEN now() ELSE resolved_at END,
		    updated_at  = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+signalColumns+`
	`, id, status, fromStatuses).Scan(
		&s.ID, &s.DetectionID, &s.TrialID, &s.Domain, &s.Source, &s.RecordID,
		&s.DiscrepancyType, &s.SignalType, &s.Title, &s.Observation, &s.Priority,
		&s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Signal{}, apperr.Conflict("signal is no longer in the expected status").WithOp(opUpdateSignalStatus)
	}
	if err != nil {
		return Signal{}, apperr.Internal(fmt.Sprintf("update signal status failed: %v", err)).WithOp(opUpdateSignalStatus)
	}
	return s, nil
}

func scanSignals(rows pgx.Rows, op string) ([]Signal, error) {
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(
			&s.ID, &s.DetectionID, &s.TrialID, &s.Domain, &s.Source, &s.RecordID,
			&s.DiscrepancyType, &s.SignalType, &s.Title, &s.Observation, &s.Priority,
			&s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.ResolvedAt,
		); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan signal failed: %v", err)).WithOp(op)
		}
		signals = append(signals, s)
	}
	if rows.Err() != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate signals failed: %v", rows.Err())).WithOp(op)
	}
	return signals, nil
}
