// Package repository reads trial domain records. The backing table is
// owned by the external ingestion subsystem; this side never writes it.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"trialops_backend/internal/rules"
	"trialops_backend/platform/apperr"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opListBatch = "records.repository.list_batch"
)

// Repository is the pgx-backed read model over domain_records.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a records repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListBatch returns the records of one (trial, domain, source) batch.
// A non-empty recordIDs slice limits the result to those records; ids not
// present in the store are simply absent from the result, which lets the
// evaluator resolve signals for records deleted upstream.
func (r *Repository) ListBatch(ctx context.Context, trialID, domain, source string, recordIDs []string) ([]rules.DomainRecord, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal("records repository not configured").WithOp(opListBatch)
	}

	query := `
		SELECT trial_id, domain, source, record_id, fields, record_version, updated_at
		FROM domain_records
		WHERE trial_id = $1 AND domain = $2 AND source = $3`
	args := []any{trialID, domain, source}
	if len(recordIDs) > 0 {
		query += ` AND record_id = ANY($4)`
		args = append(args, recordIDs)
	}
	query += ` ORDER BY record_id`

	pgRows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list batch records failed: %v", err)).WithOp(opListBatch)
	}
	defer pgRows.Close()

	var records []rules.DomainRecord
	for pgRows.Next() {
		var (
			record rules.DomainRecord
			fields []byte
		)
		if err := pgRows.Scan(&record.TrialID, &record.Domain, &record.Source, &record.RecordID,
			&fields, &record.RecordVersion, &record.UpdatedAt); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan record failed: %v", err)).WithOp(opListBatch)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &record.Fields); err != nil {
				return nil, apperr.Internal(fmt.Sprintf("decode record fields for %s: %v", record.RecordID, err)).WithOp(opListBatch)
			}
		}
		records = append(records, record)
	}
	if pgRows.Err() != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate records failed: %v", pgRows.Err())).WithOp(opListBatch)
	}
	return records, nil
}
