package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trialops_backend/internal/detection/repository"
	"trialops_backend/internal/rules"

	"github.com/google/uuid"
)

// PlanApplier is the transactional store the materializer writes plans to.
type PlanApplier interface {
	ApplyBatch(ctx context.Context, params repository.BatchParams) (repository.BatchResult, error)
}

// Materializer turns reconciliation plans into persisted signals and tasks.
type Materializer struct {
	repo    PlanApplier
	mapping *WorkflowMapping
}

// NewMaterializer creates a materializer writing through the given store.
func NewMaterializer(repo PlanApplier, mapping *WorkflowMapping) *Materializer {
	return &Materializer{repo: repo, mapping: mapping}
}

// Audience returns who should be notified about work in the given domain
// and discrepancy type.
func (m *Materializer) Audience(domain string, discrepancyType rules.DiscrepancyType) Assignment {
	return m.mapping.Assign(domain, discrepancyType)
}

// Apply persists a plan atomically. Duplicate creates are absorbed by the
// store's natural-key guard, so applying the same plan twice changes nothing
// the second time.
func (m *Materializer) Apply(ctx context.Context, plan Plan, now time.Time) (repository.BatchResult, error) {
	if plan.Empty() {
		return repository.BatchResult{}, nil
	}

	params := repository.BatchParams{}

	for _, finding := range plan.Creates {
		assignment := m.mapping.Assign(finding.Domain, finding.DiscrepancyType)
		params.Creates = append(params.Creates, repository.CreateItem{
			DetectionID:     uuid.NewString(),
			TrialID:         finding.TrialID,
			Domain:          finding.Domain,
			Source:          finding.Source,
			RecordID:        finding.RecordID,
			DiscrepancyType: string(finding.DiscrepancyType),
			SignalType:      "data_quality",
			SignalTitle:     signalTitle(finding),
			Observation:     finding.Message,
			Priority:        string(finding.Severity),
			TaskTitle:       taskTitle(finding),
			TaskDescription: taskDescription(finding),
			AssignedRole:    assignment.Role,
			DueDate:         m.mapping.DueDate(finding.Severity, now),
		})
	}

	for _, sig := range plan.Resolves {
		params.Resolves = append(params.Resolves, repository.ResolveItem{
			SignalID: sig.ID,
			Note:     fmt.Sprintf("Auto-resolved on %s: the underlying discrepancy is no longer present in the source data.", now.Format("2006-01-02")),
		})
	}

	for _, update := range plan.Updates {
		params.Updates = append(params.Updates, repository.UpdateItem{
			SignalID:    update.Signal.ID,
			Priority:    string(update.Finding.Severity),
			Title:       signalTitle(update.Finding),
			Observation: update.Finding.Message,
		})
	}

	return m.repo.ApplyBatch(ctx, params)
}

func signalTitle(f rules.DiscrepancyFinding) string {
	return fmt.Sprintf("%s: %s in %s record %s", strings.ToUpper(f.Domain), humanType(f.DiscrepancyType), f.Domain, f.RecordID)
}

func taskTitle(f rules.DiscrepancyFinding) string {
	return fmt.Sprintf("Review %s in %s record %s", humanType(f.DiscrepancyType), f.Domain, f.RecordID)
}

func taskDescription(f rules.DiscrepancyFinding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", f.Message)
	if len(f.AffectedFields) > 0 {
		fmt.Fprintf(&b, "Affected fields: %s.\n", strings.Join(f.AffectedFields, ", "))
	}
	if f.RecommendedAction != "" {
		fmt.Fprintf(&b, "Recommended action: %s", f.RecommendedAction)
	}
	return strings.TrimRight(b.String(), "\n")
}

func humanType(t rules.DiscrepancyType) string {
	switch t {
	case rules.TypeMissingField:
		return "missing field"
	case rules.TypeOutOfRange:
		return "out-of-range value"
	case rules.TypeInvalidValue:
		return "invalid value"
	case rules.TypeCrossField:
		return "cross-field inconsistency"
	case rules.TypeStaleData:
		return "stale data"
	case rules.TypeMalformedData:
		return "malformed data"
	default:
		return string(t)
	}
}
