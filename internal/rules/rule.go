// Package rules implements the declarative validation rule catalog and the
// discrepancy evaluator. Everything in this package is pure: rules receive a
// record and a reference clock, perform no I/O, and return deterministic
// findings so that re-evaluation after a correction is comparable to the
// prior run.
package rules

import "time"

// Violation is the outcome of a single rule check. A nil Violation means the
// record satisfies the rule.
type Violation struct {
	Message           string
	AffectedFields    []string
	RecommendedAction string
}

// Predicate checks one record against one rule. The now parameter is the
// evaluation reference time, passed in so checks stay deterministic.
// A non-nil error means the record could not be evaluated (unparseable
// field); the evaluator converts it into a malformed_data finding instead
// of aborting the run.
type Predicate func(record DomainRecord, now time.Time) (*Violation, error)

// Rule is one declarative validation rule. Rules are data: the catalog maps
// domain codes to ordered rule lists instead of branching per domain.
type Rule struct {
	// Name identifies the rule in logs and overrides, e.g. "lb_result_in_range".
	Name string
	// DiscrepancyType is the finding classification this rule produces.
	DiscrepancyType DiscrepancyType
	// Severity of findings produced by this rule.
	Severity Severity
	// Fields lists the record fields the rule reads, for traceability.
	Fields []string
	// Check evaluates the record. Nil result means compliant.
	Check Predicate
}

// apply runs the rule against a record and converts a violation into a
// finding carrying the record's identity.
func (r Rule) apply(record DomainRecord, now time.Time) (*DiscrepancyFinding, error) {
	violation, err := r.Check(record, now)
	if err != nil {
		return nil, err
	}
	if violation == nil {
		return nil, nil
	}

	fields := violation.AffectedFields
	if len(fields) == 0 {
		fields = r.Fields
	}

	return &DiscrepancyFinding{
		TrialID:           record.TrialID,
		Domain:            record.Domain,
		Source:            record.Source,
		RecordID:          record.RecordID,
		DiscrepancyType:   r.DiscrepancyType,
		Severity:          r.Severity,
		Message:           violation.Message,
		AffectedFields:    fields,
		RecommendedAction: violation.RecommendedAction,
	}, nil
}
