package rules

import (
	"fmt"
	"sort"
	"time"
)

// Evaluator runs the applicable rule set for a domain against single records.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator creates an evaluator over the given catalog.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate runs every rule registered for the domain against the record and
// returns all findings, ordered by severity (most urgent first) and then by
// discrepancy type for determinism. A record may violate several rules in
// one pass; each finding maps to its own signal.
//
// A rule that cannot evaluate the record (unparseable field, panicking
// predicate) yields a malformed_data finding of severity high instead of
// aborting: one bad field must not block detection of other issues.
func (e *Evaluator) Evaluate(domain string, record DomainRecord, now time.Time) []DiscrepancyFinding {
	rulesForDomain := e.catalog.Rules(domain)
	if len(rulesForDomain) == 0 {
		return nil
	}

	findings := make([]DiscrepancyFinding, 0, 2)
	var malformed *DiscrepancyFinding

	for _, rule := range rulesForDomain {
		finding, err := safeApply(rule, record, now)
		if err != nil {
			// Collapse all evaluation errors on a record into one
			// malformed_data finding; the natural key has no per-rule
			// component for this discrepancy type.
			if malformed == nil {
				malformed = &DiscrepancyFinding{
					TrialID:           record.TrialID,
					Domain:            record.Domain,
					Source:            record.Source,
					RecordID:          record.RecordID,
					DiscrepancyType:   TypeMalformedData,
					Severity:          SeverityHigh,
					Message:           fmt.Sprintf("record could not be evaluated: %v", err),
					RecommendedAction: "Inspect the source extract for malformed field values.",
				}
			}
			malformed.AffectedFields = appendUnique(malformed.AffectedFields, rule.Fields...)
			continue
		}
		if finding != nil {
			findings = append(findings, *finding)
		}
	}

	if malformed != nil {
		findings = append(findings, *malformed)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity.Rank() != findings[j].Severity.Rank() {
			return findings[i].Severity.Rank() < findings[j].Severity.Rank()
		}
		return findings[i].DiscrepancyType < findings[j].DiscrepancyType
	})

	return findings
}

// safeApply shields the run from panicking predicates.
func safeApply(rule Rule, record DomainRecord, now time.Time) (finding *DiscrepancyFinding, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			finding = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.Name, recovered)
		}
	}()
	return rule.apply(record, now)
}

func appendUnique(existing []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, present := range existing {
			if present == item {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, item)
		}
	}
	return existing
}
