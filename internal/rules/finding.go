package rules

// DiscrepancyType classifies what kind of data-quality problem a rule found.
type DiscrepancyType string

const (
	TypeMissingField  DiscrepancyType = "missing_field"
	TypeOutOfRange    DiscrepancyType = "out_of_range"
	TypeInvalidValue  DiscrepancyType = "invalid_value"
	TypeCrossField    DiscrepancyType = "inconsistent_cross_field"
	TypeStaleData     DiscrepancyType = "stale_data"
	TypeMalformedData DiscrepancyType = "malformed_data"
)

// Severity ranks how urgently a discrepancy needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank orders severities for deterministic processing,
// most urgent first.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Rank returns the sort position of the severity; unknown severities sort last.
func (s Severity) Rank() int {
	if rank, ok := severityRank[s]; ok {
		return rank
	}
	return len(severityRank)
}

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// DiscrepancyFinding is one rule violation detected on one record during a
// single evaluation run. Findings are ephemeral: they are consumed by the
// reconciler and never persisted directly.
type DiscrepancyFinding struct {
	TrialID           string
	Domain            string
	Source            string
	RecordID          string
	DiscrepancyType   DiscrepancyType
	Severity          Severity
	Message           string
	AffectedFields    []string
	RecommendedAction string
}

// NaturalKey identifies the open-signal slot this finding maps to.
func (f DiscrepancyFinding) NaturalKey() string {
	return f.TrialID + "/" + f.Domain + "/" + f.Source + "/" + f.RecordID + "/" + string(f.DiscrepancyType)
}
