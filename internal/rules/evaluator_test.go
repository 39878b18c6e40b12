package rules

import (
	"testing"
	"time"
)

func TestEvaluate_OutOfRangeLabResult(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())

	record := DomainRecord{
		TrialID:  "CT-001",
		Domain:   "LB",
		Source:   "EDC",
		RecordID: "LB-0001",
		Fields: map[string]any{
			"LBTESTCD": "HGB",
			"LBORRES":  "25.5",
			"LBSTNRLO": "13.0",
			"LBSTNRHI": "17.0",
		},
		UpdatedAt: time.Now(),
	}

	findings := evaluator.Evaluate("LB", record, time.Now())
	if len(findings) != 1 {
		t.Fatalf("expected exactly one finding, got %d: %+v", len(findings), findings)
	}

	finding := findings[0]
	if finding.DiscrepancyType != TypeOutOfRange {
		t.Fatalf("expected out_of_range, got %s", finding.DiscrepancyType)
	}
	if finding.Severity != SeverityHigh {
		t.Fatalf("expected high severity, got %s", finding.Severity)
	}
	if finding.RecordID != "LB-0001" || finding.TrialID != "CT-001" {
		t.Fatalf("finding lost record identity: %+v", finding)
	}
}

func TestEvaluate_CompliantRecordYieldsNothing(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())

	record := DomainRecord{
		TrialID:  "CT-001",
		Domain:   "LB",
		Source:   "EDC",
		RecordID: "LB-0001",
		Fields: map[string]any{
			"LBTESTCD": "HGB",
			"LBORRES":  "15.0",
			"LBSTNRLO": "13.0",
			"LBSTNRHI": "17.0",
		},
		UpdatedAt: time.Now(),
	}

	if findings := evaluator.Evaluate("LB", record, time.Now()); len(findings) != 0 {
		t.Fatalf("expected no findings for compliant record, got %+v", findings)
	}
}

func TestEvaluate_MultipleIndependentFindingsSortedBySeverity(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())

	// Missing AESEV (critical cross-field) and reversed dates (high).
	record := DomainRecord{
		TrialID:  "CT-001",
		Domain:   "AE",
		Source:   "EDC",
		RecordID: "AE-0042",
		Fields: map[string]any{
			"AETERM":  "Nausea",
			"AESTDTC": "2026-04-10",
			"AEENDTC": "2026-04-01",
		},
		UpdatedAt: time.Now(),
	}

	findings := evaluator.Evaluate("AE", record, time.Now())
	if len(findings) != 2 {
		t.Fatalf("expected two findings, got %d: %+v", len(findings), findings)
	}
	if findings[0].Severity != SeverityCritical {
		t.Fatalf("expected critical finding first, got %s", findings[0].Severity)
	}
	if findings[1].Severity != SeverityHigh {
		t.Fatalf("expected high finding second, got %s", findings[1].Severity)
	}
}

func TestEvaluate_MalformedFieldBecomesFinding(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())

	record := DomainRecord{
		TrialID:  "CT-001",
		Domain:   "LB",
		Source:   "EDC",
		RecordID: "LB-0007",
		Fields: map[string]any{
			"LBTESTCD": "HGB",
			"LBORRES":  "twenty-five",
			"LBSTNRLO": "13.0",
			"LBSTNRHI": "17.0",
		},
		UpdatedAt: time.Now(),
	}

	findings := evaluator.Evaluate("LB", record, time.Now())
	if len(findings) != 1 {
		t.Fatalf("expected one malformed_data finding, got %d: %+v", len(findings), findings)
	}
	if findings[0].DiscrepancyType != TypeMalformedData {
		t.Fatalf("expected malformed_data, got %s", findings[0].DiscrepancyType)
	}
	if findings[0].Severity != SeverityHigh {
		t.Fatalf("expected high severity for malformed data, got %s", findings[0].Severity)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())

	record := DomainRecord{
		TrialID:  "CT-001",
		Domain:   "AE",
		Source:   "EDC",
		RecordID: "AE-0042",
		Fields: map[string]any{
			"AETERM":  "Nausea",
			"AESTDTC": "2026-04-10",
			"AEENDTC": "2026-04-01",
		},
		UpdatedAt: time.Now(),
	}

	now := time.Now()
	first := evaluator.Evaluate("AE", record, now)
	second := evaluator.Evaluate("AE", record, now)
	if len(first) != len(second) {
		t.Fatalf("evaluation not deterministic: %d vs %d findings", len(first), len(second))
	}
	for i := range first {
		if first[i].DiscrepancyType != second[i].DiscrepancyType || first[i].Message != second[i].Message {
			t.Fatalf("evaluation not deterministic at index %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestEvaluate_UnknownDomain(t *testing.T) {
	evaluator := NewEvaluator(DefaultCatalog())
	record := DomainRecord{TrialID: "CT-001", Domain: "XX", Source: "EDC", RecordID: "1"}

	if findings := evaluator.Evaluate("XX", record, time.Now()); findings != nil {
		t.Fatalf("expected nil findings for unknown domain, got %+v", findings)
	}
}
