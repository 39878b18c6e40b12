// Package service implements the detection workflow: evaluating domain
// records against the rule catalog, reconciling findings with live signals,
// and materializing tasks for the resulting work.
package service

import (
	"sort"

	"trialops_backend/internal/detection/repository"
	"trialops_backend/internal/rules"
)

// SignalUpdate carries the new state for a live signal whose finding
// changed since the previous run.
type SignalUpdate struct {
	Signal  repository.Signal
	Finding rules.DiscrepancyFinding
}

// Plan is the diff between the current findings of a batch and its live
// signals. Applying it brings persisted state in line with the data.
type Plan struct {
	Creates  []rules.DiscrepancyFinding
	Updates  []SignalUpdate
	Resolves []repository.Signal
}

// Empty reports whether the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Resolves) == 0
}

// Reconcile diffs fresh findings against the batch's live signals.
// It is pure: no I/O, no clock, no randomness.
//
//   - A finding with no live signal on its natural key becomes a create.
//   - A finding whose live signal differs in severity or observation becomes
//     an update in place; identical pairs produce no action.
//   - A live signal with no matching finding resolves.
//
// Duplicate findings on one natural key keep only the most severe.
func Reconcile(findings []rules.DiscrepancyFinding, open []repository.Signal) Plan {
	byKey := make(map[string]rules.DiscrepancyFinding, len(findings))
	for _, f := range findings {
		key := f.NaturalKey()
		if prev, ok := byKey[key]; ok && prev.Severity.Rank() <= f.Severity.Rank() {
			continue
		}
		byKey[key] = f
	}

	var plan Plan
	matched := make(map[string]bool, len(open))

	for _, sig := range open {
		key := naturalKeyOf(sig)
		finding, ok := byKey[key]
		if !ok {
			plan.Resolves = append(plan.Resolves, sig)
			continue
		}
		matched[key] = true
		if sig.Priority != string(finding.Severity) || sig.Observation != finding.Message {
			plan.Updates = append(plan.Updates, SignalUpdate{Signal: sig, Finding: finding})
		}
	}

	for key, finding := range byKey {
		if !matched[key] {
			plan.Creates = append(plan.Creates, finding)
		}
	}

	sort.Slice(plan.Creates, func(i, j int) bool {
		a, b := plan.Creates[i], plan.Creates[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return a.DiscrepancyType < b.DiscrepancyType
	})
	sort.Slice(plan.Updates, func(i, j int) bool {
		return naturalKeyOf(plan.Updates[i].Signal) < naturalKeyOf(plan.Updates[j].Signal)
	})
	sort.Slice(plan.Resolves, func(i, j int) bool {
		return naturalKeyOf(plan.Resolves[i]) < naturalKeyOf(plan.Resolves[j])
	})

	return plan
}

func naturalKeyOf(s repository.Signal) string {
	return s.TrialID + "/" + s.Domain + "/" + s.Source + "/" + s.RecordID + "/" + s.DiscrepancyType
}
