package service

import (
	"fmt"
	"os"
	"time"

	"trialops_backend/internal/rules"

	"gopkg.in/yaml.v3"
)

// Assignment names who owns a task and who else should hear about it.
type Assignment struct {
	Role       string
	AlsoNotify []string
}

// WorkflowMapping decides role routing and due dates for materialized tasks.
type WorkflowMapping struct {
	defaultRole string
	byDomain    map[string]Assignment
	byType      map[rules.DiscrepancyType]Assignment
	dueOffsets  map[rules.Severity]time.Duration
}

// DefaultWorkflowMapping routes lab and vitals range problems to data
// management, safety domains to the medical monitor, and everything else
// to the data manager.
func DefaultWorkflowMapping() *WorkflowMapping {
	return &WorkflowMapping{
		defaultRole: "Data Manager",
		byDomain: map[string]Assignment{
			"AE": {Role: "Medical Monitor", AlsoNotify: []string{"Principal Investigator"}},
			"DV": {Role: "Clinical Research Associate"},
		},
		byType: map[rules.DiscrepancyType]Assignment{
			rules.TypeOutOfRange: {Role: "Data Manager", AlsoNotify: []string{"Medical Monitor"}},
		},
		dueOffsets: map[rules.Severity]time.Duration{
			rules.SeverityCritical: 24 * time.Hour,
			rules.SeverityHigh:     3 * 24 * time.Hour,
			rules.SeverityMedium:   7 * 24 * time.Hour,
			rules.SeverityLow:      14 * 24 * time.Hour,
		},
	}
}

// Assign resolves the owning role for a finding. Domain routing wins over
// discrepancy-type routing so safety domains always reach their monitor.
func (m *WorkflowMapping) Assign(domain string, discrepancyType rules.DiscrepancyType) Assignment {
	if a, ok := m.byDomain[domain]; ok {
		return a
	}
	if a, ok := m.byType[discrepancyType]; ok {
		return a
	}
	return Assignment{Role: m.defaultRole}
}

// DueDate computes when a task of the given severity is due.
func (m *WorkflowMapping) DueDate(severity rules.Severity, now time.Time) time.Time {
	offset, ok := m.dueOffsets[severity]
	if !ok {
		offset = 14 * 24 * time.Hour
	}
	return now.Add(offset)
}

type mappingFile struct {
	DefaultRole string                       `yaml:"default_role"`
	Domains     map[string]mappingAssignment `yaml:"domains"`
	Types       map[string]mappingAssignment `yaml:"discrepancy_types"`
	DueDays     map[string]int               `yaml:"due_days"`
}

type mappingAssignment struct {
	Role       string   `yaml:"role"`
	AlsoNotify []string `yaml:"also_notify"`
}

// LoadOverrides layers a deployment's mapping file over the defaults.
// Unknown severities in due_days are rejected; unknown domains are allowed
// since trials carry sponsor-specific domains.
func (m *WorkflowMapping) LoadOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read workflow mapping %s: %w", path, err)
	}

	var file mappingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse workflow mapping %s: %w", path, err)
	}

	if file.DefaultRole != "" {
		m.defaultRole = file.DefaultRole
	}
	for domain, a := range file.Domains {
		if a.Role == "" {
			return fmt.Errorf("workflow mapping %s: domain %q has no role", path, domain)
		}
		m.byDomain[domain] = Assignment{Role: a.Role, AlsoNotify: a.AlsoNotify}
	}
	for name, a := range file.Types {
		if a.Role == "" {
			return fmt.Errorf("workflow mapping %s: discrepancy type %q has no role", path, name)
		}
		m.byType[rules.DiscrepancyType(name)] = Assignment{Role: a.Role, AlsoNotify: a.AlsoNotify}
	}
	for name, days := range file.DueDays {
		severity := rules.Severity(name)
		if !severity.Valid() {
			return fmt.Errorf("workflow mapping %s: unknown severity %q", path, name)
		}
		if days <= 0 {
			return fmt.Errorf("workflow mapping %s: due_days for %q must be positive", path, name)
		}
		m.dueOffsets[severity] = time.Duration(days) * 24 * time.Hour
	}
	return nil
}
