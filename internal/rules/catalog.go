package rules

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog maps domain codes to their ordered rule lists.
type Catalog struct {
	domains map[string][]Rule
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{domains: make(map[string][]Rule)}
}

// Register appends rules to a domain's rule list.
func (c *Catalog) Register(domain string, rules ...Rule) {
	c.domains[domain] = append(c.domains[domain], rules...)
}

// Rules returns the ordered rule list for a domain; nil when the domain has
// no registered rules.
func (c *Catalog) Rules(domain string) []Rule {
	return c.domains[domain]
}

// Domains returns the sorted list of domain codes with registered rules.
func (c *Catalog) Domains() []string {
	names := make([]string, 0, len(c.domains))
	for name := range c.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog builds the built-in rule set. Field names follow the CDISC
// SDTM conventions used by the ingestion subsystem.
func DefaultCatalog() *Catalog {
	c := NewCatalog()

	// LB: laboratory results
	c.Register("LB",
		RequiredField("lb_test_code_present", "LBTESTCD", SeverityHigh,
			"Query the site for the missing lab test code."),
		RangeFromRecord("lb_result_in_range", "LBORRES", "LBSTNRLO", "LBSTNRHI", SeverityHigh,
			"Verify the result against the source document and confirm or correct the value."),
		DateNotFuture("lb_collection_date_valid", "LBDTC", SeverityMedium,
			"Correct the specimen collection date."),
		StaleData("lb_freshness", 30*24*time.Hour, SeverityLow,
			"Confirm with the site that lab data transfer is still active."),
	)

	// DM: demographics
	c.Register("DM",
		RequiredField("dm_subject_present", "SUBJID", SeverityCritical,
			"Reconcile the subject identifier with the enrollment log."),
		EnumMember("dm_sex_code_valid", "SEX", []string{"M", "F", "U"}, SeverityMedium,
			"Correct the sex code to a valid CDISC value."),
		DateNotFuture("dm_birth_date_valid", "BRTHDTC", SeverityHigh,
			"Correct the birth date; it cannot be in the future."),
	)

	// AE: adverse events
	c.Register("AE",
		RequiredField("ae_term_present", "AETERM", SeverityHigh,
			"Query the site for the missing adverse event term."),
		CrossFieldRequired("ae_severity_required", "AETERM", "AESEV", SeverityCritical,
			"Obtain the severity grade for the reported adverse event."),
		EnumMember("ae_severity_valid", "AESEV", []string{"MILD", "MODERATE", "SEVERE"}, SeverityMedium,
			"Correct the severity grade to a valid value."),
		DateNotBefore("ae_dates_ordered", "AEENDTC", "AESTDTC", SeverityHigh,
			"Verify the adverse event start and end dates with the site."),
	)

	// VS: vital signs
	c.Register("VS",
		RequiredField("vs_test_code_present", "VSTESTCD", SeverityHigh,
			"Query the site for the missing vital sign test code."),
		RangeFromRecord("vs_result_in_range", "VSORRES", "VSORNRLO", "VSORNRHI", SeverityHigh,
			"Verify the measurement against the source document."),
		StaleData("vs_freshness", 45*24*time.Hour, SeverityLow,
			"Confirm with the site that vitals data entry is current."),
	)

	// DV: protocol deviations
	c.Register("DV",
		RequiredField("dv_term_present", "DVTERM", SeverityHigh,
			"Query the site for the missing deviation description."),
		DateNotFuture("dv_date_valid", "DVDTC", SeverityMedium,
			"Correct the deviation date."),
	)

	return c
}

// overridesFile is the YAML schema for catalog overrides. Severity and
// disable adjustments let deployments tune the built-in defaults without a
// code change.
type overridesFile struct {
	Domains map[string]domainOverride `yaml:"domains"`
}

type domainOverride struct {
	Disable    []string          `yaml:"disable"`
	Severities map[string]string `yaml:"severities"`
}

// ApplyOverrides loads a YAML override file and adjusts the catalog in
// place. Unknown rule names are rejected so that typos fail loudly at
// startup rather than silently keeping defaults.
func (c *Catalog) ApplyOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rule overrides: %w", err)
	}

	var file overridesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse rule overrides: %w", err)
	}

	for domain, override := range file.Domains {
		rules, ok := c.domains[domain]
		if !ok {
			return fmt.Errorf("rule overrides: unknown domain %q", domain)
		}

		disabled := make(map[string]struct{}, len(override.Disable))
		for _, name := range override.Disable {
			if !ruleExists(rules, name) {
				return fmt.Errorf("rule overrides: unknown rule %q in domain %s", name, domain)
			}
			disabled[name] = struct{}{}
		}

		kept := make([]Rule, 0, len(rules))
		for _, rule := range rules {
			if _, skip := disabled[rule.Name]; skip {
				continue
			}
			if rawSeverity, ok := override.Severities[rule.Name]; ok {
				severity := Severity(rawSeverity)
				if !severity.Valid() {
					return fmt.Errorf("rule overrides: invalid severity %q for rule %s", rawSeverity, rule.Name)
				}
				rule.Severity = severity
			}
			kept = append(kept, rule)
		}
		for name := range override.Severities {
			if !ruleExists(rules, name) {
				return fmt.Errorf("rule overrides: unknown rule %q in domain %s", name, domain)
			}
		}
		c.domains[domain] = kept
	}

	return nil
}

func ruleExists(rules []Rule, name string) bool {
	for _, rule := range rules {
		if rule.Name == name {
			return true
		}
	}
	return false
}
