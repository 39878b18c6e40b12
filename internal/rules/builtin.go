package rules

import (
	"fmt"
	"strings"
	"time"
)

// RequiredField checks that a field is present and non-empty.
func RequiredField(name, field string, severity Severity, recommend string) Rule {
	return Rule{
		Name:            name,
		DiscrepancyType: TypeMissingField,
		Severity:        severity,
		Fields:          []string{field},
		Check: func(record DomainRecord, _ time.Time) (*Violation, error) {
			if record.Has(field) {
				return nil, nil
			}
			return &Violation{
				Message:           fmt.Sprintf("required field %s is missing or empty", field),
				RecommendedAction: recommend,
			}, nil
		},
	}
}

// RangeFromRecord checks a numeric field against low/high bounds carried on
// the record itself (e.g. a lab result against its own normal range).
// Bounds are inclusive; a value is out of range when it is strictly below
// the low bound or strictly above the high bound. Records without bounds
// are skipped, not flagged.
func RangeFromRecord(name, valueField, lowField, highField string, severity Severity, recommend string) Rule {
	return Rule{
		Name:            name,
		DiscrepancyType: TypeOutOfRange,
		Severity:        severity,
		Fields:          []string{valueField, lowField, highField},
		Check: func(record DomainRecord, _ time.Time) (*Violation, error) {
			if !record.Has(valueField) {
				return nil, nil
			}
			if !record.Has(lowField) || !record.Has(highField) {
				return nil, nil
			}

			value, err := record.Float(valueField)
			if err != nil {
				return nil, err
			}
			low, err := record.Float(lowField)
			if err != nil {
				return nil, err
			}
			high, err := record.Float(highField)
			if err != nil {
				return nil, err
			}

			if value < low || value > high {
				return &Violation{
					Message: fmt.Sprintf("%s value %v is outside reference range [%v, %v]",
						valueField, record.String(valueField), record.String(lowField), record.String(highField)),
					AffectedFields:    []string{valueField},
					RecommendedAction: recommend,
				}, nil
			}
			return nil, nil
		},
	}
}

// StaticRange checks a numeric field against fixed inclusive bounds.
func StaticRange(name, field string, low, high float64, severity Severity, recommend string) Rule {
	return Rule{
		Name:            name,
		DiscrepancyType: TypeOutOfRange,
		Severity:        severity,
		Fields:          []string{field},
		Check: func(record DomainRecord, _ time.Time) (*Violation, error) {
			if !record.Has(field) {
				return nil, nil
			}
			value, err := record.Float(field)
			if err != nil {
				return nil, err
			}
			if value < low || value > high {
				return &Violation{
					Message:           fmt.Sprintf("%s value %v is outside plausible range [%v, %v]", field, value, low, high),
					RecommendedAction: recommend,
				}, nil
			}
			return nil, nil
		},
	}
}

// EnumMember checks that a field value belongs to an allowed value set.
// Comparison is case-insensitive; absent fields are skipped (use
// RequiredField for presence).
func EnumMember(name, field string, allowed []string, severity Severity, recommend string) Rule {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, value := range allowed {
		allowedSet[strings.ToUpper(value)] = struct{}{}
	}

	return Rule{
		Name:            name,
		DiscrepancyType: TypeInvalidValue,
		Severity:        severity,
		Fields:          []string{field},
		Check: func(record DomainRecord, _ time.Time) (*Violation, error) {
			if !record.Has(field) {
				return nil, nil
			}
			value := record.String(field)
			if _, ok := allowedSet[strings.ToUpper(value)]; ok {
				return nil, nil
			}
			return &Violation{
				Message:           fmt.Sprintf("%s value %q is not one of the allowed codes (%s)", field, value, strings.Join(allowed, ", ")),
				RecommendedAction: recommend,
			}, nil
		},
	}
}

// DateNotBefore checks that one date field does not precede another
// (e.g. an end date before its start date). Skipped unless both are present.
func DateNotBefore(name, laterField, earlierField string, severity Severity, recommend string) Rule {
	return Rule{
		Name:            name,
		DiscrepancyType: TypeCrossField,
		Severity:        severity,
		Fields:          []string{laterField, earlierField},
		Check: func(record DomainRecord, _ time.Time) (*Violation, error) {
			if !record.Has(laterField) || !record.Has(earlierField) {
				return nil, nil
			}
			later, err := record.Date(laterField)
			if err != nil {
				return nil, err
			}
			earlier, err := record.Date(earlierField)
			if err != nil {
				return nil, err
			}
			if later.Before(earlier) {
				return &Violation{
					Message:           fmt.Sprintf("%s (%s) is before %s (%s)", laterField, record.String(laterField), earlierField, record.String(earlierField)),
					RecommendedAction: recommend,
				}, nil
			}
			return nil, nil
		},
	}
}

// DateNotFuture checks that a date field is not after the evaluation time.
func DateNotFuture(name, field string, severity Severity, recommend string) Rule {
	return Rule{
		Name:            name,
		DiscrepancyType: TypeInvalidValue,
		Severity:        severity,
		Fields:          []string{field},
		Check: func(record DomainRecord, now time.Time) (*Violation, error) {
			if !record.Has(field) {
				return nil, nil
			}
			value, err := record.Date(field)
			if err != nil {
				return nil, err
			}
			if value.After(now) {
				return &Violation{
					Message:           fmt.Sprintf("%s (%s) is in the future", field, record.String(field)),
					RecommendedAction: recommend,
				}, nil
			}
			return nil, nil
		},
	}
}

// CrossFieldRequired checks that a dependent field is present whenever a
// trigger field is (e.g. severity grade required once an adverse-event term
// is reported).
func CrossFieldRequired(name, whenField, thenField string, severity Severity, recommend string) Rule {
	return Rule{
		Name:            name,
		DiscrepancyType: TypeCrossField,
		Severity:        severity,
		Fields:          []string{whenField, thenField},
		Check: func(record DomainRecord, _ time.Time) (*Violation, error) {
			if !record.Has(whenField) || record.Has(thenField) {
				return nil, nil
			}
			return &Violation{
				Message:           fmt.Sprintf("%s is reported but %s is missing", whenField, thenField),
				AffectedFields:    []string{thenField},
				RecommendedAction: recommend,
			}, nil
		},
	}
}

// StaleData flags records that have not been updated within the freshness
// window for their domain.
func StaleData(name string, maxAge time.Duration, severity Severity, recommend string) Rule {
	return Rule{
		Name:            name,
		DiscrepancyType: TypeStaleData,
		Severity:        severity,
		Check: func(record DomainRecord, now time.Time) (*Violation, error) {
			if record.UpdatedAt.IsZero() {
				return nil, nil
			}
			age := now.Sub(record.UpdatedAt)
			if age <= maxAge {
				return nil, nil
			}
			return &Violation{
				Message:           fmt.Sprintf("record has not been updated for %s (freshness window %s)", age.Round(time.Hour), maxAge),
				RecommendedAction: recommend,
			}, nil
		},
	}
}
