package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DomainRecord is one row of trial operational data as provided by the
// external ingestion subsystem. The workflow only reads it.
type DomainRecord struct {
	TrialID       string
	Domain        string
	Source        string
	RecordID      string
	Fields        map[string]any
	RecordVersion int64
	UpdatedAt     time.Time
}

// BatchKey returns the serialization key for this record's batch.
func (r DomainRecord) BatchKey() string {
	return r.TrialID + "/" + r.Domain + "/" + r.Source
}

// Has reports whether the field is present and non-empty.
func (r DomainRecord) Has(field string) bool {
	value, ok := r.Fields[field]
	if !ok || value == nil {
		return false
	}
	if text, isText := value.(string); isText {
		return strings.TrimSpace(text) != ""
	}
	return true
}

// String returns the field as a trimmed string, empty when absent.
func (r DomainRecord) String(field string) string {
	value, ok := r.Fields[field]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", typed))
	}
}

// Float parses the field as a number. JSONB values arrive either as
// float64 or as numeric strings depending on the source system.
func (r DomainRecord) Float(field string) (float64, error) {
	value, ok := r.Fields[field]
	if !ok || value == nil {
		return 0, fmt.Errorf("field %s is absent", field)
	}
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case json.Number:
		return typed.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, fmt.Errorf("field %s is not numeric: %q", field, typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("field %s is not numeric", field)
	}
}

// dateLayouts are tried in order when parsing date fields. Source systems
// deliver ISO dates with or without a time component.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Date parses the field as a calendar date or timestamp.
func (r DomainRecord) Date(field string) (time.Time, error) {
	raw := r.String(field)
	if raw == "" {
		return time.Time{}, fmt.Errorf("field %s is absent", field)
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("field %s is not a date: %q", field, raw)
}
