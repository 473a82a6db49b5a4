// Package models contains the core data structures for log monitoring.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Classification is the verdict attached to a LogRecord.
type Classification string

const (
	ClassNormal   Classification = "normal"
	ClassAbnormal Classification = "abnormal"
	ClassUnknown  Classification = "unknown"
	ClassIgnore   Classification = "ignore"
)

// Severity is the optional importance attached to templates, records and rules.
// The empty Severity means "not set" and is stored as NULL.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityUnknown  Severity = "unknown"
)

// Validation errors.
var (
	ErrInvalidLabel    = errors.New("invalid label")
	ErrInvalidSeverity = errors.New("invalid severity")
)

// ParseClassification converts a string to a Classification.
// It accepts the same values as template labels.
func ParseClassification(s string) (Classification, error) {
	switch Classification(s) {
	case ClassNormal, ClassAbnormal, ClassUnknown, ClassIgnore:
		return Classification(s), nil
	default:
		return "", fmt.Errorf("%w %q: must be one of normal, abnormal, unknown, ignore", ErrInvalidLabel, s)
	}
}

// ParseSeverity converts a string to a Severity. The empty string is valid and means no severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityNone, SeverityInfo, SeverityWarning, SeverityCritical, SeverityUnknown:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("%w %q: must be one of info, warning, critical, unknown", ErrInvalidSeverity, s)
	}
}

// NeedsAlert reports whether a record with this classification gets an Alert.
func (c Classification) NeedsAlert() bool {
	return c == ClassAbnormal || c == ClassUnknown
}

// ParsedLine is the output of the line-splitting collaborator.
type ParsedLine struct {
	Timestamp time.Time
	Host      string
	Component string
	Message   string
	Raw       string
}

// LogRecord is one ingested line.
type LogRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host,omitempty"`
	Component string    `json:"component,omitempty"`
	RawLine   string    `json:"raw_line"`
	Message   string    `json:"message"`

	// TemplateID is zero when the record is not bound to any template.
	TemplateID     int64          `json:"template_id,omitempty"`
	IsKnown        bool           `json:"is_known"`
	IsManualMapped bool           `json:"is_manually_mapped"`
	Classification Classification `json:"classification"`
	Severity       Severity       `json:"severity,omitempty"`
	AnomalyReason  string         `json:"anomaly_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Parameter is a named value extracted from a record's message.
type Parameter struct {
	Name string   `json:"name"`
	Num  *float64 `json:"num,omitempty"`
	Text string   `json:"text"`
}

// Value returns the numeric value when present, otherwise the text.
func (p Parameter) Value() any {
	if p.Num != nil {
		return *p.Num
	}
	return p.Text
}
