package models

import (
	"fmt"
	"time"
)

// PatternKind tells how a template's regex came to exist.
type PatternKind string

const (
	// PatternAuto is produced by the abstractor from an observed message.
	PatternAuto PatternKind = "auto"
	// PatternManual is hand-authored and may carry named captures.
	PatternManual PatternKind = "manual"
)

// Pattern is the regex identity of a template: exactly one of auto or manual.
// The zero value is invalid; build one with AutoPattern or ManualPattern.
type Pattern struct {
	kind  PatternKind
	regex string
}

// AutoPattern returns an auto-generated pattern.
func AutoPattern(regex string) Pattern {
	return Pattern{kind: PatternAuto, regex: regex}
}

// ManualPattern returns a hand-authored pattern.
func ManualPattern(regex string) Pattern {
	return Pattern{kind: PatternManual, regex: regex}
}

// PatternFromColumns rebuilds a Pattern from the two nullable storage columns.
func PatternFromColumns(auto, manual *string) (Pattern, error) {
	switch {
	case auto != nil && manual == nil:
		return AutoPattern(*auto), nil
	case auto == nil && manual != nil:
		return ManualPattern(*manual), nil
	case auto != nil && manual != nil:
		return Pattern{}, fmt.Errorf("template has both auto and manual regex")
	default:
		return Pattern{}, fmt.Errorf("template has neither auto nor manual regex")
	}
}

// Columns splits the pattern into the (auto, manual) column pair; the unused one is nil.
func (p Pattern) Columns() (auto, manual *string) {
	r := p.regex
	if p.kind == PatternManual {
		return nil, &r
	}
	return &r, nil
}

// Kind returns the pattern kind.
func (p Pattern) Kind() PatternKind { return p.kind }

// Regex returns the regular expression text.
func (p Pattern) Regex() string { return p.regex }

// IsManual reports whether the pattern was hand-authored.
func (p Pattern) IsManual() bool { return p.kind == PatternManual }

// IsZero reports whether the pattern was never set.
func (p Pattern) IsZero() bool { return p.kind == "" }

// Template is a stored structural fingerprint of a class of messages.
type Template struct {
	ID            int64          `json:"id"`
	Pattern       Pattern        `json:"-"`
	SampleMessage string         `json:"sample_message"`
	Label         Classification `json:"label"`
	Severity      Severity       `json:"severity,omitempty"`
	Note          string         `json:"note,omitempty"`
	FirstSeenAt   time.Time      `json:"first_seen_at"`
	LastSeenAt    time.Time      `json:"last_seen_at"`
	TotalCount    int64          `json:"total_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewAutoTemplate creates a template for a freshly observed message.
func NewAutoTemplate(regex, sample string, seenAt time.Time) *Template {
	return &Template{
		Pattern:       AutoPattern(regex),
		SampleMessage: sample,
		Label:         ClassNormal,
		FirstSeenAt:   seenAt,
		LastSeenAt:    seenAt,
		TotalCount:    1,
		CreatedAt:     seenAt,
		UpdatedAt:     seenAt,
	}
}

// RecordClassification is the classification a known record inherits from
// this template: the label, with unknown normalized to normal.
func (t *Template) RecordClassification() Classification {
	if t.Label == ClassUnknown || t.Label == "" {
		return ClassNormal
	}
	return t.Label
}
