package models

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// RuleKind selects how a rule is evaluated.
type RuleKind string

const (
	RuleThreshold RuleKind = "threshold"
	RuleContains  RuleKind = "contains"
	RuleRegex     RuleKind = "regex"
	RuleExpr      RuleKind = "expr"
)

// Threshold operators.
const (
	OpGT         = ">"
	OpGTE        = ">="
	OpLT         = "<"
	OpLTE        = "<="
	OpEQ         = "=="
	OpNE         = "!="
	OpBetween    = "between"
	OpNotBetween = "not_between"
)

// ErrInvalidRule is returned by Rule.Validate.
var ErrInvalidRule = errors.New("invalid rule")

// Rule is a condition bound to one template. Active rules of a template are
// evaluated in ascending ID order and the first match wins.
type Rule struct {
	ID         int64    `json:"id" yaml:"-"`
	TemplateID int64    `json:"template_id" yaml:"template_id"`
	Kind       RuleKind `json:"kind" yaml:"kind"`
	// Field names the parameter to check. For contains/regex/expr it is optional.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	Op    string `json:"op,omitempty" yaml:"op,omitempty"`
	// Value and Value2 are the threshold bounds.
	Value  *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Value2 *float64 `json:"value2,omitempty" yaml:"value2,omitempty"`
	// Operand is the search text, regex, or expression for non-threshold kinds.
	Operand    string    `json:"operand,omitempty" yaml:"operand,omitempty"`
	Severity   Severity  `json:"severity" yaml:"severity"`
	IsAbnormal bool      `json:"is_abnormal" yaml:"abnormal"`
	Message    string    `json:"message,omitempty" yaml:"message,omitempty"`
	Active     bool      `json:"active" yaml:"active"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// NewRule returns an active, abnormal-on-match rule with critical severity.
func NewRule(templateID int64, kind RuleKind) *Rule {
	now := time.Now()
	return &Rule{
		TemplateID: templateID,
		Kind:       kind,
		Severity:   SeverityCritical,
		IsAbnormal: true,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks that the rule is complete for its kind. It is applied when
// rules are authored; evaluation never fails on a malformed stored rule.
func (r *Rule) Validate() error {
	if r.TemplateID <= 0 {
		return fmt.Errorf("%w: template id is required", ErrInvalidRule)
	}
	if r.Severity == SeverityNone {
		return fmt.Errorf("%w: severity is required", ErrInvalidRule)
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	switch r.Kind {
	case RuleThreshold:
		if r.Field == "" {
			return fmt.Errorf("%w: field is required for threshold rule", ErrInvalidRule)
		}
		if r.Value == nil {
			return fmt.Errorf("%w: value is required for threshold rule", ErrInvalidRule)
		}
		switch r.Op {
		case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNE:
		case OpBetween, OpNotBetween:
			if r.Value2 == nil {
				return fmt.Errorf("%w: value2 is required for %s", ErrInvalidRule, r.Op)
			}
		default:
			return fmt.Errorf("%w: invalid operator %q", ErrInvalidRule, r.Op)
		}
	case RuleContains:
		if r.Operand == "" {
			return fmt.Errorf("%w: search text is required for contains rule", ErrInvalidRule)
		}
		r.Op = "contains"
	case RuleRegex:
		if r.Operand == "" {
			return fmt.Errorf("%w: pattern is required for regex rule", ErrInvalidRule)
		}
		if _, err := regexp.Compile(r.Operand); err != nil {
			return fmt.Errorf("%w: invalid pattern %q: %v", ErrInvalidRule, r.Operand, err)
		}
		r.Op = "regex"
	case RuleExpr:
		if r.Operand == "" {
			return fmt.Errorf("%w: expression is required for expr rule", ErrInvalidRule)
		}
		r.Op = "expr"
	default:
		return fmt.Errorf("%w: invalid kind %q", ErrInvalidRule, r.Kind)
	}
	return nil
}

// Reason returns the configured message or a fallback naming the rule.
func (r *Rule) Reason() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("Rule %d matched", r.ID)
}
