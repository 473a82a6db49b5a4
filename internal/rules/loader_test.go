package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

func TestLoadRules(t *testing.T) {
	input := `
rules:
  - template_id: 3
    kind: threshold
    field: available_bandwidth
    op: "<="
    value: 50.0
    severity: warning
    message: PCIe bandwidth below 50 Gb/s
  - template_id: 4
    kind: contains
    operand: Call Trace
  - template_id: 4
    kind: expr
    operand: 'params.temp > 90 && message contains "CPU"'
    abnormal: false
    active: false
`
	rules, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("got %d rules, want 3", len(rules))
	}

	th := rules[0]
	if th.Kind != models.RuleThreshold || th.Op != models.OpLTE || th.Value == nil || *th.Value != 50 {
		t.Errorf("threshold rule = %+v", th)
	}
	if th.Severity != models.SeverityWarning {
		t.Errorf("Severity = %q", th.Severity)
	}

	c := rules[1]
	if c.Severity != models.SeverityCritical || !c.IsAbnormal || !c.Active {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Op != "contains" {
		t.Errorf("Op = %q, want contains", c.Op)
	}

	x := rules[2]
	if x.IsAbnormal || x.Active {
		t.Errorf("explicit flags not kept: %+v", x)
	}
}

func TestLoadRules_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing field", "rules:\n  - template_id: 1\n    kind: threshold\n    op: '>'\n    value: 1\n"},
		{"between without value2", "rules:\n  - template_id: 1\n    kind: threshold\n    field: x\n    op: between\n    value: 1\n"},
		{"bad regex", "rules:\n  - template_id: 1\n    kind: regex\n    operand: '('\n"},
		{"bad expr", "rules:\n  - template_id: 1\n    kind: expr\n    operand: 'params.x >'\n"},
		{"bad kind", "rules:\n  - template_id: 1\n    kind: fuzzy\n    operand: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(tt.input))
			if !errors.Is(err, models.ErrInvalidRule) {
				t.Errorf("LoadRules() error = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestLoadRules_Empty(t *testing.T) {
	rules, err := LoadRules(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("got %d rules, want 0", len(rules))
	}
}
