package rules

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

// LoadRulesFromFile loads rules from a YAML file.
func LoadRulesFromFile(path string) ([]*models.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadRules(f)
}

// LoadRules loads rules from a reader. Omitted severity defaults to
// critical and omitted abnormal/active flags default to true.
//
//	rules:
//	  - template_id: 12
//	    kind: threshold
//	    field: available_bandwidth
//	    op: "<="
//	    value: 50
//	    severity: warning
//	    message: PCIe bandwidth below 50 Gb/s
func LoadRules(r io.Reader) ([]*models.Rule, error) {
	var doc struct {
		Rules []yaml.Node `yaml:"rules"`
	}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	rules := make([]*models.Rule, 0, len(doc.Rules))
	for i := range doc.Rules {
		rule := models.NewRule(0, "")
		if err := doc.Rules[i].Decode(rule); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		if err := Validate(rule); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// Validate checks a rule's shape and, for expr rules, that the expression
// compiles against the evaluation environment.
func Validate(rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.Kind == models.RuleExpr {
		if _, err := CompileExpr(rule.Operand); err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidRule, err)
		}
	}
	return nil
}

// Add validates rule, checks its template exists and stores it.
func Add(ctx context.Context, repos storage.Repositories, rule *models.Rule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	tmpl, err := repos.Templates().GetByID(ctx, rule.TemplateID)
	if err != nil {
		return fmt.Errorf("get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template %d: %w", rule.TemplateID, storage.ErrNotFound)
	}
	return repos.Rules().Create(ctx, rule)
}
