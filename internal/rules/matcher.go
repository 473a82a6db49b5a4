package rules

import (
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// Epsilon is the tolerance for == and != threshold comparisons.
const Epsilon = 0.0001

// Input is what a rule is evaluated against.
type Input struct {
	Message string
	Params  map[string]models.Parameter
}

// Matcher evaluates single rules. Compiled regex and expr operands are
// cached; operands that fail to compile are cached as nil and never match.
type Matcher struct {
	mu       sync.Mutex
	regexes  map[string]*regexp.Regexp
	programs map[string]*vm.Program
}

// NewMatcher creates a new Matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		regexes:  make(map[string]*regexp.Regexp),
		programs: make(map[string]*vm.Program),
	}
}

// MatchThreshold compares a numeric parameter against the rule bounds.
// A missing field, a non-numeric value or a missing bound never matches.
func (m *Matcher) MatchThreshold(rule *models.Rule, in Input) bool {
	p, ok := in.Params[rule.Field]
	if !ok || p.Num == nil || rule.Value == nil {
		return false
	}
	v, a := *p.Num, *rule.Value

	switch rule.Op {
	case models.OpGT:
		return v > a
	case models.OpGTE:
		return v >= a
	case models.OpLT:
		return v < a
	case models.OpLTE:
		return v <= a
	case models.OpEQ:
		return math.Abs(v-a) < Epsilon
	case models.OpNE:
		return math.Abs(v-a) >= Epsilon
	case models.OpBetween:
		if rule.Value2 == nil {
			return false
		}
		return v >= a && v <= *rule.Value2
	case models.OpNotBetween:
		if rule.Value2 == nil {
			return false
		}
		return v < a || v > *rule.Value2
	default:
		return false
	}
}

// MatchContains checks for a literal substring in the message, or in one
// parameter's text when the rule names a field.
func (m *Matcher) MatchContains(rule *models.Rule, in Input) bool {
	if rule.Operand == "" {
		return false
	}
	target := in.Message
	if rule.Field != "" {
		p, ok := in.Params[rule.Field]
		if !ok {
			return false
		}
		target = p.Text
	}
	return strings.Contains(target, rule.Operand)
}

// MatchRegex searches the message, or the named parameter's text when the
// field is set and present.
func (m *Matcher) MatchRegex(rule *models.Rule, in Input) bool {
	re := m.regex(rule.Operand)
	if re == nil {
		return false
	}
	target := in.Message
	if rule.Field != "" {
		if p, ok := in.Params[rule.Field]; ok {
			target = p.Text
		}
	}
	return re.MatchString(target)
}

// MatchExpr runs a boolean expr-lang expression over message and params.
// Compile or runtime errors never match.
func (m *Matcher) MatchExpr(rule *models.Rule, in Input) bool {
	program := m.program(rule.Operand)
	if program == nil {
		return false
	}

	result, err := expr.Run(program, buildEnv(in))
	if err != nil {
		return false
	}
	matched, ok := result.(bool)
	return ok && matched
}

func (m *Matcher) regex(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.regexes[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	m.regexes[pattern] = re
	return re
}

func (m *Matcher) program(expression string) *vm.Program {
	if expression == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.programs[expression]; ok {
		return p
	}
	p, err := CompileExpr(expression)
	if err != nil {
		p = nil
	}
	m.programs[expression] = p
	return p
}

// CompileExpr type-checks a rule expression against the evaluation
// environment. Expressions see `message` (string) and `params` (map of
// parameter name to number or text).
//
//	params.available_bandwidth <= 50 && message contains "PCIe"
func CompileExpr(expression string) (*vm.Program, error) {
	sampleEnv := map[string]any{
		"message": "",
		"params":  map[string]any{},
	}
	return expr.Compile(expression, expr.Env(sampleEnv), expr.AsBool())
}

func buildEnv(in Input) map[string]any {
	params := make(map[string]any, len(in.Params))
	for name, p := range in.Params {
		params[name] = p.Value()
	}
	return map[string]any{
		"message": in.Message,
		"params":  params,
	}
}
