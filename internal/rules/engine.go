// Package rules classifies log records by evaluating per-template rules.
package rules

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/extractor"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/metrics"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

// Verdict is the outcome of the first matching rule.
type Verdict struct {
	RuleID         int64
	Classification models.Classification
	Severity       models.Severity
	Reason         string
	// IsAbnormal is the matching rule's flag. Classification is abnormal
	// on every match regardless of it.
	IsAbnormal bool
}

type evaluator func(m *Matcher, rule *models.Rule, in Input) bool

var evaluators = map[models.RuleKind]evaluator{
	models.RuleThreshold: (*Matcher).MatchThreshold,
	models.RuleContains:  (*Matcher).MatchContains,
	models.RuleRegex:     (*Matcher).MatchRegex,
	models.RuleExpr:      (*Matcher).MatchExpr,
}

// Engine evaluates rules in id order; the first match wins.
type Engine struct {
	matcher *Matcher
	logger  *zap.Logger
	stats   *EngineStats
}

// EngineStats tracks engine statistics using atomic operations for lock-free access.
type EngineStats struct {
	Evaluations atomic.Int64
	Matches     atomic.Int64
}

// NewEngine creates a new rule engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		matcher: NewMatcher(),
		logger:  logger,
		stats:   &EngineStats{},
	}
}

// Stats returns the engine statistics.
func (e *Engine) Stats() *EngineStats {
	return e.stats
}

// Evaluate runs rules in the given order and returns the verdict of the
// first active match, or nil.
func (e *Engine) Evaluate(rules []*models.Rule, in Input) *Verdict {
	e.stats.Evaluations.Add(1)

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		eval, ok := evaluators[rule.Kind]
		if !ok {
			e.logger.Debug("skipping rule with unknown kind",
				zap.Int64("rule_id", rule.ID), zap.String("kind", string(rule.Kind)))
			continue
		}
		if !eval(e.matcher, rule, in) {
			continue
		}

		e.stats.Matches.Add(1)
		metrics.RuleMatchesTotal.WithLabelValues(string(rule.Kind), string(rule.Severity)).Inc()
		return &Verdict{
			RuleID:         rule.ID,
			Classification: models.ClassAbnormal,
			Severity:       rule.Severity,
			Reason:         rule.Reason(),
			IsAbnormal:     rule.IsAbnormal,
		}
	}
	return nil
}

// Classify evaluates the template's active rules against a stored record
// and its parameters. It returns nil when the template has no active rules
// or no rule matches; the record is not modified here.
func (e *Engine) Classify(ctx context.Context, repos storage.Repositories, recordID, templateID int64) (*Verdict, error) {
	rules, err := repos.Rules().ListActiveByTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	rec, err := repos.Records().GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	params, err := repos.Params().ListByRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load params: %w", err)
	}

	return e.Evaluate(rules, Input{
		Message: rec.Message,
		Params:  extractor.AsMap(params),
	}), nil
}
