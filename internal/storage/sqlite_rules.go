package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

type sqliteRuleRepo struct {
	q Querier
}

const ruleColumns = `id, template_id, kind, field_name, op, value1, value2, operand,
	severity, is_abnormal, message, is_active, created_at, updated_at`

func (r *sqliteRuleRepo) Create(ctx context.Context, rule *models.Rule) error {
	query := `
		INSERT INTO rules (template_id, kind, field_name, op, value1, value2, operand,
			severity, is_abnormal, message, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.q.ExecContext(ctx, query,
		rule.TemplateID, string(rule.Kind), nullString(rule.Field), nullString(rule.Op),
		nullFloat(rule.Value), nullFloat(rule.Value2), nullString(rule.Operand),
		string(rule.Severity), boolToInt(rule.IsAbnormal), nullString(rule.Message),
		boolToInt(rule.Active), utc(rule.CreatedAt), utc(rule.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get rule id: %w", err)
	}
	rule.ID = id
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, id int64) (*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`
	rule, err := scanRule(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rule, err
}

func (r *sqliteRuleRepo) ListActiveByTemplate(ctx context.Context, templateID int64) ([]*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE template_id = ? AND is_active = 1 ORDER BY id`
	return r.queryRules(ctx, query, templateID)
}

func (r *sqliteRuleRepo) ListByTemplate(ctx context.Context, templateID int64) ([]*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE template_id = ? ORDER BY id`
	return r.queryRules(ctx, query, templateID)
}

func (r *sqliteRuleRepo) List(ctx context.Context) ([]*models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules ORDER BY template_id, id`
	return r.queryRules(ctx, query)
}

func (r *sqliteRuleRepo) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE rules SET is_active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteRuleRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteRuleRepo) queryRules(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var rule models.Rule
	var kind, severity string
	var field, op, operand, message sql.NullString
	var v1, v2 sql.NullFloat64
	var abnormal, active int

	err := row.Scan(
		&rule.ID, &rule.TemplateID, &kind, &field, &op, &v1, &v2, &operand,
		&severity, &abnormal, &message, &active, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	rule.Kind = models.RuleKind(kind)
	rule.Field = field.String
	rule.Op = op.String
	rule.Value = floatPtr(v1)
	rule.Value2 = floatPtr(v2)
	rule.Operand = operand.String
	rule.Severity = models.Severity(severity)
	rule.IsAbnormal = abnormal == 1
	rule.Message = message.String
	rule.Active = active == 1
	return &rule, nil
}
