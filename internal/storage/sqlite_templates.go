package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

type sqliteTemplateRepo struct {
	q Querier
}

const templateColumns = `id, regex, manual_regex, sample_message, label, severity, note,
	first_seen_at, last_seen_at, total_count, created_at, updated_at`

func (r *sqliteTemplateRepo) Create(ctx context.Context, t *models.Template) error {
	if t.Pattern.IsZero() {
		return fmt.Errorf("insert template: empty pattern")
	}
	auto, manual := t.Pattern.Columns()

	query := `
		INSERT INTO templates (regex, manual_regex, sample_message, label, severity, note,
			first_seen_at, last_seen_at, total_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.q.ExecContext(ctx, query,
		auto, manual, t.SampleMessage, string(t.Label), nullString(string(t.Severity)), nullString(t.Note),
		utc(t.FirstSeenAt), utc(t.LastSeenAt), t.TotalCount, utc(t.CreatedAt), utc(t.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("insert template: %w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("insert template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get template id: %w", err)
	}
	t.ID = id
	return nil
}

func (r *sqliteTemplateRepo) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = ?`
	return r.scanTemplate(r.q.QueryRowContext(ctx, query, id))
}

func (r *sqliteTemplateRepo) FindByRegex(ctx context.Context, regex string) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates
		WHERE regex = ? OR manual_regex = ? ORDER BY id LIMIT 1`
	return r.scanTemplate(r.q.QueryRowContext(ctx, query, regex, regex))
}

func (r *sqliteTemplateRepo) Touch(ctx context.Context, id int64, seenAt time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE templates SET total_count = total_count + 1, last_seen_at = ?, updated_at = ?
		WHERE id = ?
	`, utc(seenAt), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch template: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteTemplateRepo) Update(ctx context.Context, t *models.Template) error {
	if t.Pattern.IsZero() {
		return fmt.Errorf("update template: empty pattern")
	}
	auto, manual := t.Pattern.Columns()

	result, err := r.q.ExecContext(ctx, `
		UPDATE templates SET regex = ?, manual_regex = ?, label = ?, severity = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, auto, manual, string(t.Label), nullString(string(t.Severity)), nullString(t.Note), utc(t.UpdatedAt), t.ID)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("update template: %w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("update template: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("template %d: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (r *sqliteTemplateRepo) ListManual(ctx context.Context) ([]*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE manual_regex IS NOT NULL ORDER BY id`
	return r.queryTemplates(ctx, query)
}

func (r *sqliteTemplateRepo) List(ctx context.Context, filter TemplateFilter) ([]*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates`
	var args []any
	if filter.Label != "" {
		query += ` WHERE label = ?`
		args = append(args, string(filter.Label))
	}
	query += ` ORDER BY total_count DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return r.queryTemplates(ctx, query, args...)
}

func (r *sqliteTemplateRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates").Scan(&count); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return count, nil
}

func (r *sqliteTemplateRepo) CountByLabel(ctx context.Context) (map[models.Classification]int64, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT label, COUNT(*) FROM templates GROUP BY label")
	if err != nil {
		return nil, fmt.Errorf("count templates by label: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Classification]int64)
	for rows.Next() {
		var label string
		var n int64
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		counts[models.Classification(label)] = n
	}
	return counts, rows.Err()
}

func (r *sqliteTemplateRepo) queryTemplates(ctx context.Context, query string, args ...any) ([]*models.Template, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		t, err := scanTemplateRow(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *sqliteTemplateRepo) scanTemplate(row *sql.Row) (*models.Template, error) {
	t, err := scanTemplateRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func scanTemplateRow(row rowScanner) (*models.Template, error) {
	var t models.Template
	var auto, manual, severity, note sql.NullString
	var label string

	err := row.Scan(
		&t.ID, &auto, &manual, &t.SampleMessage, &label, &severity, &note,
		&t.FirstSeenAt, &t.LastSeenAt, &t.TotalCount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}

	var autoPtr, manualPtr *string
	if auto.Valid {
		autoPtr = &auto.String
	}
	if manual.Valid {
		manualPtr = &manual.String
	}
	pattern, err := models.PatternFromColumns(autoPtr, manualPtr)
	if err != nil {
		return nil, fmt.Errorf("template %d: %w", t.ID, err)
	}

	t.Pattern = pattern
	t.Label = models.Classification(label)
	t.Severity = models.Severity(severity.String)
	t.Note = note.String
	return &t, nil
}
