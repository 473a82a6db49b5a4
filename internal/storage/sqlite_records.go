package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

type sqliteRecordRepo struct {
	q Querier
}

var recordFields = []string{
	"id", "run_id", "ts", "host", "component", "raw_line", "message", "template_id",
	"is_known", "is_manually_mapped", "classification", "severity", "anomaly_reason",
	"created_at", "updated_at",
}

func columns(alias string, fields []string) string {
	if alias == "" {
		return strings.Join(fields, ", ")
	}
	prefixed := make([]string, len(fields))
	for i, f := range fields {
		prefixed[i] = alias + "." + f
	}
	return strings.Join(prefixed, ", ")
}

func (r *sqliteRecordRepo) Create(ctx context.Context, rec *models.LogRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	query := `
		INSERT INTO log_records (run_id, ts, host, component, raw_line, message, template_id,
			is_known, is_manually_mapped, classification, severity, anomaly_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.q.ExecContext(ctx, query,
		nullString(rec.RunID), utc(rec.Timestamp), nullString(rec.Host), nullString(rec.Component),
		rec.RawLine, rec.Message, nullInt64(rec.TemplateID),
		boolToInt(rec.IsKnown), boolToInt(rec.IsManualMapped), string(rec.Classification),
		nullString(string(rec.Severity)), nullString(rec.AnomalyReason),
		utc(rec.CreatedAt), utc(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert log record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get log record id: %w", err)
	}
	rec.ID = id
	return nil
}

func (r *sqliteRecordRepo) GetByID(ctx context.Context, id int64) (*models.LogRecord, error) {
	query := `SELECT ` + columns("", recordFields) + ` FROM log_records WHERE id = ?`
	rec, err := scanRecord(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *sqliteRecordRepo) Update(ctx context.Context, rec *models.LogRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, `
		UPDATE log_records SET template_id = ?, is_known = ?, is_manually_mapped = ?,
			classification = ?, severity = ?, anomaly_reason = ?, updated_at = ?
		WHERE id = ?
	`, nullInt64(rec.TemplateID), boolToInt(rec.IsKnown), boolToInt(rec.IsManualMapped),
		string(rec.Classification), nullString(string(rec.Severity)), nullString(rec.AnomalyReason),
		rec.UpdatedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("update log record: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("log record %d: %w", rec.ID, ErrNotFound)
	}
	return nil
}

func (r *sqliteRecordRepo) UpdateClassification(ctx context.Context, id int64, class models.Classification, severity models.Severity, reason string) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE log_records SET classification = ?, severity = ?, anomaly_reason = ?, updated_at = ?
		WHERE id = ?
	`, string(class), nullString(string(severity)), nullString(reason), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("log record %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteRecordRepo) RelabelByTemplate(ctx context.Context, templateID int64, class models.Classification, severity models.Severity) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE log_records SET classification = ?, severity = ?, updated_at = ?
		WHERE template_id = ?
	`, string(class), nullString(string(severity)), time.Now().UTC(), templateID)
	if err != nil {
		return 0, fmt.Errorf("relabel records: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("relabel records: %w", err)
	}
	return rows, nil
}

func (r *sqliteRecordRepo) ListMessages(ctx context.Context) ([]RecordMessage, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT id, message FROM log_records ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query record messages: %w", err)
	}
	defer rows.Close()

	var msgs []RecordMessage
	for rows.Next() {
		var m RecordMessage
		if err := rows.Scan(&m.ID, &m.Message); err != nil {
			return nil, fmt.Errorf("scan record message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *sqliteRecordRepo) List(ctx context.Context, filter RecordFilter) ([]*models.LogRecord, error) {
	var where []string
	var args []any

	if filter.SinceID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.SinceID)
	}
	if filter.Known != nil {
		where = append(where, "is_known = ?")
		args = append(args, boolToInt(*filter.Known))
	}
	if filter.Classification != "" {
		where = append(where, "classification = ?")
		args = append(args, string(filter.Classification))
	}
	if filter.TemplateID > 0 {
		where = append(where, "template_id = ?")
		args = append(args, filter.TemplateID)
	}

	query := `SELECT ` + columns("", recordFields) + ` FROM log_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log records: %w", err)
	}
	defer rows.Close()

	var records []*models.LogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *sqliteRecordRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count log records: %w", err)
	}
	return count, nil
}

func (r *sqliteRecordRepo) CountByClassification(ctx context.Context, since time.Time) (map[models.Classification]int64, error) {
	query := "SELECT classification, COUNT(*) FROM log_records"
	var args []any
	if !since.IsZero() {
		query += " WHERE ts >= ?"
		args = append(args, utc(since))
	}
	query += " GROUP BY classification"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count records by classification: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Classification]int64)
	for rows.Next() {
		var class string
		var n int64
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("scan classification count: %w", err)
		}
		counts[models.Classification(class)] = n
	}
	return counts, rows.Err()
}

// recordScan holds scan destinations for one log_records row.
type recordScan struct {
	rec                                      models.LogRecord
	runID, host, component, severity, reason sql.NullString
	templateID                               sql.NullInt64
	known, manual                            int
	class                                    string
}

func (s *recordScan) dest() []any {
	return []any{
		&s.rec.ID, &s.runID, &s.rec.Timestamp, &s.host, &s.component, &s.rec.RawLine, &s.rec.Message,
		&s.templateID, &s.known, &s.manual, &s.class, &s.severity, &s.reason,
		&s.rec.CreatedAt, &s.rec.UpdatedAt,
	}
}

func (s *recordScan) record() models.LogRecord {
	rec := s.rec
	rec.RunID = s.runID.String
	rec.Host = s.host.String
	rec.Component = s.component.String
	rec.TemplateID = s.templateID.Int64
	rec.IsKnown = s.known == 1
	rec.IsManualMapped = s.manual == 1
	rec.Classification = models.Classification(s.class)
	rec.Severity = models.Severity(s.severity.String)
	rec.AnomalyReason = s.reason.String
	return rec
}

func scanRecord(row rowScanner) (*models.LogRecord, error) {
	var s recordScan
	if err := row.Scan(s.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan log record: %w", err)
	}
	rec := s.record()
	return &rec, nil
}
