package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// MaxAlertPage bounds alert listings.
const MaxAlertPage = 200

type sqliteAlertRepo struct {
	q Querier
}

var alertFields = []string{
	"id", "record_id", "alert_type", "channel", "status", "message", "error",
	"created_at", "sent_at", "resolved_at",
}

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO alerts (record_id, alert_type, channel, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.RecordID, alert.Type, alert.Channel, string(alert.Status), nullString(alert.Message), utc(alert.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get alert id: %w", err)
	}
	alert.ID = id
	return nil
}

func (r *sqliteAlertRepo) ListPending(ctx context.Context, limit int) ([]*models.AlertView, error) {
	query := `SELECT ` + columns("a", alertFields) + `, ` + columns("l", recordFields) + `
		FROM alerts a JOIN log_records l ON l.id = a.record_id
		WHERE a.status = ? ORDER BY a.id LIMIT ?`
	return r.queryViews(ctx, query, string(models.AlertPending), clampLimit(limit, 50, 1000))
}

func (r *sqliteAlertRepo) MarkSent(ctx context.Context, id int64, message string, sentAt time.Time) error {
	return r.setStatus(ctx, `
		UPDATE alerts SET status = ?, message = ?, error = NULL, sent_at = ? WHERE id = ?
	`, id, string(models.AlertSent), nullString(message), utc(sentAt), id)
}

func (r *sqliteAlertRepo) MarkFailed(ctx context.Context, id int64, errText string) error {
	return r.setStatus(ctx, `
		UPDATE alerts SET status = ?, error = ? WHERE id = ?
	`, id, string(models.AlertFailed), nullString(errText), id)
}

func (r *sqliteAlertRepo) setStatus(ctx context.Context, query string, id int64, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteAlertRepo) List(ctx context.Context, filter AlertFilter) ([]*models.AlertView, error) {
	var where []string
	var args []any
	if filter.SinceID > 0 {
		where = append(where, "a.id > ?")
		args = append(args, filter.SinceID)
	}
	if filter.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + columns("a", alertFields) + `, ` + columns("l", recordFields) + `
		FROM alerts a JOIN log_records l ON l.id = a.record_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.id DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit, 50, MaxAlertPage))

	return r.queryViews(ctx, query, args...)
}

func (r *sqliteAlertRepo) CountByStatus(ctx context.Context) (map[models.AlertStatus]int64, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT status, COUNT(*) FROM alerts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count alerts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AlertStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.AlertStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *sqliteAlertRepo) queryViews(ctx context.Context, query string, args ...any) ([]*models.AlertView, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var views []*models.AlertView
	for rows.Next() {
		v, err := scanAlertView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanAlertView(rows *sql.Rows) (*models.AlertView, error) {
	var v models.AlertView
	var status string
	var message, errText sql.NullString
	var sentAt, resolvedAt sql.NullTime
	var rs recordScan

	dest := []any{
		&v.ID, &v.RecordID, &v.Type, &v.Channel, &status, &message, &errText,
		&v.CreatedAt, &sentAt, &resolvedAt,
	}
	if err := rows.Scan(append(dest, rs.dest()...)...); err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	v.Status = models.AlertStatus(status)
	v.Message = message.String
	v.Error = errText.String
	if sentAt.Valid {
		t := sentAt.Time
		v.SentAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		v.ResolvedAt = &t
	}
	v.Record = rs.record()
	return &v, nil
}
