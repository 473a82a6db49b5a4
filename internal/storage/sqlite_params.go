package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

type sqliteParamRepo struct {
	q Querier
}

func (r *sqliteParamRepo) Replace(ctx context.Context, recordID int64, params []models.Parameter) error {
	if _, err := r.q.ExecContext(ctx, "DELETE FROM log_params WHERE record_id = ?", recordID); err != nil {
		return fmt.Errorf("delete params: %w", err)
	}

	for _, p := range params {
		_, err := r.q.ExecContext(ctx,
			"INSERT INTO log_params (record_id, name, value_num, value_text) VALUES (?, ?, ?, ?)",
			recordID, p.Name, nullFloat(p.Num), p.Text,
		)
		if err != nil {
			return fmt.Errorf("insert param %s: %w", p.Name, err)
		}
	}
	return nil
}

func (r *sqliteParamRepo) ListByRecord(ctx context.Context, recordID int64) ([]models.Parameter, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT name, value_num, value_text FROM log_params WHERE record_id = ? ORDER BY id",
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query params: %w", err)
	}
	defer rows.Close()

	var params []models.Parameter
	for rows.Next() {
		var p models.Parameter
		var num sql.NullFloat64
		if err := rows.Scan(&p.Name, &num, &p.Text); err != nil {
			return nil, fmt.Errorf("scan param: %w", err)
		}
		p.Num = floatPtr(num)
		params = append(params, p)
	}
	return params, rows.Err()
}
