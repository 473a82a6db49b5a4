package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Templates: exactly one of regex / manual_regex is set.
			CREATE TABLE IF NOT EXISTS templates (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				regex TEXT,
				manual_regex TEXT,
				sample_message TEXT NOT NULL DEFAULT '',
				label TEXT NOT NULL DEFAULT 'normal'
					CHECK (label IN ('normal', 'abnormal', 'unknown', 'ignore')),
				severity TEXT
					CHECK (severity IS NULL OR severity IN ('info', 'warning', 'critical', 'unknown')),
				note TEXT,
				first_seen_at DATETIME NOT NULL,
				last_seen_at DATETIME NOT NULL,
				total_count INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				CHECK ((regex IS NULL) <> (manual_regex IS NULL))
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_regex
				ON templates(regex) WHERE regex IS NOT NULL;
			CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_manual_regex
				ON templates(manual_regex) WHERE manual_regex IS NOT NULL;
			CREATE INDEX IF NOT EXISTS idx_templates_label ON templates(label);

			-- Both columns share one namespace.
			CREATE TRIGGER IF NOT EXISTS trg_templates_unique_insert
			BEFORE INSERT ON templates
			WHEN EXISTS (
				SELECT 1 FROM templates
				WHERE regex = COALESCE(NEW.regex, NEW.manual_regex)
					OR manual_regex = COALESCE(NEW.regex, NEW.manual_regex)
			)
			BEGIN
				SELECT RAISE(ABORT, 'duplicate template regex');
			END;

			CREATE TRIGGER IF NOT EXISTS trg_templates_unique_update
			BEFORE UPDATE OF regex, manual_regex ON templates
			WHEN EXISTS (
				SELECT 1 FROM templates
				WHERE id <> NEW.id
					AND (regex = COALESCE(NEW.regex, NEW.manual_regex)
						OR manual_regex = COALESCE(NEW.regex, NEW.manual_regex))
			)
			BEGIN
				SELECT RAISE(ABORT, 'duplicate template regex');
			END;

			-- Log records
			CREATE TABLE IF NOT EXISTS log_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT,
				ts DATETIME NOT NULL,
				host TEXT,
				component TEXT,
				raw_line TEXT NOT NULL,
				message TEXT NOT NULL,
				template_id INTEGER REFERENCES templates(id) ON DELETE SET NULL,
				is_known INTEGER NOT NULL DEFAULT 0,
				is_manually_mapped INTEGER NOT NULL DEFAULT 0,
				classification TEXT NOT NULL DEFAULT 'unknown'
					CHECK (classification IN ('normal', 'abnormal', 'unknown', 'ignore')),
				severity TEXT,
				anomaly_reason TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_log_records_template ON log_records(template_id);
			CREATE INDEX IF NOT EXISTS idx_log_records_classification ON log_records(classification);
			CREATE INDEX IF NOT EXISTS idx_log_records_ts ON log_records(ts);
			CREATE INDEX IF NOT EXISTS idx_log_records_known ON log_records(is_known);
			CREATE INDEX IF NOT EXISTS idx_log_records_run ON log_records(run_id);

			-- Extracted parameters
			CREATE TABLE IF NOT EXISTS log_params (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				record_id INTEGER NOT NULL REFERENCES log_records(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				value_num REAL,
				value_text TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_log_params_record ON log_params(record_id);
			CREATE INDEX IF NOT EXISTS idx_log_params_name ON log_params(name);

			-- Rules, evaluated in id order.
			CREATE TABLE IF NOT EXISTS rules (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				template_id INTEGER NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
				kind TEXT NOT NULL CHECK (kind IN ('threshold', 'contains', 'regex', 'expr')),
				field_name TEXT,
				op TEXT,
				value1 REAL,
				value2 REAL,
				operand TEXT,
				severity TEXT NOT NULL,
				is_abnormal INTEGER NOT NULL DEFAULT 1,
				message TEXT,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_rules_template_active ON rules(template_id, is_active);

			-- Alert queue
			CREATE TABLE IF NOT EXISTS alerts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				record_id INTEGER NOT NULL REFERENCES log_records(id) ON DELETE CASCADE,
				alert_type TEXT NOT NULL,
				channel TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending'
					CHECK (status IN ('pending', 'sent', 'failed')),
				message TEXT,
				error TEXT,
				created_at DATETIME NOT NULL,
				sent_at DATETIME,
				resolved_at DATETIME
			);

			CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
			CREATE INDEX IF NOT EXISTS idx_alerts_record ON alerts(record_id);
		`,
	},
}

func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStorage) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}
