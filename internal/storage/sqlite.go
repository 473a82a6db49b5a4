package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// DefaultBusyTimeout is how long a writer waits for the database lock.
const DefaultBusyTimeout = 30 * time.Second

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path        string
	busyTimeout time.Duration
	db          *sql.DB

	repos *sqliteRepos
}

// NewSQLiteStorage creates a new SQLite storage. A zero busyTimeout uses
// DefaultBusyTimeout.
func NewSQLiteStorage(path string, busyTimeout time.Duration) *SQLiteStorage {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return &SQLiteStorage{
		path:        path,
		busyTimeout: busyTimeout,
	}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	if s.path == "" {
		return fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL lets readers see the last committed state while one writer works.
	// BEGIN IMMEDIATE takes the write lock up front so writers queue on the
	// busy timeout instead of failing on lock upgrade.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite",
		s.path, s.busyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db
	s.repos = newRepos(db)
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Begin starts a write transaction.
func (s *SQLiteStorage) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx, sqliteRepos: newRepos(tx)}, nil
}

// Templates returns the template repository.
func (s *SQLiteStorage) Templates() TemplateRepository { return s.repos.templates }

// Records returns the log record repository.
func (s *SQLiteStorage) Records() RecordRepository { return s.repos.records }

// Params returns the parameter repository.
func (s *SQLiteStorage) Params() ParamRepository { return s.repos.params }

// Rules returns the rule repository.
func (s *SQLiteStorage) Rules() RuleRepository { return s.repos.rules }

// Alerts returns the alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository { return s.repos.alerts }

type sqliteRepos struct {
	templates *sqliteTemplateRepo
	records   *sqliteRecordRepo
	params    *sqliteParamRepo
	rules     *sqliteRuleRepo
	alerts    *sqliteAlertRepo
}

func newRepos(q Querier) *sqliteRepos {
	return &sqliteRepos{
		templates: &sqliteTemplateRepo{q: q},
		records:   &sqliteRecordRepo{q: q},
		params:    &sqliteParamRepo{q: q},
		rules:     &sqliteRuleRepo{q: q},
		alerts:    &sqliteAlertRepo{q: q},
	}
}

type sqliteTx struct {
	tx *sql.Tx
	*sqliteRepos
}

func (t *sqliteTx) Templates() TemplateRepository { return t.templates }
func (t *sqliteTx) Records() RecordRepository     { return t.records }
func (t *sqliteTx) Params() ParamRepository       { return t.params }
func (t *sqliteTx) Rules() RuleRepository         { return t.rules }
func (t *sqliteTx) Alerts() AlertRepository       { return t.alerts }

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// WithTx runs fn inside a transaction, committing on success.
func WithTx(ctx context.Context, s Storage, fn func(tx Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
