// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// Begin starts a write transaction. Writers are serialized.
	Begin(ctx context.Context) (Tx, error)

	Repositories
}

// Repositories groups the repository accessors shared by Storage and Tx.
// Repositories obtained from a Tx see the transaction's uncommitted writes.
type Repositories interface {
	Templates() TemplateRepository
	Records() RecordRepository
	Params() ParamRepository
	Rules() RuleRepository
	Alerts() AlertRepository
}

// Tx is a write transaction.
type Tx interface {
	Repositories
	Commit() error
	Rollback() error
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	Label models.Classification
	Limit int
}

// TemplateRepository defines operations for templates.
type TemplateRepository interface {
	// Create inserts t and sets its ID. A regex already stored in either
	// column yields ErrDuplicate.
	Create(ctx context.Context, t *models.Template) error
	GetByID(ctx context.Context, id int64) (*models.Template, error)
	// FindByRegex looks regex up in the auto and manual columns together.
	FindByRegex(ctx context.Context, regex string) (*models.Template, error)
	// Touch increments the occurrence counter and bumps last-seen.
	Touch(ctx context.Context, id int64, seenAt time.Time) error
	// Update writes pattern, label, severity and note.
	Update(ctx context.Context, t *models.Template) error
	ListManual(ctx context.Context) ([]*models.Template, error)
	List(ctx context.Context, filter TemplateFilter) ([]*models.Template, error)
	Count(ctx context.Context) (int64, error)
	CountByLabel(ctx context.Context) (map[models.Classification]int64, error)
}

// RecordFilter narrows record listings. Results are newest first.
type RecordFilter struct {
	SinceID        int64
	Limit          int
	Known          *bool
	Classification models.Classification
	TemplateID     int64
}

// RecordMessage is the id and message body of a stored record.
type RecordMessage struct {
	ID      int64
	Message string
}

// RecordRepository defines operations for log records.
type RecordRepository interface {
	Create(ctx context.Context, rec *models.LogRecord) error
	GetByID(ctx context.Context, id int64) (*models.LogRecord, error)
	// Update writes template binding, flags and classification fields.
	Update(ctx context.Context, rec *models.LogRecord) error
	UpdateClassification(ctx context.Context, id int64, class models.Classification, severity models.Severity, reason string) error
	// RelabelByTemplate rewrites classification and severity of every record
	// bound to templateID and returns the number of rows changed.
	RelabelByTemplate(ctx context.Context, templateID int64, class models.Classification, severity models.Severity) (int64, error)
	ListMessages(ctx context.Context) ([]RecordMessage, error)
	List(ctx context.Context, filter RecordFilter) ([]*models.LogRecord, error)
	Count(ctx context.Context) (int64, error)
	// CountByClassification counts records with a timestamp at or after
	// since. A zero since counts everything.
	CountByClassification(ctx context.Context, since time.Time) (map[models.Classification]int64, error)
}

// ParamRepository defines operations for extracted parameters.
type ParamRepository interface {
	// Replace deletes the record's parameters and inserts params.
	Replace(ctx context.Context, recordID int64, params []models.Parameter) error
	ListByRecord(ctx context.Context, recordID int64) ([]models.Parameter, error)
}

// RuleRepository defines operations for rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.Rule) error
	GetByID(ctx context.Context, id int64) (*models.Rule, error)
	// ListActiveByTemplate returns active rules in evaluation (id) order.
	ListActiveByTemplate(ctx context.Context, templateID int64) ([]*models.Rule, error)
	ListByTemplate(ctx context.Context, templateID int64) ([]*models.Rule, error)
	List(ctx context.Context) ([]*models.Rule, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

// AlertFilter narrows alert listings. Results are newest first.
type AlertFilter struct {
	SinceID int64
	Limit   int
	Status  models.AlertStatus
}

// AlertRepository defines operations for the alert queue.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	// ListPending returns the oldest pending alerts joined with their record.
	ListPending(ctx context.Context, limit int) ([]*models.AlertView, error)
	MarkSent(ctx context.Context, id int64, message string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errText string) error
	List(ctx context.Context, filter AlertFilter) ([]*models.AlertView, error)
	CountByStatus(ctx context.Context) (map[models.AlertStatus]int64, error)
}
