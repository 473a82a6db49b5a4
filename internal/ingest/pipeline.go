// Package ingest sequences parsing, template resolution, parameter
// extraction, rule evaluation and alert queuing for every log line.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/extractor"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/metrics"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/parser"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/patterns"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/rules"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

// DefaultCommitEvery is the number of lines per transaction.
const DefaultCommitEvery = 1000

// ParamExtractor pulls named parameters out of a message.
type ParamExtractor interface {
	Extract(pattern, message string) []models.Parameter
}

// Options configures a Pipeline.
type Options struct {
	CommitEvery   int
	AlertChannel  string
	FlushInterval time.Duration
	// Verbose logs per-line failures at warn instead of debug.
	Verbose bool

	Parser    parser.LineParser
	Extractor ParamExtractor
}

// DefaultOptions returns the default pipeline options.
func DefaultOptions() *Options {
	return &Options{
		CommitEvery:   DefaultCommitEvery,
		AlertChannel:  models.DefaultAlertChannel,
		FlushInterval: 2 * time.Second,
	}
}

// Pipeline ingests lines sequentially. Each line's writes are visible to the
// next line's template resolution.
type Pipeline struct {
	storage   storage.Storage
	store     *patterns.Store
	engine    *rules.Engine
	parser    parser.LineParser
	extractor ParamExtractor
	opts      Options
	logger    *zap.Logger
}

// New creates a Pipeline.
func New(s storage.Storage, store *patterns.Store, engine *rules.Engine, opts *Options, logger *zap.Logger) *Pipeline {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.CommitEvery <= 0 {
		o.CommitEvery = DefaultCommitEvery
	}
	if o.AlertChannel == "" {
		o.AlertChannel = models.DefaultAlertChannel
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = rules.NewEngine(logger)
	}
	if store == nil {
		store = patterns.NewStore(s, engine, nil, logger)
	}

	p := &Pipeline{
		storage:   s,
		store:     store,
		engine:    engine,
		parser:    o.Parser,
		extractor: o.Extractor,
		opts:      o,
		logger:    logger,
	}
	if p.parser == nil {
		p.parser = parser.NewSyslogParser(nil)
	}
	if p.extractor == nil {
		p.extractor = extractor.New()
	}
	return p
}

// IngestFile ingests every line of the file at path. A file that cannot be
// opened aborts the run before anything is written.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		metrics.IngestRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	return p.ingest(ctx, path, f)
}

// Ingest ingests every line read from r.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader) (*Stats, error) {
	return p.ingest(ctx, "", r)
}

func (p *Pipeline) ingest(ctx context.Context, source string, r io.Reader) (*Stats, error) {
	run := p.newRun(source)
	p.logger.Info("ingestion started", zap.String("run_id", run.stats.RunID), zap.String("source", source))

	err := parser.ScanLines(ctx, r, func(lineNum int64, line string) error {
		return run.handle(lineNum, line)
	})
	return run.finish(err)
}

// run is the state of one ingestion run.
type run struct {
	p       *Pipeline
	ctx     context.Context
	tx      storage.Tx
	pending int
	started time.Time
	stats   *Stats
}

func (p *Pipeline) newRun(source string) *run {
	return &run{
		p: p,
		// Statements must outlive an interrupt so pending work can commit.
		ctx:     context.Background(),
		started: time.Now(),
		stats: &Stats{
			RunID:  uuid.NewString(),
			Source: source,
		},
	}
}

type lineOutcome string

const (
	lineStored  lineOutcome = "stored"
	lineSkipped lineOutcome = "skipped"
	lineFailed  lineOutcome = "failed"
)

// lineResult is the outcome of processing one line.
type lineResult struct {
	outcome        lineOutcome
	recordID       int64
	classification models.Classification
	created        bool
	known          bool
	alerted        bool
	err            error
}

// handle processes one line and commits on the line cadence. Only
// persistence failures are returned; anything else is counted and skipped.
func (r *run) handle(lineNum int64, line string) error {
	r.stats.TotalLines++

	res := r.process(line)
	metrics.IngestLinesTotal.WithLabelValues(string(res.outcome)).Inc()

	if res.created {
		r.stats.NewTemplates++
	}
	if res.known {
		r.stats.ExistingTemplates++
	}

	switch res.outcome {
	case lineSkipped:
		return nil
	case lineFailed:
		if storage.IsFatal(res.err) {
			return fmt.Errorf("line %d: %w", lineNum, res.err)
		}
		r.stats.Errors++
		r.logLineError(lineNum, res.err)
	case lineStored:
		r.stats.ParsedLines++
		metrics.IngestClassificationsTotal.WithLabelValues(string(res.classification)).Inc()
		if res.alerted {
			r.stats.AlertsQueued++
			metrics.AlertsEnqueuedTotal.WithLabelValues(string(res.classification)).Inc()
		}
	}

	r.pending++
	if r.pending >= r.p.opts.CommitEvery {
		return r.commit()
	}
	return nil
}

func (r *run) logLineError(lineNum int64, err error) {
	fields := []zap.Field{
		zap.String("run_id", r.stats.RunID),
		zap.Int64("line", lineNum),
		zap.Error(err),
	}
	if r.p.opts.Verbose {
		r.p.logger.Warn("error processing line", fields...)
		return
	}
	r.p.logger.Debug("error processing line", fields...)
}

// process runs the per-line state machine inside the run's transaction.
func (r *run) process(line string) (res lineResult) {
	defer func() {
		if v := recover(); v != nil {
			res.outcome = lineFailed
			res.err = fmt.Errorf("panic: %v", v)
		}
	}()

	parsed := r.p.parser.Parse(line)
	if parsed.Message == "" {
		return lineResult{outcome: lineSkipped}
	}

	repos, err := r.repos()
	if err != nil {
		return lineResult{outcome: lineFailed, err: err}
	}
	ctx := r.ctx

	resolution, err := r.p.store.Resolve(ctx, repos, parsed.Message)
	res.created = resolution.Created
	res.known = resolution.Known
	if err != nil {
		res.outcome = lineFailed
		res.err = fmt.Errorf("resolve template: %w", err)
		return res
	}

	rec := &models.LogRecord{
		RunID:          r.stats.RunID,
		Timestamp:      parsed.Timestamp,
		Host:           parsed.Host,
		Component:      parsed.Component,
		RawLine:        parsed.Raw,
		Message:        parsed.Message,
		IsKnown:        resolution.Known,
		Classification: models.ClassUnknown,
	}
	tmpl := resolution.Template
	if tmpl != nil {
		rec.TemplateID = tmpl.ID
	}
	if resolution.Known {
		rec.Classification = tmpl.RecordClassification()
		rec.Severity = tmpl.Severity
	}

	if err := repos.Records().Create(ctx, rec); err != nil {
		res.outcome = lineFailed
		res.err = fmt.Errorf("store record: %w", err)
		return res
	}
	res.recordID = rec.ID

	if resolution.Known {
		params := r.p.extractor.Extract(tmpl.Pattern.Regex(), parsed.Message)
		if len(params) > 0 {
			if err := repos.Params().Replace(ctx, rec.ID, params); err != nil {
				res.outcome = lineFailed
				res.err = fmt.Errorf("store params: %w", err)
				return res
			}
		}

		verdict, err := r.p.engine.Classify(ctx, repos, rec.ID, tmpl.ID)
		if err != nil {
			res.outcome = lineFailed
			res.err = fmt.Errorf("classify: %w", err)
			return res
		}
		if verdict != nil {
			if err := repos.Records().UpdateClassification(ctx, rec.ID, verdict.Classification, verdict.Severity, verdict.Reason); err != nil {
				res.outcome = lineFailed
				res.err = fmt.Errorf("update classification: %w", err)
				return res
			}
			rec.Classification = verdict.Classification
		}
	}

	if rec.Classification.NeedsAlert() {
		alert := models.NewPendingAlert(rec.ID, rec.Classification, r.p.opts.AlertChannel)
		if err := repos.Alerts().Create(ctx, alert); err != nil {
			res.outcome = lineFailed
			res.err = fmt.Errorf("queue alert: %w", err)
			return res
		}
		res.alerted = true
	}

	res.outcome = lineStored
	res.classification = rec.Classification
	return res
}

// repos returns the open transaction, starting one if needed.
func (r *run) repos() (storage.Repositories, error) {
	if r.tx != nil {
		return r.tx, nil
	}
	tx, err := r.p.storage.Begin(r.ctx)
	if err != nil {
		return nil, err
	}
	r.tx = tx
	return tx, nil
}

func (r *run) commit() error {
	r.pending = 0
	if r.tx == nil {
		return nil
	}
	tx := r.tx
	r.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.stats.Commits++
	metrics.IngestCommitsTotal.Inc()
	return nil
}

func (r *run) rollback() {
	if r.tx == nil {
		return
	}
	if err := r.tx.Rollback(); err != nil {
		r.p.logger.Warn("rollback failed", zap.String("run_id", r.stats.RunID), zap.Error(err))
	}
	r.tx = nil
	r.pending = 0
}

// finish commits pending work unless err is a persistence or read failure,
// in which case the open transaction is rolled back. An interrupt still
// commits what was processed.
func (r *run) finish(err error) (*Stats, error) {
	interrupted := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)

	if err != nil && !interrupted {
		r.rollback()
		r.stats.Duration = time.Since(r.started)
		metrics.IngestRunsTotal.WithLabelValues("failed").Inc()
		r.p.logger.Error("ingestion aborted",
			zap.String("run_id", r.stats.RunID),
			zap.Int64("lines", r.stats.TotalLines),
			zap.Error(err))
		return r.stats, err
	}

	if cerr := r.commit(); cerr != nil {
		r.rollback()
		r.stats.Duration = time.Since(r.started)
		metrics.IngestRunsTotal.WithLabelValues("failed").Inc()
		return r.stats, cerr
	}

	r.stats.Duration = time.Since(r.started)
	result := "ok"
	if interrupted {
		result = "interrupted"
	}
	metrics.IngestRunsTotal.WithLabelValues(result).Inc()
	r.p.logger.Info("ingestion finished",
		zap.String("run_id", r.stats.RunID),
		zap.String("result", result),
		zap.Int64("lines", r.stats.TotalLines),
		zap.Int64("new_templates", r.stats.NewTemplates),
		zap.Int64("errors", r.stats.Errors),
		zap.Duration("duration", r.stats.Duration))

	if interrupted {
		return r.stats, err
	}
	return r.stats, nil
}
