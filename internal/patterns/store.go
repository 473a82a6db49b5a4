// Package patterns owns templates: it resolves each message to a template,
// authors manual templates and re-applies templates to stored records.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/abstractor"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/extractor"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/metrics"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/rules"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

var (
	// ErrDuplicateTemplate is returned when a regex is already stored as
	// an auto or manual template.
	ErrDuplicateTemplate = errors.New("template regex already exists")
	// ErrInvalidRegex is returned for a template regex that does not compile.
	ErrInvalidRegex = errors.New("invalid template regex")
)

// Store is the pattern store. It owns the manual template cache.
type Store struct {
	storage   storage.Storage
	cache     *ManualCache
	extractor *extractor.Extractor
	engine    *rules.Engine
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore creates a Store.
func NewStore(s storage.Storage, engine *rules.Engine, ext *extractor.Extractor, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = rules.NewEngine(logger)
	}
	if ext == nil {
		ext = extractor.New()
	}
	return &Store{
		storage:   s,
		cache:     NewManualCache(logger),
		extractor: ext,
		engine:    engine,
		logger:    logger,
		now:       time.Now,
	}
}

// Cache returns the manual template cache.
func (s *Store) Cache() *ManualCache {
	return s.cache
}

// Resolution is the outcome of resolving one message.
type Resolution struct {
	// Template the record binds to. Nil only when the generated template
	// did not compile and no manual template matched.
	Template *models.Template
	// Known is set when Template existed before this call.
	Known bool
	// Created is set when an auto template was inserted for this message.
	Created bool
	// ManualMatched is set when a manual template scan bound the message.
	ManualMatched bool
}

// Resolve binds message to a template within repos (usually an open
// ingestion transaction).
//
// The generated template is looked up across both template kinds; a hit
// bumps its counter, a miss inserts a new auto template which does not make
// the line known. Unless an existing template was found, manual templates
// are then searched against the raw message and the first hit wins.
func (s *Store) Resolve(ctx context.Context, repos storage.Repositories, message string) (Resolution, error) {
	now := s.now()
	var res Resolution

	regex := abstractor.Abstract(message)
	if _, err := abstractor.Compile(regex); err != nil {
		s.logger.Debug("generated template does not compile",
			zap.String("regex", regex), zap.Error(err))
	} else {
		tmpl, err := repos.Templates().FindByRegex(ctx, regex)
		if err != nil {
			return res, err
		}
		if tmpl != nil {
			if err := repos.Templates().Touch(ctx, tmpl.ID, now); err != nil {
				return res, err
			}
			tmpl.TotalCount++
			tmpl.LastSeenAt = now
			res.Template = tmpl
			res.Known = true
		} else {
			tmpl = models.NewAutoTemplate(regex, message, now)
			if err := repos.Templates().Create(ctx, tmpl); err != nil {
				return res, err
			}
			metrics.TemplatesCreatedTotal.WithLabelValues(string(models.PatternAuto)).Inc()
			res.Template = tmpl
			res.Created = true
		}
	}

	if res.Known {
		return res, nil
	}

	id, err := s.cache.Match(ctx, repos.Templates(), message)
	if err != nil {
		return res, err
	}
	if id == 0 {
		return res, nil
	}

	manual, err := repos.Templates().GetByID(ctx, id)
	if err != nil {
		return res, err
	}
	if manual == nil {
		// Deleted behind the cache's back.
		s.cache.Invalidate()
		return res, nil
	}
	if err := repos.Templates().Touch(ctx, manual.ID, now); err != nil {
		return res, err
	}
	manual.TotalCount++
	manual.LastSeenAt = now

	metrics.ManualMatchesTotal.Inc()
	res.Template = manual
	res.Known = true
	res.ManualMatched = true
	return res, nil
}

// ManualTemplate describes an operator- or advisor-authored template.
type ManualTemplate struct {
	Regex         string
	SampleMessage string
	Label         models.Classification
	Severity      models.Severity
	Note          string
}

func (m *ManualTemplate) validate() error {
	if m.Regex == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRegex)
	}
	if _, err := regexp.Compile(m.Regex); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	if m.Label == "" {
		m.Label = models.ClassNormal
	}
	if _, err := models.ParseClassification(string(m.Label)); err != nil {
		return err
	}
	if _, err := models.ParseSeverity(string(m.Severity)); err != nil {
		return err
	}
	return nil
}

// CreateManual stores a manual template. If the regex already exists in
// either column it returns the existing template with ErrDuplicateTemplate,
// unless updateExisting is set, in which case label, severity and note of
// the existing template are overwritten. The bool result reports whether a
// new template was created.
func (s *Store) CreateManual(ctx context.Context, in ManualTemplate, updateExisting bool) (*models.Template, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	var result *models.Template
	var created bool
	err := storage.WithTx(ctx, s.storage, func(tx storage.Tx) error {
		existing, err := tx.Templates().FindByRegex(ctx, in.Regex)
		if err != nil {
			return err
		}
		now := s.now()

		if existing != nil {
			result = existing
			if !updateExisting {
				return fmt.Errorf("template %d: %w", existing.ID, ErrDuplicateTemplate)
			}
			existing.Label = in.Label
			existing.Severity = in.Severity
			existing.Note = in.Note
			existing.UpdatedAt = now
			return tx.Templates().Update(ctx, existing)
		}

		tmpl := &models.Template{
			Pattern:       models.ManualPattern(in.Regex),
			SampleMessage: in.SampleMessage,
			Label:         in.Label,
			Severity:      in.Severity,
			Note:          in.Note,
			FirstSeenAt:   now,
			LastSeenAt:    now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Templates().Create(ctx, tmpl); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return fmt.Errorf("%w: %v", ErrDuplicateTemplate, err)
			}
			return err
		}
		result = tmpl
		created = true
		return nil
	})
	if err != nil {
		return result, false, err
	}

	s.cache.Invalidate()
	if created {
		metrics.TemplatesCreatedTotal.WithLabelValues(string(models.PatternManual)).Inc()
		s.logger.Info("manual template created", zap.Int64("template_id", result.ID))
	}
	return result, created, nil
}

// SetRegex replaces a template's regex with a manual one. Follow with
// Reprocess to apply it to stored records.
func (s *Store) SetRegex(ctx context.Context, id int64, regex string) (*models.Template, error) {
	if _, err := regexp.Compile(regex); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}

	var tmpl *models.Template
	err := storage.WithTx(ctx, s.storage, func(tx storage.Tx) error {
		var err error
		tmpl, err = tx.Templates().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
		}

		other, err := tx.Templates().FindByRegex(ctx, regex)
		if err != nil {
			return err
		}
		if other != nil && other.ID != id {
			return fmt.Errorf("template %d: %w", other.ID, ErrDuplicateTemplate)
		}

		tmpl.Pattern = models.ManualPattern(regex)
		tmpl.UpdatedAt = s.now()
		return tx.Templates().Update(ctx, tmpl)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate()
	return tmpl, nil
}

// Relabel sets a template's label, and severity and note when given, then
// rewrites classification and severity of every record bound to it. It
// returns the number of records rewritten.
func (s *Store) Relabel(ctx context.Context, id int64, label models.Classification, severity *models.Severity, note *string) (int64, error) {
	if _, err := models.ParseClassification(string(label)); err != nil {
		return 0, err
	}
	if severity != nil {
		if _, err := models.ParseSeverity(string(*severity)); err != nil {
			return 0, err
		}
	}

	var affected int64
	err := storage.WithTx(ctx, s.storage, func(tx storage.Tx) error {
		tmpl, err := tx.Templates().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
		}

		tmpl.Label = label
		if severity != nil {
			tmpl.Severity = *severity
		}
		if note != nil {
			tmpl.Note = *note
		}
		tmpl.UpdatedAt = s.now()
		if err := tx.Templates().Update(ctx, tmpl); err != nil {
			return err
		}

		affected, err = tx.Records().RelabelByTemplate(ctx, id, label, tmpl.Severity)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.cache.Invalidate()
	s.logger.Info("template relabeled",
		zap.Int64("template_id", id), zap.String("label", string(label)), zap.Int64("records", affected))
	return affected, nil
}

// ReprocessResult summarizes a Reprocess run.
type ReprocessResult struct {
	Matched    int
	WithParams int
	Abnormal   int
}

// Reprocess searches every stored record with the template's regex. Each
// match is rebound to the template as known, gets its parameters
// re-extracted and its rules re-evaluated.
func (s *Store) Reprocess(ctx context.Context, id int64) (ReprocessResult, error) {
	var res ReprocessResult

	err := storage.WithTx(ctx, s.storage, func(tx storage.Tx) error {
		tmpl, err := tx.Templates().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
		}

		regex := tmpl.Pattern.Regex()
		re, err := regexp.Compile(regex)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRegex, err)
		}

		msgs, err := tx.Records().ListMessages(ctx)
		if err != nil {
			return err
		}

		for _, m := range msgs {
			if !re.MatchString(m.Message) {
				continue
			}
			res.Matched++

			rec, err := tx.Records().GetByID(ctx, m.ID)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			rec.TemplateID = id
			rec.IsKnown = true
			rec.Classification = tmpl.RecordClassification()
			rec.Severity = tmpl.Severity
			rec.AnomalyReason = ""
			if err := tx.Records().Update(ctx, rec); err != nil {
				return err
			}

			params := s.extractor.Extract(regex, m.Message)
			if err := tx.Params().Replace(ctx, rec.ID, params); err != nil {
				return err
			}
			if len(params) > 0 {
				res.WithParams++
			}

			verdict, err := s.engine.Classify(ctx, tx, rec.ID, id)
			if err != nil {
				return err
			}
			if verdict != nil {
				if err := tx.Records().UpdateClassification(ctx, rec.ID, verdict.Classification, verdict.Severity, verdict.Reason); err != nil {
					return err
				}
				res.Abnormal++
			}
		}
		return nil
	})
	if err != nil {
		return ReprocessResult{}, err
	}

	s.logger.Info("template reprocessed",
		zap.Int64("template_id", id),
		zap.Int("matched", res.Matched),
		zap.Int("with_params", res.WithParams),
		zap.Int("abnormal", res.Abnormal))
	return res, nil
}

// MapRecord binds a record to a template by operator decision. The record
// becomes known and manually mapped and takes the template's label and
// severity.
func (s *Store) MapRecord(ctx context.Context, recordID, templateID int64) (*models.LogRecord, error) {
	var rec *models.LogRecord
	err := storage.WithTx(ctx, s.storage, func(tx storage.Tx) error {
		var err error
		rec, err = mapRecord(ctx, tx, recordID, templateID)
		return err
	})
	return rec, err
}

func mapRecord(ctx context.Context, repos storage.Repositories, recordID, templateID int64) (*models.LogRecord, error) {
	tmpl, err := repos.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %d: %w", templateID, storage.ErrNotFound)
	}
	rec, err := repos.Records().GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("log record %d: %w", recordID, storage.ErrNotFound)
	}

	rec.TemplateID = tmpl.ID
	rec.IsKnown = true
	rec.IsManualMapped = true
	rec.Classification = tmpl.RecordClassification()
	rec.Severity = tmpl.Severity
	rec.AnomalyReason = ""
	if err := repos.Records().Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Promote turns a stored record's message into a manual template (or
// updates the template that already carries the same regex) and maps the
// record to it.
func (s *Store) Promote(ctx context.Context, recordID int64, label models.Classification, severity models.Severity, note string) (*models.Template, error) {
	rec, err := s.storage.Records().GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("log record %d: %w", recordID, storage.ErrNotFound)
	}

	tmpl, _, err := s.CreateManual(ctx, ManualTemplate{
		Regex:         abstractor.Abstract(rec.Message),
		SampleMessage: rec.Message,
		Label:         label,
		Severity:      severity,
		Note:          note,
	}, true)
	if err != nil {
		return nil, err
	}

	if _, err := s.MapRecord(ctx, recordID, tmpl.ID); err != nil {
		return nil, err
	}
	return tmpl, nil
}
