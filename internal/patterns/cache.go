package patterns

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/metrics"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

type manualEntry struct {
	id int64
	re *regexp.Regexp
}

// ManualCache holds compiled manual templates in id order. It is loaded
// lazily and must be invalidated whenever manual templates change.
type ManualCache struct {
	mu      sync.RWMutex
	loaded  bool
	entries []manualEntry
	logger  *zap.Logger
}

// NewManualCache creates an empty cache.
func NewManualCache(logger *zap.Logger) *ManualCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualCache{logger: logger}
}

// Invalidate drops the cached templates; the next lookup reloads them.
func (c *ManualCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.entries = nil
	c.mu.Unlock()
}

// Len returns the number of usable cached templates, loading if needed.
func (c *ManualCache) Len(ctx context.Context, repo storage.TemplateRepository) (int, error) {
	entries, err := c.load(ctx, repo)
	return len(entries), err
}

// Match returns the id of the first manual template whose regex matches
// anywhere in message, or 0.
func (c *ManualCache) Match(ctx context.Context, repo storage.TemplateRepository, message string) (int64, error) {
	entries, err := c.load(ctx, repo)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.re.MatchString(message) {
			return e.id, nil
		}
	}
	return 0, nil
}

func (c *ManualCache) load(ctx context.Context, repo storage.TemplateRepository) ([]manualEntry, error) {
	c.mu.RLock()
	if c.loaded {
		entries := c.entries
		c.mu.RUnlock()
		return entries, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.entries, nil
	}

	templates, err := repo.ListManual(ctx)
	if err != nil {
		return nil, fmt.Errorf("load manual templates: %w", err)
	}

	entries := make([]manualEntry, 0, len(templates))
	invalid := 0
	for _, t := range templates {
		re, err := compileManual(t)
		if err != nil {
			invalid++
			c.logger.Warn("skipping manual template with invalid regex",
				zap.Int64("template_id", t.ID), zap.Error(err))
			continue
		}
		entries = append(entries, manualEntry{id: t.ID, re: re})
	}
	metrics.InvalidManualRegex.Set(float64(invalid))

	c.entries = entries
	c.loaded = true
	return entries, nil
}

func compileManual(t *models.Template) (*regexp.Regexp, error) {
	return regexp.Compile(t.Pattern.Regex())
}
