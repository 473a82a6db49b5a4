// Package notifier delivers pending alerts to notification channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/metrics"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the channel name alerts are queued for (e.g. "slack").
	Name() string
	// Send delivers one alert.
	Send(ctx context.Context, alert *models.AlertView) error
	// Close releases any resources.
	Close() error
}

// DeliveryStats summarizes one DeliverPending pass.
type DeliveryStats struct {
	Sent      int
	Failed    int
	Throttled int
	// Unrouted alerts have no registered notifier and stay pending.
	Unrouted int
}

// Dispatcher reads pending alerts from storage, routes each to the notifier
// registered for its channel and records the outcome.
type Dispatcher struct {
	alerts      storage.AlertRepository
	mu          sync.RWMutex
	notifiers   map[string]Notifier
	rateLimiter *RateLimiter
	logger      *zap.Logger
	now         func() time.Time
}

// NewDispatcher creates a dispatcher with default rate limiting.
func NewDispatcher(alerts storage.AlertRepository, logger *zap.Logger) *Dispatcher {
	return NewDispatcherWithRateLimit(alerts, DefaultRateLimitConfig(), logger)
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(alerts storage.AlertRepository, config RateLimitConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		alerts:      alerts,
		notifiers:   make(map[string]Notifier),
		rateLimiter: NewRateLimiter(config),
		logger:      logger,
		now:         time.Now,
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// DeliverPending sends up to limit of the oldest pending alerts. A failed
// send marks the alert failed; storage errors abort the pass.
func (d *Dispatcher) DeliverPending(ctx context.Context, limit int) (DeliveryStats, error) {
	var stats DeliveryStats

	pending, err := d.alerts.ListPending(ctx, limit)
	if err != nil {
		return stats, fmt.Errorf("list pending alerts: %w", err)
	}

	for _, alert := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		n, ok := d.Get(alert.Channel)
		if !ok {
			stats.Unrouted++
			continue
		}
		if !d.rateLimiter.Allow(alert.Channel) {
			stats.Throttled++
			metrics.NotificationsThrottledTotal.WithLabelValues(alert.Channel).Inc()
			continue
		}

		if err := n.Send(ctx, alert); err != nil {
			if errors.Is(err, context.Canceled) {
				return stats, err
			}
			stats.Failed++
			metrics.NotificationsTotal.WithLabelValues(alert.Channel, "failed").Inc()
			d.logger.Warn("notification failed",
				zap.Int64("alert_id", alert.ID),
				zap.Int64("record_id", alert.RecordID),
				zap.String("channel", alert.Channel),
				zap.Error(err))
			if err := d.alerts.MarkFailed(ctx, alert.ID, err.Error()); err != nil {
				return stats, fmt.Errorf("mark alert %d failed: %w", alert.ID, err)
			}
			continue
		}

		stats.Sent++
		metrics.NotificationsTotal.WithLabelValues(alert.Channel, "sent").Inc()
		if err := d.alerts.MarkSent(ctx, alert.ID, FormatAlert(alert), d.now()); err != nil {
			return stats, fmt.Errorf("mark alert %d sent: %w", alert.ID, err)
		}
	}

	if stats.Unrouted > 0 {
		d.logger.Debug("alerts without a notifier left pending", zap.Int("count", stats.Unrouted))
	}
	return stats, nil
}

// Run delivers pending alerts every interval until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := d.DeliverPending(ctx, batchSize)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			d.logger.Error("alert delivery pass failed", zap.Error(err))
		case stats.Sent+stats.Failed > 0:
			d.logger.Info("alerts delivered",
				zap.Int("sent", stats.Sent),
				zap.Int("failed", stats.Failed),
				zap.Int("throttled", stats.Throttled))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	return errors.Join(errs...)
}
