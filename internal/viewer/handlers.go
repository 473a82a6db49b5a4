package viewer

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = storage.MaxAlertPage
)

// AlertItem is one row of the alert feed.
type AlertItem struct {
	ID             int64                 `json:"id"`
	AlertType      string                `json:"alert_type"`
	Channel        string                `json:"channel"`
	Status         models.AlertStatus    `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	SentAt         *time.Time            `json:"sent_at,omitempty"`
	LogID          int64                 `json:"log_id"`
	Classification models.Classification `json:"classification"`
	Severity       models.Severity       `json:"severity,omitempty"`
	AnomalyReason  string                `json:"anomaly_reason"`
	Message        string                `json:"message"`
}

func newAlertItem(v *models.AlertView) AlertItem {
	return AlertItem{
		ID:             v.ID,
		AlertType:      v.Type,
		Channel:        v.Channel,
		Status:         v.Status,
		CreatedAt:      v.CreatedAt,
		SentAt:         v.SentAt,
		LogID:          v.RecordID,
		Classification: v.Record.Classification,
		Severity:       v.Record.Severity,
		AnomalyReason:  v.Record.AnomalyReason,
		Message:        v.Record.Message,
	}
}

// TemplateItem is a template with its pattern flattened.
type TemplateItem struct {
	*models.Template
	Regex string             `json:"regex"`
	Kind  models.PatternKind `json:"kind"`
}

// pinger is implemented by stores that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.repos.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			JSONError(w, &Error{
				Code:    "UNAVAILABLE",
				Message: "database unavailable",
				Status:  http.StatusServiceUnavailable,
			})
			return
		}
	}
	OK(w, map[string]string{"status": "ok"})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	sinceID, limit, apiErr := pageParams(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	filter := storage.AlertFilter{SinceID: sinceID, Limit: limit}
	if status := r.URL.Query().Get("status"); status != "" {
		switch st := models.AlertStatus(status); st {
		case models.AlertPending, models.AlertSent, models.AlertFailed:
			filter.Status = st
		default:
			JSONError(w, NewBadRequest("status must be one of pending, sent, failed"))
			return
		}
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	views, err := s.repos.Alerts().List(ctx, filter)
	if err != nil {
		s.internalError(w, "list alerts", err)
		return
	}
	items := make([]AlertItem, 0, len(views))
	for _, v := range views {
		items = append(items, newAlertItem(v))
	}
	OK(w, items)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	sinceID, limit, apiErr := pageParams(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	filter := storage.RecordFilter{SinceID: sinceID, Limit: limit}

	q := r.URL.Query()
	if raw := q.Get("known"); raw != "" {
		known, err := strconv.ParseBool(raw)
		if err != nil {
			JSONError(w, NewBadRequest("known must be a boolean"))
			return
		}
		filter.Known = &known
	}
	if raw := q.Get("classification"); raw != "" {
		class, err := models.ParseClassification(raw)
		if err != nil {
			JSONError(w, NewBadRequest(err.Error()))
			return
		}
		filter.Classification = class
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	recs, err := s.repos.Records().List(ctx, filter)
	if err != nil {
		s.internalError(w, "list records", err)
		return
	}
	if recs == nil {
		recs = []*models.LogRecord{}
	}
	OK(w, recs)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	_, limit, apiErr := pageParams(r)
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}
	filter := storage.TemplateFilter{Limit: limit}
	if raw := r.URL.Query().Get("label"); raw != "" {
		label, err := models.ParseClassification(raw)
		if err != nil {
			JSONError(w, NewBadRequest(err.Error()))
			return
		}
		filter.Label = label
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()

	tmpls, err := s.repos.Templates().List(ctx, filter)
	if err != nil {
		s.internalError(w, "list templates", err)
		return
	}
	items := make([]TemplateItem, 0, len(tmpls))
	for _, t := range tmpls {
		items = append(items, TemplateItem{Template: t, Regex: t.Pattern.Regex(), Kind: t.Pattern.Kind()})
	}
	OK(w, items)
}

func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.QueryTimeout)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, zap.Error(err))
	JSONError(w, ErrInternalServer)
}

// pageParams reads since_id and limit. The limit is clamped to 1..200.
func pageParams(r *http.Request) (int64, int, *Error) {
	q := r.URL.Query()

	var sinceID int64
	if raw := q.Get("since_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return 0, 0, NewBadRequest("since_id must be a non-negative integer")
		}
		sinceID = v
	}

	limit := defaultPageSize
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, NewBadRequest("limit must be an integer")
		}
		limit = v
	}
	return sinceID, clamp(limit, 1, maxPageSize), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
