package models

import "time"

// AlertStatus is the delivery state of an Alert.
type AlertStatus string

const (
	AlertPending AlertStatus = "pending"
	AlertSent    AlertStatus = "sent"
	AlertFailed  AlertStatus = "failed"
)

// DefaultAlertChannel is the sink every ingestion alert is queued for.
const DefaultAlertChannel = "slack"

// Alert links a LogRecord to a delivery channel.
type Alert struct {
	ID         int64       `json:"id"`
	RecordID   int64       `json:"record_id"`
	Type       string      `json:"alert_type"`
	Channel    string      `json:"channel"`
	Status     AlertStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	SentAt     *time.Time  `json:"sent_at,omitempty"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

// NewPendingAlert creates a pending alert for a record.
func NewPendingAlert(recordID int64, class Classification, channel string) *Alert {
	if channel == "" {
		channel = DefaultAlertChannel
	}
	return &Alert{
		RecordID:  recordID,
		Type:      string(class),
		Channel:   channel,
		Status:    AlertPending,
		CreatedAt: time.Now(),
	}
}

// AlertView is an Alert joined with the record it points at.
type AlertView struct {
	Alert
	Record LogRecord `json:"record"`
}
