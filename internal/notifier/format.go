package notifier

import (
	"fmt"
	"strings"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// FormatAlert renders the plain text stored on a delivered alert.
func FormatAlert(alert *models.AlertView) string {
	rec := alert.Record

	var b strings.Builder
	fmt.Fprintf(&b, "*Alert Type:* %s\n", alert.Type)
	fmt.Fprintf(&b, "*Log ID:* %d\n", rec.ID)
	fmt.Fprintf(&b, "*Timestamp:* %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "*Host:* %s\n", orNA(rec.Host))
	fmt.Fprintf(&b, "*Component:* %s\n", orNA(rec.Component))
	fmt.Fprintf(&b, "*Classification:* %s\n", rec.Classification)
	if rec.Severity != models.SeverityNone {
		fmt.Fprintf(&b, "*Severity:* %s\n", rec.Severity)
	}
	if rec.AnomalyReason != "" {
		fmt.Fprintf(&b, "*Reason:* %s\n", rec.AnomalyReason)
	}
	fmt.Fprintf(&b, "\n*Message:*\n```%s```\n", truncate(rec.Message, 500))
	fmt.Fprintf(&b, "\n*Raw Line:*\n```%s```", truncate(rec.RawLine, 500))
	return b.String()
}
