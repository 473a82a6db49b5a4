// Package export writes stored log records as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// Format defines the output format for exports.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

// ParseFormat parses a string to Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case JSON, CSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid export format %q (want json or csv)", s)
	}
}

var csvHeader = []string{
	"id", "timestamp", "host", "component", "template_id",
	"is_known", "classification", "severity", "anomaly_reason", "message",
}

// Exporter writes records in the configured format.
type Exporter struct {
	format Format
	writer io.Writer
}

// NewExporter creates an exporter for the given format.
func NewExporter(format Format, w io.Writer) *Exporter {
	return &Exporter{format: format, writer: w}
}

// ExportRecords writes recs in order.
func (e *Exporter) ExportRecords(recs []*models.LogRecord) error {
	if e.format == CSV {
		return e.exportCSV(recs)
	}
	if recs == nil {
		recs = []*models.LogRecord{}
	}
	encoder := json.NewEncoder(e.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(recs)
}

func (e *Exporter) exportCSV(recs []*models.LogRecord) error {
	w := csv.NewWriter(e.writer)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write(csvRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func csvRow(r *models.LogRecord) []string {
	tmpl := ""
	if r.TemplateID != 0 {
		tmpl = strconv.FormatInt(r.TemplateID, 10)
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Timestamp.Format(time.RFC3339),
		r.Host,
		r.Component,
		tmpl,
		strconv.FormatBool(r.IsKnown),
		string(r.Classification),
		string(r.Severity),
		r.AnomalyReason,
		r.Message,
	}
}
