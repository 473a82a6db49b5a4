package ingest

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats are the aggregate counts of one ingestion run.
type Stats struct {
	RunID             string        `json:"run_id"`
	Source            string        `json:"source"`
	TotalLines        int64         `json:"total_lines"`
	ParsedLines       int64         `json:"parsed_lines"`
	NewTemplates      int64         `json:"new_templates"`
	ExistingTemplates int64         `json:"existing_templates"`
	Errors            int64         `json:"errors"`
	AlertsQueued      int64         `json:"alerts_queued"`
	Commits           int64         `json:"commits"`
	Duration          time.Duration `json:"duration"`
}

// LinesPerSecond returns the processing throughput.
func (s *Stats) LinesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TotalLines) / s.Duration.Seconds()
}

// WriteSummary prints the run summary in the order operators expect.
func (s *Stats) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "Total lines: %s\n", humanize.Comma(s.TotalLines))
	fmt.Fprintf(w, "Parsed lines: %s\n", humanize.Comma(s.ParsedLines))
	fmt.Fprintf(w, "New patterns: %s\n", humanize.Comma(s.NewTemplates))
	fmt.Fprintf(w, "Existing patterns: %s\n", humanize.Comma(s.ExistingTemplates))
	fmt.Fprintf(w, "Errors: %s\n", humanize.Comma(s.Errors))
	fmt.Fprintf(w, "Alerts queued: %s\n", humanize.Comma(s.AlertsQueued))
	if s.Duration > 0 {
		fmt.Fprintf(w, "Duration: %s (%s lines/s)\n",
			s.Duration.Round(time.Millisecond), humanize.CommafWithDigits(s.LinesPerSecond(), 1))
	}
}
