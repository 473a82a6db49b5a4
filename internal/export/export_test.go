package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

func sampleRecords() []*models.LogRecord {
	ts := time.Date(2025, 12, 2, 23, 13, 14, 0, time.UTC)
	return []*models.LogRecord{
		{
			ID: 1, Timestamp: ts, Host: "gpu01", Component: "kernel",
			Message:    "pci 0000:06:00.0: 31.504 Gb/s available PCIe bandwidth, limited by 8.0 GT/s PCIe x4 link",
			TemplateID: 3, IsKnown: true, Classification: models.ClassAbnormal,
			Severity: models.SeverityWarning, AnomalyReason: "bandwidth below 32",
		},
		{
			ID: 2, Timestamp: ts.Add(time.Second), Host: "gpu01",
			Message: `user said "hi", then left`, Classification: models.ClassUnknown,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", JSON, false},
		{"csv", CSV, false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExportRecords_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter(CSV, &buf).ExportRecords(sampleRecords()); err != nil {
		t.Fatalf("ExportRecords() error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][0] != "id" || rows[0][9] != "message" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][4] != "3" || rows[1][5] != "true" || rows[1][6] != "abnormal" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][4] != "" {
		t.Errorf("unbound record template_id = %q, want empty", rows[2][4])
	}
	if rows[2][9] != `user said "hi", then left` {
		t.Errorf("quoted message = %q", rows[2][9])
	}
}

func TestExportRecords_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter(JSON, &buf).ExportRecords(sampleRecords()); err != nil {
		t.Fatalf("ExportRecords() error: %v", err)
	}

	var got []models.LogRecord
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || got[0].AnomalyReason != "bandwidth below 32" {
		t.Errorf("got %+v", got)
	}
}

func TestExportRecords_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter(JSON, &buf).ExportRecords(nil); err != nil {
		t.Fatalf("ExportRecords() error: %v", err)
	}
	if got := bytes.TrimSpace(buf.Bytes()); string(got) != "[]" {
		t.Errorf("empty export = %q, want []", got)
	}
}
