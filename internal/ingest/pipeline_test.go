package ingest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/extractor"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/patterns"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/rules"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/tailer"
)

const (
	pcieLine  = "Oct 18 10:00:00 node1 kernel: [    1.234567] pci 0000:01:00.0: 31.504 Gb/s available PCIe bandwidth, limited by 8.0 GT/s PCIe x4 link"
	pcieRegex = `pci\s+\S+:\s+(?P<available_bandwidth>\d+\.?\d*)\s+Gb/s\s+available\s+PCIe\s+bandwidth`
)

type testEnv struct {
	storage *storage.SQLiteStorage
	store   *patterns.Store
	engine  *rules.Engine
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ingest.db"), time.Second)
	if err := st.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	engine := rules.NewEngine(nil)
	return &testEnv{
		storage: st,
		store:   patterns.NewStore(st, engine, nil, nil),
		engine:  engine,
	}
}

func (e *testEnv) pipeline(opts *Options) *Pipeline {
	return New(e.storage, e.store, e.engine, opts, nil)
}

func (e *testEnv) manual(t *testing.T, regex, sample string) *models.Template {
	t.Helper()
	tmpl, _, err := e.store.CreateManual(context.Background(), patterns.ManualTemplate{
		Regex:         regex,
		SampleMessage: sample,
		Label:         models.ClassNormal,
	}, false)
	if err != nil {
		t.Fatalf("CreateManual() error = %v", err)
	}
	return tmpl
}

func lines(ls ...string) *strings.Reader {
	return strings.NewReader(strings.Join(ls, "\n") + "\n")
}

func TestPipeline_PCIeBandwidthRule(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tmpl := env.manual(t, pcieRegex, "pci 0000:01:00.0: 31.504 Gb/s available PCIe bandwidth")
	rule := models.NewRule(tmpl.ID, models.RuleThreshold)
	rule.Field = "available_bandwidth"
	rule.Op = models.OpLTE
	limit := 50.0
	rule.Value = &limit
	rule.Severity = models.SeverityWarning
	rule.Message = "PCIe bandwidth degraded"
	if err := rules.Add(ctx, env.storage, rule); err != nil {
		t.Fatalf("rules.Add() error = %v", err)
	}

	stats, err := env.pipeline(nil).Ingest(ctx, lines(pcieLine))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if stats.TotalLines != 1 || stats.ParsedLines != 1 || stats.Errors != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.NewTemplates != 1 || stats.ExistingTemplates != 1 {
		t.Errorf("templates new=%d existing=%d, want 1 and 1", stats.NewTemplates, stats.ExistingTemplates)
	}

	recs, err := env.storage.Records().List(ctx, storage.RecordFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if !rec.IsKnown || rec.TemplateID != tmpl.ID {
		t.Errorf("record known=%v template=%d, want true and %d", rec.IsKnown, rec.TemplateID, tmpl.ID)
	}
	if rec.Classification != models.ClassAbnormal {
		t.Errorf("Classification = %q, want abnormal", rec.Classification)
	}
	if rec.Severity != models.SeverityWarning {
		t.Errorf("Severity = %q, want warning", rec.Severity)
	}
	if rec.AnomalyReason != "PCIe bandwidth degraded" {
		t.Errorf("AnomalyReason = %q", rec.AnomalyReason)
	}
	if rec.Host != "node1" || rec.Component != "kernel" {
		t.Errorf("host/component = %q/%q", rec.Host, rec.Component)
	}
	if rec.RunID != stats.RunID {
		t.Errorf("RunID = %q, want %q", rec.RunID, stats.RunID)
	}

	params, err := env.storage.Params().ListByRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ListByRecord() error = %v", err)
	}
	if len(params) != 1 || params[0].Name != "available_bandwidth" {
		t.Fatalf("params = %+v", params)
	}
	if params[0].Num == nil || math.Abs(*params[0].Num-31.504) > 1e-9 {
		t.Errorf("available_bandwidth = %v, want 31.504", params[0].Num)
	}

	pending, err := env.storage.Alerts().ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Type != string(models.ClassAbnormal) || pending[0].Channel != models.DefaultAlertChannel {
		t.Errorf("pending alerts = %+v", pending)
	}
}

func TestPipeline_Dedup(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	stats, err := env.pipeline(nil).Ingest(ctx, lines(
		"Oct 18 10:00:00 host sshd[100]: Accepted password for root from 10.0.0.1 port 22",
		"Oct 18 10:00:05 host sshd[101]: Accepted password for root from 10.0.0.2 port 2222",
	))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if stats.NewTemplates != 1 || stats.ExistingTemplates != 1 {
		t.Errorf("templates new=%d existing=%d, want 1 and 1", stats.NewTemplates, stats.ExistingTemplates)
	}
	if stats.AlertsQueued != 1 {
		t.Errorf("AlertsQueued = %d, want 1", stats.AlertsQueued)
	}

	count, err := env.storage.Templates().Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("templates = %d, want 1", count)
	}
	tmpls, err := env.storage.Templates().List(ctx, storage.TemplateFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if tmpls[0].TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", tmpls[0].TotalCount)
	}

	recs, err := env.storage.Records().List(ctx, storage.RecordFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	// Newest first.
	if len(recs) != 2 || !recs[0].IsKnown || recs[1].IsKnown {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Classification != models.ClassNormal || recs[1].Classification != models.ClassUnknown {
		t.Errorf("classifications = %q, %q", recs[0].Classification, recs[1].Classification)
	}
}

func TestPipeline_UnparsableLine(t *testing.T) {
	env := setupTestEnv(t)

	stats, err := env.pipeline(nil).Ingest(context.Background(), lines("no syslog structure here"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if stats.ParsedLines != 1 || stats.Errors != 0 {
		t.Errorf("stats = %+v", stats)
	}

	recs, err := env.storage.Records().List(context.Background(), storage.RecordFilter{Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Message != "no syslog structure here" {
		t.Errorf("records = %+v", recs)
	}
}

type panickyExtractor struct {
	*extractor.Extractor
}

func (p panickyExtractor) Extract(pattern, message string) []models.Parameter {
	if strings.Contains(message, "boom") {
		panic("extractor exploded")
	}
	return p.Extractor.Extract(pattern, message)
}

func TestPipeline_LineIsolation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.manual(t, `boom\s+(?P<n>\d+)`, "boom 7")

	opts := DefaultOptions()
	opts.Extractor = panickyExtractor{extractor.New()}
	stats, err := env.pipeline(opts).Ingest(ctx, lines(
		"Oct 18 10:00:00 host app: first 1",
		"Oct 18 10:00:01 host app: boom 7",
		"Oct 18 10:00:02 host app: third line",
	))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if stats.TotalLines != 3 || stats.ParsedLines != 2 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}

	msgs, err := env.storage.Records().ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	seen := map[string]bool{}
	for _, m := range msgs {
		seen[m.Message] = true
	}
	for _, want := range []string{"first 1", "third line"} {
		if !seen[want] {
			t.Errorf("record %q missing", want)
		}
	}
}

func TestPipeline_CommitCadence(t *testing.T) {
	tests := []struct {
		name        string
		commitEvery int
		lines       int
		want        int64
	}{
		{"every two lines", 2, 5, 3},
		{"exact multiple", 2, 4, 2},
		{"single batch", 1000, 5, 1},
		{"empty input", 2, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			var buf bytes.Buffer
			for i := 0; i < tt.lines; i++ {
				buf.WriteString("Oct 18 10:00:00 host app: event ")
				buf.WriteString(strings.Repeat("x", i+1))
				buf.WriteString("\n")
			}

			opts := DefaultOptions()
			opts.CommitEvery = tt.commitEvery
			stats, err := env.pipeline(opts).Ingest(context.Background(), &buf)
			if err != nil {
				t.Fatalf("Ingest() error = %v", err)
			}
			if stats.Commits != tt.want {
				t.Errorf("Commits = %d, want %d", stats.Commits, tt.want)
			}

			count, err := env.storage.Records().Count(context.Background())
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if count != int64(tt.lines) {
				t.Errorf("records = %d, want %d", count, tt.lines)
			}
		})
	}
}

func TestPipeline_IngestFileMissing(t *testing.T) {
	env := setupTestEnv(t)

	stats, err := env.pipeline(nil).IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.log"))
	if err == nil {
		t.Fatal("IngestFile() should fail for a missing file")
	}
	if stats != nil {
		t.Errorf("stats = %+v, want nil", stats)
	}
}

func TestPipeline_IngestLines(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan tailer.Line)
	type result struct {
		stats *Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := env.pipeline(nil).IngestLines(ctx, "test", ch)
		done <- result{stats, err}
	}()

	ch <- tailer.Line{Text: "Oct 18 10:00:00 host app: followed 1", Num: 1}
	ch <- tailer.Line{Err: errors.New("transient")}
	ch <- tailer.Line{Text: "Oct 18 10:00:01 host app: followed 2", Num: 2}
	cancel()

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("IngestLines() did not return after cancel")
	}
	if !errors.Is(res.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", res.err)
	}
	if res.stats.TotalLines != 2 {
		t.Errorf("TotalLines = %d, want 2", res.stats.TotalLines)
	}

	count, err := env.storage.Records().Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("records after interrupt = %d, want 2", count)
	}
}

func TestStats_WriteSummary(t *testing.T) {
	s := &Stats{TotalLines: 12345, ParsedLines: 12000, NewTemplates: 3, Errors: 1}
	var buf bytes.Buffer
	s.WriteSummary(&buf)

	out := buf.String()
	for _, want := range []string{"Total lines: 12,345", "Parsed lines: 12,000", "New patterns: 3", "Errors: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPipeline_OversizedLine(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	stats, err := env.pipeline(nil).Ingest(ctx, lines(
		"Oct 18 10:00:00 host app: first line 1",
		"Oct 18 10:00:01 host app: second line 2",
		strings.Repeat("a", 2<<20),
		"Oct 18 10:00:03 host app: after long 3",
	))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if stats.TotalLines != 4 || stats.ParsedLines+stats.Errors != 4 {
		t.Errorf("stats = %+v", stats)
	}

	msgs, err := env.storage.Records().ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	seen := map[string]bool{}
	for _, m := range msgs {
		seen[m.Message] = true
	}
	for _, want := range []string{"first line 1", "second line 2", "after long 3"} {
		if !seen[want] {
			t.Errorf("record %q missing", want)
		}
	}
}

func TestPipeline_BlankLinesCounted(t *testing.T) {
	env := setupTestEnv(t)

	stats, err := env.pipeline(nil).Ingest(context.Background(), lines(
		"Oct 18 10:00:00 host app: one 1",
		"",
		"   ",
		"Oct 18 10:00:01 host app: two 2",
	))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if stats.TotalLines != 4 || stats.ParsedLines != 2 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want 4 seen, 2 parsed", stats)
	}
}

func TestPipeline_InvalidUTF8Deduplicated(t *testing.T) {
	env := setupTestEnv(t)
	line := "Dec  2 23:13:14 gpu01 kernel: caf\xe9 device ready"

	stats, err := env.pipeline(nil).Ingest(context.Background(), lines(line, line, line))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if stats.NewTemplates != 1 || stats.ExistingTemplates != 2 {
		t.Errorf("templates new=%d existing=%d, want 1 and 2", stats.NewTemplates, stats.ExistingTemplates)
	}
	if stats.AlertsQueued != 1 {
		t.Errorf("AlertsQueued = %d, want 1", stats.AlertsQueued)
	}
}
