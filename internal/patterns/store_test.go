package patterns

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

const (
	pcieMessage = "[    1.234567] pci 0000:01:00.0: 31.504 Gb/s available PCIe bandwidth, limited by 8.0 GT/s PCIe x4 link"
	pcieRegex   = `pci\s+\S+:\s+(?P<available_bandwidth>\d+\.?\d*)\s+Gb/s\s+available\s+PCIe\s+bandwidth`
)

func setupTestStore(t *testing.T) (*storage.SQLiteStorage, *Store) {
	t.Helper()

	st := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "patterns.db"), time.Second)
	if err := st.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}
	return st, NewStore(st, nil, nil, nil)
}

func resolve(t *testing.T, st *storage.SQLiteStorage, s *Store, msg string) Resolution {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	res, err := s.Resolve(ctx, tx, msg)
	if err != nil {
		tx.Rollback()
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return res
}

func storeRecord(t *testing.T, st *storage.SQLiteStorage, msg string, templateID int64) *models.LogRecord {
	t.Helper()
	rec := &models.LogRecord{
		Timestamp:      time.Now(),
		RawLine:        msg,
		Message:        msg,
		TemplateID:     templateID,
		Classification: models.ClassUnknown,
	}
	if err := st.Records().Create(context.Background(), rec); err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

func TestResolve_Dedup(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	first := resolve(t, st, s, "eth0 link up 1000 Mbps")
	if !first.Created || first.Known {
		t.Errorf("first occurrence = %+v, want created and unknown", first)
	}

	second := resolve(t, st, s, "eth1 link up 100 Mbps")
	if second.Created || !second.Known {
		t.Errorf("second occurrence = %+v, want existing and known", second)
	}
	if second.Template.ID != first.Template.ID {
		t.Errorf("template ids differ: %d vs %d", first.Template.ID, second.Template.ID)
	}

	count, _ := st.Templates().Count(ctx)
	if count != 1 {
		t.Errorf("template count = %d, want 1", count)
	}
	tmpl, _ := st.Templates().GetByID(ctx, first.Template.ID)
	if tmpl.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", tmpl.TotalCount)
	}
	if tmpl.SampleMessage != "eth0 link up 1000 Mbps" {
		t.Errorf("SampleMessage = %q", tmpl.SampleMessage)
	}
}

func TestResolve_ManualMakesFirstOccurrenceKnown(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	manual, created, err := s.CreateManual(ctx, ManualTemplate{
		Regex:    pcieRegex,
		Label:    models.ClassNormal,
		Severity: models.SeverityInfo,
	}, false)
	if err != nil || !created {
		t.Fatalf("CreateManual() = %v, %v", created, err)
	}

	res := resolve(t, st, s, pcieMessage)
	if !res.Known || !res.ManualMatched {
		t.Errorf("Resolve() = %+v, want known via manual template", res)
	}
	if !res.Created {
		t.Error("auto template should still be created for discovery")
	}
	if res.Template.ID != manual.ID {
		t.Errorf("bound template = %d, want manual %d", res.Template.ID, manual.ID)
	}

	count, _ := st.Templates().Count(ctx)
	if count != 2 {
		t.Errorf("template count = %d, want 2 (manual + auto)", count)
	}

	// The auto template now exists, so the next identical line is known
	// through it and the manual scan is skipped.
	again := resolve(t, st, s, pcieMessage)
	if !again.Known || again.ManualMatched || again.Template.Pattern.IsManual() {
		t.Errorf("second Resolve() = %+v, want known via auto template", again)
	}
}

func TestResolve_SkipsInvalidManualRegex(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	bad := models.NewAutoTemplate("", "", time.Now())
	bad.Pattern = models.ManualPattern(`(unclosed`)
	if err := st.Templates().Create(ctx, bad); err != nil {
		t.Fatalf("create template: %v", err)
	}
	if _, _, err := s.CreateManual(ctx, ManualTemplate{Regex: `disk\s+\w+\s+failed`}, false); err != nil {
		t.Fatalf("CreateManual() error = %v", err)
	}

	res := resolve(t, st, s, "disk sda failed")
	if !res.ManualMatched {
		t.Errorf("Resolve() = %+v, want manual match after skipping invalid regex", res)
	}
	n, _ := s.Cache().Len(ctx, st.Templates())
	if n != 1 {
		t.Errorf("cache size = %d, want 1", n)
	}
}

func TestResolve_AutoEqualToManual(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	// A manual template whose text equals the generated one is found by
	// the equality lookup.
	manual, _, err := s.CreateManual(ctx, ManualTemplate{Regex: `fan\s+\d+\s+ok`}, false)
	if err != nil {
		t.Fatalf("CreateManual() error = %v", err)
	}
	res := resolve(t, st, s, "fan 3 ok")
	if res.Created || !res.Known || res.Template.ID != manual.ID {
		t.Errorf("Resolve() = %+v, want existing manual template", res)
	}
}

func TestCreateManual(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	tmpl, created, err := s.CreateManual(ctx, ManualTemplate{
		Regex: `oom-killer`, Label: models.ClassAbnormal, Severity: models.SeverityCritical,
	}, false)
	if err != nil || !created {
		t.Fatalf("CreateManual() = %v, %v", created, err)
	}
	if tmpl.TotalCount != 0 || !tmpl.Pattern.IsManual() {
		t.Errorf("new manual template = %+v", tmpl)
	}

	existing, _, err := s.CreateManual(ctx, ManualTemplate{Regex: `oom-killer`}, false)
	if !errors.Is(err, ErrDuplicateTemplate) {
		t.Errorf("duplicate error = %v, want ErrDuplicateTemplate", err)
	}
	if existing == nil || existing.ID != tmpl.ID {
		t.Errorf("duplicate should return the existing template")
	}

	updated, created, err := s.CreateManual(ctx, ManualTemplate{
		Regex: `oom-killer`, Label: models.ClassIgnore, Note: "expected during tests",
	}, true)
	if err != nil || created {
		t.Fatalf("update CreateManual() = %v, %v", created, err)
	}
	if updated.Label != models.ClassIgnore || updated.Note != "expected during tests" {
		t.Errorf("updated template = %+v", updated)
	}

	tests := []struct {
		name string
		in   ManualTemplate
		want error
	}{
		{"bad regex", ManualTemplate{Regex: `([`}, ErrInvalidRegex},
		{"empty regex", ManualTemplate{}, ErrInvalidRegex},
		{"bad label", ManualTemplate{Regex: "x", Label: "weird"}, models.ErrInvalidLabel},
		{"bad severity", ManualTemplate{Regex: "x", Severity: "loud"}, models.ErrInvalidSeverity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.CreateManual(ctx, tt.in, false); !errors.Is(err, tt.want) {
				t.Errorf("CreateManual() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRelabel_Cascades(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	res := resolve(t, st, s, "usb 1-1: new device 7")
	for i := 0; i < 3; i++ {
		storeRecord(t, st, "usb 1-1: new device 7", res.Template.ID)
	}
	storeRecord(t, st, "unrelated", 0)

	sev := models.SeverityWarning
	note := "flapping hub"
	n, err := s.Relabel(ctx, res.Template.ID, models.ClassAbnormal, &sev, &note)
	if err != nil {
		t.Fatalf("Relabel() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Relabel() = %d records, want 3", n)
	}

	tmpl, _ := st.Templates().GetByID(ctx, res.Template.ID)
	if tmpl.Label != models.ClassAbnormal || tmpl.Severity != models.SeverityWarning || tmpl.Note != note {
		t.Errorf("template = %+v", tmpl)
	}
	counts, _ := st.Records().CountByClassification(ctx, time.Time{})
	if counts[models.ClassAbnormal] != 3 || counts[models.ClassUnknown] != 1 {
		t.Errorf("classification counts = %v", counts)
	}

	// Omitted severity keeps the template's current one.
	if _, err := s.Relabel(ctx, res.Template.ID, models.ClassNormal, nil, nil); err != nil {
		t.Fatalf("Relabel() error = %v", err)
	}
	tmpl, _ = st.Templates().GetByID(ctx, res.Template.ID)
	if tmpl.Severity != models.SeverityWarning || tmpl.Note != note {
		t.Errorf("severity and note should be kept: %+v", tmpl)
	}

	if _, err := s.Relabel(ctx, 9999, models.ClassNormal, nil, nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Relabel(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Relabel(ctx, res.Template.ID, "bogus", nil, nil); !errors.Is(err, models.ErrInvalidLabel) {
		t.Errorf("Relabel(bogus) error = %v, want ErrInvalidLabel", err)
	}
}

func TestSetRegexAndReprocess(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	res := resolve(t, st, s, pcieMessage)
	matching := storeRecord(t, st, pcieMessage, res.Template.ID)
	other := storeRecord(t, st, "pci 0000:02:00.0: 63.008 Gb/s available PCIe bandwidth", 0)
	storeRecord(t, st, "nothing to see", 0)

	if _, err := s.SetRegex(ctx, res.Template.ID, `([`); !errors.Is(err, ErrInvalidRegex) {
		t.Errorf("SetRegex(bad) error = %v, want ErrInvalidRegex", err)
	}

	tmpl, err := s.SetRegex(ctx, res.Template.ID, pcieRegex)
	if err != nil {
		t.Fatalf("SetRegex() error = %v", err)
	}
	if !tmpl.Pattern.IsManual() {
		t.Error("SetRegex() should make the template manual")
	}

	limit := 50.0
	rule := models.NewRule(tmpl.ID, models.RuleThreshold)
	rule.Field = "available_bandwidth"
	rule.Op = models.OpLTE
	rule.Value = &limit
	rule.Severity = models.SeverityWarning
	if err := st.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	result, err := s.Reprocess(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if result.Matched != 2 || result.WithParams != 2 || result.Abnormal != 1 {
		t.Errorf("Reprocess() = %+v, want 2 matched, 2 with params, 1 abnormal", result)
	}

	got, _ := st.Records().GetByID(ctx, matching.ID)
	if got.Classification != models.ClassAbnormal || got.Severity != models.SeverityWarning {
		t.Errorf("low bandwidth record = %+v", got)
	}
	got, _ = st.Records().GetByID(ctx, other.ID)
	if !got.IsKnown || got.TemplateID != tmpl.ID || got.Classification != models.ClassNormal {
		t.Errorf("high bandwidth record = %+v", got)
	}
	params, _ := st.Params().ListByRecord(ctx, other.ID)
	if len(params) != 1 || params[0].Num == nil || *params[0].Num != 63.008 {
		t.Errorf("params = %+v", params)
	}
}

func TestSetRegex_Duplicate(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	a := resolve(t, st, s, "alpha 1")
	resolve(t, st, s, "beta 2")
	b := resolve(t, st, s, "beta 3")

	if _, err := s.SetRegex(ctx, b.Template.ID, a.Template.Pattern.Regex()); !errors.Is(err, ErrDuplicateTemplate) {
		t.Errorf("SetRegex() error = %v, want ErrDuplicateTemplate", err)
	}
}

func TestMapRecordAndPromote(t *testing.T) {
	st, s := setupTestStore(t)
	ctx := context.Background()

	tmpl, _, err := s.CreateManual(ctx, ManualTemplate{Regex: `watchdog`, Label: models.ClassUnknown}, false)
	if err != nil {
		t.Fatalf("CreateManual() error = %v", err)
	}
	rec := storeRecord(t, st, "soft lockup", 0)

	mapped, err := s.MapRecord(ctx, rec.ID, tmpl.ID)
	if err != nil {
		t.Fatalf("MapRecord() error = %v", err)
	}
	if !mapped.IsKnown || !mapped.IsManualMapped || mapped.TemplateID != tmpl.ID {
		t.Errorf("mapped record = %+v", mapped)
	}
	if mapped.Classification != models.ClassNormal {
		t.Errorf("Classification = %q, want unknown label normalized to normal", mapped.Classification)
	}

	if _, err := s.MapRecord(ctx, 9999, tmpl.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("MapRecord(missing record) error = %v", err)
	}

	lone := storeRecord(t, st, "thermal zone 2 tripped at 95 C", 0)
	promoted, err := s.Promote(ctx, lone.ID, models.ClassAbnormal, models.SeverityCritical, "overheat")
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if promoted.Label != models.ClassAbnormal {
		t.Errorf("promoted label = %q", promoted.Label)
	}
	got, _ := st.Records().GetByID(ctx, lone.ID)
	if got.TemplateID != promoted.ID || got.Classification != models.ClassAbnormal || !got.IsManualMapped {
		t.Errorf("promoted record = %+v", got)
	}

	res := resolve(t, st, s, "thermal zone 4 tripped at 101 C")
	if !res.Known || res.Template.ID != promoted.ID {
		t.Errorf("later line should bind to promoted template, got %+v", res)
	}
}
