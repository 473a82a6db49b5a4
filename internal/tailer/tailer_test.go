package tailer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collect(t *testing.T, lines <-chan Line, n int, timeout time.Duration) []Line {
	t.Helper()
	var got []Line
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case l, ok := <-lines:
			if !ok {
				return got
			}
			if l.Err != nil {
				t.Fatalf("unexpected line error: %v", l.Err)
			}
			got = append(got, l)
		case <-deadline:
			t.Fatalf("timed out after %d of %d lines", len(got), n)
		}
	}
	return got
}

func appendTo(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestNew_MissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.log"), nil); err == nil {
		t.Error("New() should fail for a missing file")
	}
}

func TestTailer_ExistingThenAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syslog")
	if err := os.WriteFile(path, []byte("line 1\nline 2\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	opts := DefaultOptions()
	opts.PollInterval = 20 * time.Millisecond
	tl, err := New(path, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tl.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tl.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := collect(t, tl.Lines(), 2, 2*time.Second)
	if got[0].Text != "line 1" || got[1].Text != "line 2" || got[1].Num != 2 {
		t.Errorf("existing lines = %+v", got)
	}

	// A partial line is held until its newline arrives.
	appendTo(t, path, "line 3\r\nline ")
	appendTo(t, path, "4\n")
	got = collect(t, tl.Lines(), 2, 2*time.Second)
	if got[0].Text != "line 3" || got[1].Text != "line 4" {
		t.Errorf("appended lines = %q, %q", got[0].Text, got[1].Text)
	}
	if got[1].Num != 4 {
		t.Errorf("Num = %d, want 4", got[1].Num)
	}
}

func TestTailer_FromEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syslog")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	opts := DefaultOptions()
	opts.FromStart = false
	opts.PollInterval = 20 * time.Millisecond
	tl, err := New(path, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tl.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tl.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	appendTo(t, path, "new\n")
	got := collect(t, tl.Lines(), 1, 2*time.Second)
	if got[0].Text != "new" {
		t.Errorf("first line = %q, want new", got[0].Text)
	}
}

func TestTailer_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syslog")
	if err := os.WriteFile(path, []byte("a long first line\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	opts := DefaultOptions()
	opts.PollInterval = 20 * time.Millisecond
	tl, err := New(path, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tl.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tl.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	collect(t, tl.Lines(), 1, 2*time.Second)

	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	got := collect(t, tl.Lines(), 1, 2*time.Second)
	if got[0].Text != "x" {
		t.Errorf("line after truncation = %q, want x", got[0].Text)
	}
}

func TestTailer_StopClosesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syslog")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	tl, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tl.Stop()
	tl.Stop()

	select {
	case _, ok := <-tl.Lines():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Error("Lines() not closed after Stop()")
	}
}
