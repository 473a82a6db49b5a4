package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestParser(year int) *SyslogParser {
	return NewSyslogParser(&Options{
		DefaultYear: year,
		Location:    time.UTC,
		Now:         fixedNow,
	})
}

func TestSyslogParser_Parse(t *testing.T) {
	p := newTestParser(2024)

	tests := []struct {
		name      string
		line      string
		wantTS    time.Time
		host      string
		component string
		message   string
	}{
		{
			name:      "kernel line",
			line:      "Jul 14 11:20:17 172.20.224.102 kernel: [    0.005840] ACPI: RSDP 0x00000000000F05B0 000024 (v02 ALASKA)",
			wantTS:    time.Date(2024, 7, 14, 11, 20, 17, 0, time.UTC),
			host:      "172.20.224.102",
			component: "kernel",
			message:   "[    0.005840] ACPI: RSDP 0x00000000000F05B0 000024 (v02 ALASKA)",
		},
		{
			name:      "padded day",
			line:      "Jan  2 03:04:05 node01 systemd[1]: Started Session 4 of user root.",
			wantTS:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			host:      "node01",
			component: "systemd[1]",
			message:   "Started Session 4 of user root.",
		},
		{
			name:    "unstructured",
			line:    "  something went wrong  ",
			wantTS:  fixedNow(),
			message: "something went wrong",
		},
		{
			name:    "bad month",
			line:    "Foo 14 11:20:17 host kernel: message",
			wantTS:  fixedNow(),
			host:    "host",
			message: "message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.line)
			if !got.Timestamp.Equal(tt.wantTS) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.wantTS)
			}
			if got.Host != tt.host {
				t.Errorf("Host = %q, want %q", got.Host, tt.host)
			}
			if tt.component != "" && got.Component != tt.component {
				t.Errorf("Component = %q, want %q", got.Component, tt.component)
			}
			if got.Message != tt.message {
				t.Errorf("Message = %q, want %q", got.Message, tt.message)
			}
			if got.Raw != strings.TrimSpace(tt.line) {
				t.Errorf("Raw = %q", got.Raw)
			}
		})
	}
}

func TestSyslogParser_InvalidUTF8(t *testing.T) {
	p := NewSyslogParser(DefaultOptions())
	got := p.Parse("Dec  2 23:13:14 gpu01 kernel: caf\xe9 device ready")

	if got.Message != "caf device ready" {
		t.Errorf("Message = %q, want invalid byte dropped", got.Message)
	}
	if !utf8.ValidString(got.Raw) {
		t.Errorf("Raw = %q is not valid UTF-8", got.Raw)
	}
}

func TestSyslogParser_DefaultYear(t *testing.T) {
	p := newTestParser(0)
	got := p.Parse("Jul 14 11:20:17 h kernel: x")
	if got.Timestamp.Year() != 2025 {
		t.Errorf("Year = %d, want 2025", got.Timestamp.Year())
	}
}

func TestScanLines(t *testing.T) {
	input := "first\r\n\n   \nsecond\nthird"
	var got []string
	var nums []int64

	err := ScanLines(context.Background(), strings.NewReader(input), func(n int64, line string) error {
		nums = append(nums, n)
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanLines() error = %v", err)
	}
	want := []string{"first", "", "   ", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i+1, got[i], want[i])
		}
		if nums[i] != int64(i+1) {
			t.Errorf("line number = %d, want %d", nums[i], i+1)
		}
	}
}

func TestScanLines_LongLine(t *testing.T) {
	long := strings.Repeat("a", 2<<20)
	input := "before\n" + long + "\nafter\n"
	var got []string

	err := ScanLines(context.Background(), strings.NewReader(input), func(n int64, line string) error {
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanLines() error = %v", err)
	}
	if len(got) != 3 || got[0] != "before" || len(got[1]) != len(long) || got[2] != "after" {
		t.Errorf("got %d lines, want before, %d bytes, after", len(got), len(long))
	}
}

func TestScanLines_StopsOnError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := ScanLines(context.Background(), strings.NewReader("a\nb\nc"), func(int64, string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestScanLines_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ScanLines(ctx, strings.NewReader("a\nb"), func(int64, string) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
