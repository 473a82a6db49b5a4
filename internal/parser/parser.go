// Package parser splits raw log lines into timestamp, host, component and message.
package parser

import (
	"bufio"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// LineParser splits one raw line. Implementations never fail: a line that
// does not fit the expected layout is returned as a bare message.
type LineParser interface {
	Parse(line string) models.ParsedLine
	Name() string
}

// Options contains configuration options for parsers.
type Options struct {
	// DefaultYear fills in the year that syslog timestamps omit.
	// Zero means the current year.
	DefaultYear int

	// Location for parsed timestamps. Nil means time.Local.
	Location *time.Location

	// Now is used for lines without a usable timestamp.
	Now func() time.Time
}

// DefaultOptions returns default parser options.
func DefaultOptions() *Options {
	return &Options{
		Location: time.Local,
		Now:      time.Now,
	}
}

// "Jul 14 11:20:17 172.20.224.102 kernel: [    0.005840] message"
var syslogPattern = regexp.MustCompile(`^(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+(\S+?):\s+(.*)$`)

// SyslogParser parses BSD syslog formatted lines.
type SyslogParser struct {
	opts *Options
}

// NewSyslogParser creates a new SyslogParser.
func NewSyslogParser(opts *Options) *SyslogParser {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SyslogParser{opts: opts}
}

// Name returns the parser name.
func (p *SyslogParser) Name() string {
	return "syslog"
}

// Parse splits line. Surrounding whitespace and invalid UTF-8 bytes are
// removed from the raw line.
func (p *SyslogParser) Parse(line string) models.ParsedLine {
	line = strings.TrimSpace(strings.ToValidUTF8(line, ""))
	parsed := models.ParsedLine{
		Message: line,
		Raw:     line,
	}

	m := syslogPattern.FindStringSubmatch(line)
	if m == nil {
		parsed.Timestamp = p.opts.Now()
		return parsed
	}

	ts, ok := p.parseTimestamp(m[1])
	if !ok {
		ts = p.opts.Now()
	}
	parsed.Timestamp = ts
	parsed.Host = m[2]
	parsed.Component = m[3]
	parsed.Message = m[4]
	return parsed
}

func (p *SyslogParser) parseTimestamp(s string) (time.Time, bool) {
	// Collapse the padding in "Jan  2" so a single layout covers both forms.
	s = strings.Join(strings.Fields(s), " ")
	t, err := time.ParseInLocation("Jan 2 15:04:05", s, p.opts.Location)
	if err != nil {
		return time.Time{}, false
	}

	year := p.opts.DefaultYear
	if year == 0 {
		year = p.opts.Now().Year()
	}
	return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, p.opts.Location), true
}

// ScanLines calls fn for every line read from r, blank ones included, with
// its 1-based line number and the line ending removed. Lines of any length
// are read whole. It stops early when fn returns an error or ctx is canceled.
func ScanLines(ctx context.Context, r io.Reader, fn func(lineNum int64, line string) error) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	var lineNum int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		lineNum++
		if fnErr := fn(lineNum, strings.TrimRight(line, "\r\n")); fnErr != nil {
			return fnErr
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
