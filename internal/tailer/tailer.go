// Package tailer follows a growing log file and survives rotation and
// truncation.
package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Line is a single complete line read from the followed file.
type Line struct {
	Text string
	// Num counts lines since the tailer started, across rotations.
	Num  int64
	Path string
	Time time.Time
	Err  error
}

// Options contains options for configuring a Tailer.
type Options struct {
	// FromStart emits the file's existing content before following.
	FromStart bool
	// PollInterval is the size check interval used alongside fsnotify.
	PollInterval time.Duration
	// ReOpen reopens the path when the file is replaced (rotation).
	ReOpen bool
	// Buffer is the capacity of the Lines channel.
	Buffer int
	Logger *zap.Logger
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		FromStart:    true,
		PollInterval: 250 * time.Millisecond,
		ReOpen:       true,
		Buffer:       256,
	}
}

// Tailer watches one file and emits lines as they are written. A trailing
// line without a newline is held back until it is completed.
type Tailer struct {
	path    string
	opts    *Options
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	file    *os.File
	reader  *bufio.Reader
	size    int64
	partial strings.Builder
	num     int64

	lines chan Line
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates a Tailer for path. The file must exist.
func New(path string, opts *Options) (*Tailer, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	t := &Tailer{
		path:    absPath,
		opts:    opts,
		logger:  logger.With(zap.String("path", absPath)),
		watcher: watcher,
		lines:   make(chan Line, opts.Buffer),
		done:    make(chan struct{}),
	}

	if err := t.open(); err != nil {
		watcher.Close()
		return nil, err
	}
	if !opts.FromStart {
		offset, err := t.file.Seek(0, io.SeekEnd)
		if err != nil {
			t.file.Close()
			watcher.Close()
			return nil, fmt.Errorf("seek to end: %w", err)
		}
		t.size = offset
		t.reader = bufio.NewReader(t.file)
	}

	return t, nil
}

// Path returns the absolute path being followed.
func (t *Tailer) Path() string {
	return t.path
}

// Lines returns the channel of lines. It is closed when the tailer stops.
func (t *Tailer) Lines() <-chan Line {
	return t.lines
}

// Start watches the file's directory and begins emitting lines.
func (t *Tailer) Start(ctx context.Context) error {
	if err := t.watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	go t.run(ctx)
	return nil
}

// Stop stops the tailer. It is safe to call more than once.
func (t *Tailer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
	t.watcher.Close()
}

func (t *Tailer) open() error {
	file, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat file: %w", err)
	}
	t.file = file
	t.reader = bufio.NewReader(file)
	t.size = info.Size()
	t.partial.Reset()
	return nil
}

func (t *Tailer) run(ctx context.Context) {
	defer close(t.lines)
	defer func() {
		if t.file != nil {
			t.file.Close()
		}
	}()

	t.readLines(ctx)

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleEvent(ctx, event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.send(ctx, Line{Path: t.path, Err: fmt.Errorf("watcher error: %w", err)})
		case <-ticker.C:
			t.checkSize(ctx)
		}
	}
}

func (t *Tailer) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Name != t.path {
		return
	}
	switch {
	case event.Has(fsnotify.Write):
		t.readLines(ctx)
	case event.Has(fsnotify.Create) && t.opts.ReOpen:
		t.reopen(ctx)
	}
}

func (t *Tailer) checkSize(ctx context.Context) {
	info, err := os.Stat(t.path)
	if err != nil {
		// Rotated away; wait for the Create event.
		return
	}

	switch newSize := info.Size(); {
	case newSize < t.size:
		t.logger.Info("file truncated, reading from start")
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			t.send(ctx, Line{Path: t.path, Err: fmt.Errorf("seek after truncation: %w", err)})
			return
		}
		t.reader = bufio.NewReader(t.file)
		t.partial.Reset()
		t.size = 0
		t.readLines(ctx)
	case newSize > t.size:
		t.readLines(ctx)
	}
}

func (t *Tailer) reopen(ctx context.Context) {
	// Drain what the old file still holds.
	t.readLines(ctx)
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}

	for i := 0; i < 10; i++ {
		if err := t.open(); err == nil {
			t.logger.Info("file rotated, reopened")
			t.size = 0
			t.readLines(ctx)
			return
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return
		case <-t.done:
			return
		}
	}
	t.send(ctx, Line{Path: t.path, Err: errors.New("file did not reappear after rotation")})
}

func (t *Tailer) readLines(ctx context.Context) {
	if t.reader == nil {
		return
	}

	for {
		chunk, err := t.reader.ReadString('\n')
		t.size += int64(len(chunk))
		t.partial.WriteString(chunk)

		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.send(ctx, Line{Path: t.path, Err: fmt.Errorf("read error: %w", err)})
			}
			return
		}

		text := strings.TrimRight(t.partial.String(), "\r\n")
		t.partial.Reset()
		t.num++
		if !t.send(ctx, Line{Text: text, Num: t.num, Path: t.path, Time: time.Now()}) {
			return
		}
	}
}

func (t *Tailer) send(ctx context.Context, line Line) bool {
	select {
	case t.lines <- line:
		return true
	case <-t.done:
		return false
	case <-ctx.Done():
		return false
	}
}
