package bgtask

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tvandergeer/bgtask/telemetry"
)

// DefaultLogFile is where the process-wide sink appends by default, relative
// to the working directory.
const DefaultLogFile = "log--bg-task.log"

// Sink is the leveled destination failure records are reported to. It wraps
// a slog.Logger writing to a console stream and, optionally, an append-mode
// log file. Raw trace text is additionally appended to the file so the full
// stack survives even when the structured line is all the console shows.
//
// A Sink is safe for use from concurrently running tasks: the log file is
// opened in append mode and raw appends are serialized internally.
type Sink struct {
	logger  *slog.Logger
	console io.Writer
	files   []string

	mu   sync.Mutex
	file *os.File
}

// SinkOption configures a Sink.
type SinkOption func(*sinkConfig)

type sinkConfig struct {
	console io.Writer
	logFile string
	level   slog.Leveler
}

// WithLogFile attaches an append-mode file destination to the sink. The file
// is created if missing.
func WithLogFile(path string) SinkOption { return func(c *sinkConfig) { c.logFile = path } }

// WithConsoleWriter redirects the sink's console stream (default os.Stderr).
func WithConsoleWriter(w io.Writer) SinkOption { return func(c *sinkConfig) { c.console = w } }

// WithLevel sets the minimum level for the sink's logger (default Debug, so
// the file captures everything the way the original file handler did).
func WithLevel(l slog.Leveler) SinkOption { return func(c *sinkConfig) { c.level = l } }

// NewSink constructs a Sink. A file destination that cannot be opened is
// skipped rather than failing construction; the sink then behaves as
// console-only and FilePaths returns nothing.
func NewSink(opts ...SinkOption) *Sink {
	cfg := sinkConfig{console: os.Stderr, level: slog.LevelDebug}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Sink{console: cfg.console}
	w := cfg.console
	if cfg.logFile != "" {
		if f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			s.file = f
			if abs, err := filepath.Abs(cfg.logFile); err == nil {
				s.files = append(s.files, abs)
			} else {
				s.files = append(s.files, cfg.logFile)
			}
			w = io.MultiWriter(cfg.console, f)
		}
	}
	s.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.level}))
	return s
}

// Logger returns the sink's structured logger.
func (s *Sink) Logger() *slog.Logger { return s.logger }

// FilePaths returns the absolute paths of the sink's file destinations,
// empty when the sink is console-only.
func (s *Sink) FilePaths() []string {
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

// AppendRaw appends raw text to the sink's file destination. Best effort:
// a console-only sink and write failures are both silently ignored so a
// broken log file can never mask the failure being recorded.
func (s *Sink) AppendRaw(text string) {
	if s.file == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.WriteString(text); err != nil {
		telemetry.TraceAppendFailures.Inc()
	}
}

// Close releases the sink's file destination, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

var (
	defaultSink     *Sink
	defaultSinkOnce sync.Once
)

// DefaultSink returns the process-wide sink, creating it on first use with a
// DefaultLogFile destination in the working directory.
func DefaultSink() *Sink {
	defaultSinkOnce.Do(func() {
		defaultSink = NewSink(WithLogFile(DefaultLogFile))
	})
	return defaultSink
}
