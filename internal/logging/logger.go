// Package logging wraps logrus with an optional lumberjack-rotated file
// sink, following the JSON-structured setup in
// rogeecn-any-hub/internal/logging/logger.go, and adds the Time/TimeEnd
// pair the pack cache strategy uses to log rewrite durations.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a Logger's destination and rotation policy.
type Options struct {
	Level      string // logrus level name; defaults to "info" if unparsable
	FilePath   string // empty means stdout only
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Logger is a thin wrapper over *logrus.Logger adding named interval
// timers, grounded on the teacher pack's own timing-log conventions.
type Logger struct {
	l *logrus.Logger

	mu     sync.Mutex
	starts map[string]time.Time
}

// New builds a Logger per opts, falling back to stdout if the log file's
// directory cannot be created.
func New(opts Options) *Logger {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	out, outErr := buildOutput(opts)

	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	logger := &Logger{l: l, starts: map[string]time.Time{}}

	if outErr != nil {
		logger.Warn("logger: falling back to stdout: %v", outErr)
	}
	return logger
}

func buildOutput(opts Options) (io.Writer, error) {
	if opts.FilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("create log dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
		LocalTime:  true,
	}, nil
}

// Log writes an info-level message.
func (lg *Logger) Log(format string, args ...any) {
	lg.l.Infof(format, args...)
}

// Warn writes a warn-level message.
func (lg *Logger) Warn(format string, args ...any) {
	lg.l.Warnf(format, args...)
}

// Debug writes a debug-level message.
func (lg *Logger) Debug(format string, args ...any) {
	lg.l.Debugf(format, args...)
}

// Time starts a named interval timer, logged when TimeEnd is called with
// the same label.
func (lg *Logger) Time(label string) {
	lg.mu.Lock()
	lg.starts[label] = time.Now()
	lg.mu.Unlock()
}

// TimeEnd logs the elapsed duration since the matching Time call. A label
// with no matching Time is logged with a zero duration.
func (lg *Logger) TimeEnd(label string) {
	lg.mu.Lock()
	start, ok := lg.starts[label]
	delete(lg.starts, label)
	lg.mu.Unlock()

	var elapsed time.Duration
	if ok {
		elapsed = time.Since(start)
	}
	lg.l.WithField("elapsed_ms", elapsed.Milliseconds()).Infof("%s", label)
}
