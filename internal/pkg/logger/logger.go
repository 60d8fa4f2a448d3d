// Package logger wraps log/slog with the fields evaluation code tags its
// records with: run, dataset split and scan.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/scenegraph/sgeval/internal/pkg/security"
)

// Logger is a slog.Logger with evaluation helpers.
type Logger struct {
	*slog.Logger
}

// New writes to stderr so a report printed on stdout stays parseable.
func New(level, format string) *Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter builds a text or JSON logger on w. An unrecognized level
// falls back to info.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// Default is an info-level text logger on stderr.
func Default() *Logger {
	return New("info", "text")
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.With(args...)}
}

// WithRun tags records with an evaluation run ID.
func (l *Logger) WithRun(runID string) *Logger {
	if runID == "" {
		return l
	}
	return l.with("run_id", runID)
}

// WithDataset tags records with the dataset kind and split being evaluated.
func (l *Logger) WithDataset(kind, split string) *Logger {
	return l.with(slog.Group("dataset", "kind", kind, "split", split))
}

// WithScan tags records with a scan ID. Scan IDs come from dataset files and
// are sanitized.
func (l *Logger) WithScan(scanID string) *Logger {
	return l.with("scan_id", security.SanitizeForLog(scanID))
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}
