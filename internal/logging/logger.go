// Package logging sets up the slog logger. Hook invocations own stdout for
// their response, so records go to an append-only file under ~/.skillspan
// and, when verbose, to stderr as well.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger is a slog.Logger bound to an open log file.
type Logger struct {
	*slog.Logger
	file *os.File
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown names are
// treated as info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New opens (creating if needed) path in append mode and returns a text
// logger at level. With verbose set, records are mirrored to stderr. If the
// file cannot be opened the logger falls back to stderr and the error is
// returned alongside it.
func New(path, level string, verbose bool) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	f, err := open(path)
	if err != nil {
		return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, opts))}, err
	}
	var w io.Writer = f
	if verbose {
		w = io.MultiWriter(f, os.Stderr)
	}
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, opts)), file: f}, nil
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func open(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("logging: no log file configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return f, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
