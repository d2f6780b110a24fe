// Package logger initializes the process-wide slog logger, filtering
// third-party library output unless the level is DEBUG. Grounded on
// `pkg/logger/logger.go` in the teacher repo.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/agoraflow/agora"

// ParseLevel converts a string log level to slog.Level. An unrecognized
// value falls back to warn, matching the teacher's conservative default.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler wraps a slog handler and drops logs from outside this
// module unless the level is DEBUG — noisy driver/SDK logging otherwise
// drowns out run progress at info level.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePrefix) || strings.Contains(file, "/agora/")
}

// simpleHandler renders "LEVEL message key=value ..." — the "simple"
// format, the teacher's default for interactive use.
type simpleHandler struct {
	out io.Writer
}

// Init builds the process-wide default logger. format is "simple"
// (level + message + attrs) or anything else, which falls back to
// slog's standard text encoding.
func Init(level slog.Level, out *os.File, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "simple", "":
		handler = &simpleHandler{out: out}
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	slog.SetDefault(slog.New(&filteringHandler{handler: handler, minLevel: level}))
}

func (h *simpleHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *simpleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(strings.ToUpper(record.Level.String()))
	b.WriteString(" ")
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.out.Write([]byte(b.String()))
	return err
}

func (h *simpleHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *simpleHandler) WithGroup(_ string) slog.Handler      { return h }

// OpenLogFile opens or creates a log file for Init's output file, and
// returns a cleanup func to close it at shutdown.
func OpenLogFile(path string) (*os.File, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
