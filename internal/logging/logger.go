package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fadedpez/spinz/internal/types"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var slogLevels = map[Level]slog.Level{
	DEBUG: slog.LevelDebug,
	INFO:  slog.LevelInfo,
	WARN:  slog.LevelWarn,
	ERROR: slog.LevelError,
}

// ParseLevel converts a level name such as "debug" or "WARN" into a Level.
// Unknown names fall back to INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger is a leveled printf-style logger on top of slog
type Logger struct {
	handler slog.Handler
	level   Level
}

// NewLogger creates a new logger instance writing text records to stdout
func NewLogger(level Level) *Logger {
	return NewLoggerWithWriter(os.Stdout, level, false)
}

// NewLoggerWithWriter creates a logger writing to w, as JSON when jsonFormat is set
func NewLoggerWithWriter(w io.Writer, level Level, jsonFormat bool) *Logger {
	opts := &slog.HandlerOptions{Level: slogLevels[level], AddSource: true}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{handler: handler, level: level}
}

// With returns a logger that adds the given key/value pairs to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		handler: slog.New(l.handler).With(args...).Handler(),
		level:   l.level,
	}
}

// Slog exposes the underlying slog.Logger for libraries that want one
func (l *Logger) Slog() *slog.Logger {
	return slog.New(l.handler)
}

func (l *Logger) log(level Level, msg string, attrs ...slog.Attr) {
	if level < l.level {
		return
	}
	ctx := context.Background()
	if !l.handler.Enabled(ctx, slogLevels[level]) {
		return
	}

	// skip runtime.Callers, log and the exported method
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), slogLevels[level], msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.handler.Handle(ctx, r)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, v...))
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, v...))
}

// LogError logs an error, expanding code and cause for typed errors
func (l *Logger) LogError(err error) {
	var typed *types.Error
	if errors.As(err, &typed) {
		attrs := []slog.Attr{
			slog.String("code", string(typed.Code)),
			slog.String("message", typed.Message),
		}
		if typed.Err != nil {
			attrs = append(attrs, slog.String("cause", typed.Err.Error()))
		}
		if typed.ResultID != "" {
			attrs = append(attrs, slog.String("result_id", typed.ResultID))
		}
		l.log(ERROR, "request failed", attrs...)
		return
	}

	l.log(ERROR, "unexpected error", slog.String("error", fmt.Sprint(err)))
}

// Default logger instance
var Default = NewLogger(INFO)
