package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/platinummonkey/storeadmin/pkg/contextkeys"
)

// LogLevel is the minimum severity a Logger writes
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var slogLevels = map[LogLevel]slog.Level{
	DebugLevel: slog.LevelDebug,
	InfoLevel:  slog.LevelInfo,
	WarnLevel:  slog.LevelWarn,
	ErrorLevel: slog.LevelError,
}

var levelNames = map[string]LogLevel{
	"debug":   DebugLevel,
	"info":    InfoLevel,
	"warn":    WarnLevel,
	"warning": WarnLevel,
	"error":   ErrorLevel,
}

func (l LogLevel) slog() slog.Level {
	if lvl, ok := slogLevels[l]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// String matches the level names slog writes
func (l LogLevel) String() string {
	return l.slog().String()
}

// ParseLogLevel reads STOREADMIN_LOG_LEVEL style names; unknown names mean info
func ParseLogLevel(name string) LogLevel {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return InfoLevel
}

// Logger writes one JSON object per line. Fields attached with WithField and
// friends are carried by the derived logger only.
type Logger struct {
	base *slog.Logger
}

// NewLogger writes to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{base: slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slog()}))}
}

// NopLogger discards everything
func NopLogger() *Logger {
	return &Logger{base: slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

// WithField returns a logger that adds key to every entry
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(key, value)
}

// WithFields is WithField for several keys
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, len(fields))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return l.with(args...)
}

// WithError records err under "error"; a nil error returns l unchanged
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

func (l *Logger) write(level slog.Level, msg string) {
	l.base.Log(context.Background(), level, msg)
}

func (l *Logger) Debug(msg string) { l.write(slog.LevelDebug, msg) }
func (l *Logger) Info(msg string)  { l.write(slog.LevelInfo, msg) }
func (l *Logger) Warn(msg string)  { l.write(slog.LevelWarn, msg) }
func (l *Logger) Error(msg string) { l.write(slog.LevelError, msg) }

// Errorf formats like fmt.Sprintf
func (l *Logger) Errorf(format string, args ...any) {
	l.write(slog.LevelError, fmt.Sprintf(format, args...))
}

// WithLogger stores the request logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, logger)
}

// FromContext returns the request logger tagged with the request id, the
// admin user id and the active trace. Outside a request it logs to stdout at info.
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger)
	if !ok {
		logger = NewLogger(InfoLevel, os.Stdout)
	}

	var attrs []any
	if id := contextkeys.GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id := contextkeys.GetUserID(ctx); id != "" {
		attrs = append(attrs, slog.String("user_id", id))
	}
	if len(attrs) > 0 {
		logger = logger.with(attrs...)
	}
	return WithTraceContext(ctx, logger)
}
