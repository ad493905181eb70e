package realtimechat

import (
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	// LogLevelDebug logs everything including detailed debugging information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo logs informational messages and above
	LogLevelInfo
	// LogLevelWarn logs warnings and above
	LogLevelWarn
	// LogLevelError logs only errors
	LogLevelError
	// LogLevelOff disables all logging
	LogLevelOff
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "OFF":
		return LogLevelOff
	default:
		return LogLevelInfo
	}
}

// Logger provides structured logging with configurable levels on top of zap.
// Events are short snake_case names; fields carry the details.
type Logger struct {
	level  LogLevel
	prefix string
	base   *zap.Logger
	z      *zap.Logger
}

// NewLogger creates a new structured logger writing to stderr.
func NewLogger(level LogLevel) *Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zapcore.DebugLevel)
	return NewLoggerWithZap(level, zap.New(core))
}

// NewLoggerWithZap creates a logger that writes through an existing zap logger.
func NewLoggerWithZap(level LogLevel, z *zap.Logger) *Logger {
	l := &Logger{level: level, base: z}
	l.SetPrefix("realtimechat")
	return l
}

// NewLoggerFromEnv creates a logger with level from REALTIMECHAT_LOG_LEVEL env var
func NewLoggerFromEnv() *Logger {
	level := ParseLogLevel(os.Getenv("REALTIMECHAT_LOG_LEVEL"))
	return NewLogger(level)
}

// SetLevel updates the logger's minimum level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// Level returns the logger's minimum level.
func (l *Logger) Level() LogLevel {
	return l.level
}

// SetPrefix updates the logger's name
func (l *Logger) SetPrefix(prefix string) {
	l.prefix = prefix
	l.z = l.base.Named(prefix)
}

// Zap exposes the underlying zap logger. A nil Logger yields a no-op logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.z
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Debug logs debug-level messages
func (l *Logger) Debug(event string, fields map[string]any) {
	l.log(LogLevelDebug, event, fields)
}

// Info logs info-level messages
func (l *Logger) Info(event string, fields map[string]any) {
	l.log(LogLevelInfo, event, fields)
}

// Warn logs warning-level messages
func (l *Logger) Warn(event string, fields map[string]any) {
	l.log(LogLevelWarn, event, fields)
}

// Error logs error-level messages
func (l *Logger) Error(event string, fields map[string]any) {
	l.log(LogLevelError, event, fields)
}

func (l *Logger) log(level LogLevel, event string, fields map[string]any) {
	if l == nil || level < l.level {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			zf = append(zf, zap.NamedError(k, err))
			continue
		}
		zf = append(zf, zap.Any(k, fields[k]))
	}

	switch level {
	case LogLevelDebug:
		l.z.Debug(event, zf...)
	case LogLevelInfo:
		l.z.Info(event, zf...)
	case LogLevelWarn:
		l.z.Warn(event, zf...)
	default:
		l.z.Error(event, zf...)
	}
}

// DefaultLogger is the default logger instance used when no custom logger is provided
var DefaultLogger = NewLoggerFromEnv()

// ContextLogger wraps the base Logger with fields added to every message.
type ContextLogger struct {
	*Logger
	context map[string]any
}

// WithContext returns a logger that includes additional context in all log messages
func (l *Logger) WithContext(context map[string]any) *ContextLogger {
	return &ContextLogger{
		Logger:  l,
		context: context,
	}
}

// mergeFields combines the contextual fields with message-specific fields
func (cl *ContextLogger) mergeFields(fields map[string]any) map[string]any {
	merged := make(map[string]any, len(cl.context)+len(fields))
	for k, v := range cl.context {
		merged[k] = v
	}
	// message fields win over context on the same key
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

// Debug logs debug-level messages with context
func (cl *ContextLogger) Debug(event string, fields map[string]any) {
	cl.Logger.Debug(event, cl.mergeFields(fields))
}

// Info logs info-level messages with context
func (cl *ContextLogger) Info(event string, fields map[string]any) {
	cl.Logger.Info(event, cl.mergeFields(fields))
}

// Warn logs warning-level messages with context
func (cl *ContextLogger) Warn(event string, fields map[string]any) {
	cl.Logger.Warn(event, cl.mergeFields(fields))
}

// Error logs error-level messages with context
func (cl *ContextLogger) Error(event string, fields map[string]any) {
	cl.Logger.Error(event, cl.mergeFields(fields))
}
