package realtimechat

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevelOff, "OFF"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		if got := test.level.String(); got != test.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", test.level, got, test.expected)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", LogLevelDebug},
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{"WARN", LogLevelWarn},
		{"WARNING", LogLevelWarn},
		{"error", LogLevelError},
		{"off", LogLevelOff},
		{"invalid", LogLevelInfo}, // default
		{"", LogLevelInfo},        // default
	}

	for _, test := range tests {
		if got := ParseLogLevel(test.input); got != test.expected {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", test.input, got, test.expected)
		}
	}
}

func TestNewLoggerFromEnv(t *testing.T) {
	t.Setenv("REALTIMECHAT_LOG_LEVEL", "ERROR")
	if got := NewLoggerFromEnv().Level(); got != LogLevelError {
		t.Errorf("NewLoggerFromEnv() with ERROR env = %v, want %v", got, LogLevelError)
	}

	t.Setenv("REALTIMECHAT_LOG_LEVEL", "")
	if got := NewLoggerFromEnv().Level(); got != LogLevelInfo {
		t.Errorf("NewLoggerFromEnv() without env = %v, want %v", got, LogLevelInfo)
	}
}

func observed(level LogLevel) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggerWithZap(level, zap.New(core)), logs
}

func TestLogger_Levels(t *testing.T) {
	l, logs := observed(LogLevelWarn)

	l.Debug("debug_event", nil)
	l.Info("info_event", nil)
	l.Warn("warn_event", map[string]any{"attempt": 2})
	l.Error("error_event", map[string]any{"error": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries above WARN, got %d", len(entries))
	}
	if entries[0].Message != "warn_event" || entries[0].Level != zapcore.WarnLevel {
		t.Errorf("unexpected first entry %s %q", entries[0].Level, entries[0].Message)
	}
	if got := entries[0].ContextMap()["attempt"]; got != int64(2) {
		t.Errorf("attempt field = %v (%T)", got, got)
	}
	if got := entries[1].ContextMap()["error"]; got != "boom" {
		t.Errorf("error field = %v, want boom", got)
	}
	if entries[1].LoggerName != "realtimechat" {
		t.Errorf("logger name = %q", entries[1].LoggerName)
	}

	l.SetLevel(LogLevelOff)
	l.Error("silenced", nil)
	if logs.Len() != 2 {
		t.Error("LogLevelOff should suppress everything")
	}
}

func TestLogger_SetPrefix(t *testing.T) {
	l, logs := observed(LogLevelInfo)
	l.SetPrefix("voicechat")
	l.Info("started", nil)

	if got := logs.All()[0].LoggerName; got != "voicechat" {
		t.Errorf("logger name = %q, want voicechat", got)
	}
}

func TestContextLogger(t *testing.T) {
	l, logs := observed(LogLevelDebug)
	cl := l.WithContext(map[string]any{"session_id": "s-1", "scope": "ctx"})

	cl.Info("chat_started", map[string]any{"scope": "msg"})

	fields := logs.All()[0].ContextMap()
	if fields["session_id"] != "s-1" {
		t.Errorf("session_id = %v", fields["session_id"])
	}
	if fields["scope"] != "msg" {
		t.Errorf("message fields should win over context, got scope=%v", fields["scope"])
	}
}

func TestLogger_Nil(t *testing.T) {
	var l *Logger
	l.Info("ignored", nil)
	l.WithContext(map[string]any{"k": "v"}).Error("ignored", nil)
}

func TestLogger_Zap(t *testing.T) {
	l, logs := observed(LogLevelInfo)

	zap.NewStdLog(l.Zap()).Print("http: TLS handshake error")

	if logs.Len() != 1 || logs.All()[0].Message != "http: TLS handshake error" {
		t.Fatalf("stdlib log bridge did not reach zap: %v", logs.All())
	}
	if got := logs.All()[0].LoggerName; got != "realtimechat" {
		t.Errorf("logger name = %q", got)
	}

	var nilLogger *Logger
	nilLogger.Zap().Info("discarded")
}
