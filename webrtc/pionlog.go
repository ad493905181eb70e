package webrtc

import (
	"fmt"

	"github.com/enesunal-m/realtimechat"
	"github.com/pion/logging"
)

// LoggerFactory routes pion's internal logging into a realtimechat.Logger.
// Each pion scope (ice, dtls, pc, ...) becomes a "scope" field.
type LoggerFactory struct {
	Logger *realtimechat.Logger
}

// NewLoggerFactory returns a pion logging.LoggerFactory backed by l.
func NewLoggerFactory(l *realtimechat.Logger) *LoggerFactory {
	return &LoggerFactory{Logger: l}
}

// NewLogger implements logging.LoggerFactory.
func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{l: f.Logger.WithContext(map[string]any{"scope": scope})}
}

type scopedLogger struct {
	l *realtimechat.ContextLogger
}

// pion traces are too chatty to get their own level; they share debug.
func (s *scopedLogger) Trace(msg string) { s.l.Debug(msg, nil) }
func (s *scopedLogger) Tracef(format string, args ...any) { s.l.Debug(fmt.Sprintf(format, args...), nil) }
func (s *scopedLogger) Debug(msg string) { s.l.Debug(msg, nil) }
func (s *scopedLogger) Debugf(format string, args ...any) { s.l.Debug(fmt.Sprintf(format, args...), nil) }
func (s *scopedLogger) Info(msg string) { s.l.Info(msg, nil) }
func (s *scopedLogger) Infof(format string, args ...any) { s.l.Info(fmt.Sprintf(format, args...), nil) }
func (s *scopedLogger) Warn(msg string) { s.l.Warn(msg, nil) }
func (s *scopedLogger) Warnf(format string, args ...any) { s.l.Warn(fmt.Sprintf(format, args...), nil) }
func (s *scopedLogger) Error(msg string) { s.l.Error(msg, nil) }
func (s *scopedLogger) Errorf(format string, args ...any) { s.l.Error(fmt.Sprintf(format, args...), nil) }
