package model

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for logging operations
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	IsLevelEnabled(level LogLevel) bool
}

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// zapLevel maps a LogLevel to the corresponding zap level.
func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ZapLogger implements the Logger interface on top of zap's sugared
// logger.
type ZapLogger struct {
	level LogLevel
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a new ZapLogger writing to stderr at the
// specified log level.
func NewZapLogger(level LogLevel) *ZapLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.OutputPaths = []string{"stderr"}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger := zap.Must(cfg.Build(zap.AddCallerSkip(1)))
	return &ZapLogger{
		level: level,
		sugar: logger.Sugar(),
	}
}

// Debug logs a debug message
func (l *ZapLogger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *ZapLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *ZapLogger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *ZapLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// IsLevelEnabled returns true if the given log level is enabled
func (l *ZapLogger) IsLevelEnabled(level LogLevel) bool {
	return l.level <= level
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// NoOpLogger is a logger implementation that discards all log messages
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug discards the debug message
func (l *NoOpLogger) Debug(format string, args ...interface{}) {}

// Info discards the informational message
func (l *NoOpLogger) Info(format string, args ...interface{}) {}

// Warn discards the warning message
func (l *NoOpLogger) Warn(format string, args ...interface{}) {}

// Error discards the error message
func (l *NoOpLogger) Error(format string, args ...interface{}) {}

// IsLevelEnabled always returns false for NoOpLogger
func (l *NoOpLogger) IsLevelEnabled(level LogLevel) bool {
	return false
}

var (
	// DefaultLoggerInstance is the default logger used by the package
	DefaultLoggerInstance Logger = NewZapLogger(LogLevelInfo)
)

// SetDefaultLogger sets the default logger instance
func SetDefaultLogger(logger Logger) {
	DefaultLoggerInstance = logger
}

// GetDefaultLogger returns the current default logger instance
func GetDefaultLogger() Logger {
	return DefaultLoggerInstance
}
