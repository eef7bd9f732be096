// Package logging provides structured logging for smaug.
//
// This package wraps go.uber.org/zap to provide consistent logging across
// all components. It supports both console and JSON output formats,
// configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init("info", false) // Console format
//	logging.Init("debug", true) // JSON format
//
//	// Get a component logger
//	log := logging.Component("sampler")
//	log.Info("sampler started", zap.String("probe", "cpu"))
//
//	// Log with context
//	log.Warn("probe read failed", zap.Error(err))
//
// Logs go to stderr so that snapshot output on stdout stays parseable.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init initializes the global logger with the specified level and format.
// Accepted levels (case-insensitive): "debug", "info", "warn", "error".
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(lvl string, jsonFormat bool) error {
	return InitWithWriter(lvl, jsonFormat, os.Stderr)
}

// InitWithWriter initializes the global logger writing to w.
// This is useful for testing or custom output destinations.
func InitWithWriter(lvl string, jsonFormat bool, w io.Writer) error {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(lvl)); err != nil {
		return err
	}
	level.SetLevel(parsed)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	opts := []zap.Option{}
	if parsed == zapcore.DebugLevel {
		opts = append(opts, zap.AddCaller())
	}

	l := zap.New(core, opts...)

	mu.Lock()
	logger = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
	return nil
}

// InitNop discards all log output. Tests use it to keep output quiet.
func InitNop() {
	mu.Lock()
	logger = zap.NewNop()
	mu.Unlock()
}

// L returns the global logger, initializing it with defaults if needed.
func L() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	_ = Init("info", false)
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLevel changes the level of the global logger at runtime.
func SetLevel(lvl string) error {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(lvl)); err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

// With returns a new logger with additional fields.
// These fields are included in every log entry from the returned logger.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Component returns a logger for a specific component.
// The component name is added as a field to all log entries.
//
// Example:
//
//	log := logging.Component("registry")
//	log.Info("store created") // Output: ... INFO store created {"component": "registry"}
func Component(name string) *zap.Logger {
	return L().With(zap.String("component", name))
}

// Sync flushes buffered log entries. Call it from main just before exit.
func Sync() {
	// Sync on a console stderr can return EINVAL; nothing to do about it.
	_ = L().Sync()
}

// =============================================================================
// Context helpers
// =============================================================================

type loggerKey struct{}

// ContextWithLogger returns a context carrying l.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return L()
}

// ContextWithSessionID adds a session ID field to the context logger.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return ContextWithLogger(ctx, FromContext(ctx).With(zap.String("session_id", sessionID)))
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs at warning level.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}
