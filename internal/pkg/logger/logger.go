package logger

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.SugaredLogger
	once         sync.Once
)

// Init configures the global logger. Only the first call has an effect.
func Init(level string) {
	InitWithFile(level, "")
}

// InitWithFile configures the global logger and, when logPath is set, tees
// every entry into that file as well as stdout.
func InitWithFile(level, logPath string) {
	once.Do(func() {
		globalLogger = build(parseLevel(level), logPath).Sugar()
	})
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func build(level zapcore.Level, logPath string) *zap.Logger {
	// JSON encoder for production-ready structured logging
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err == nil {
			if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
				cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
			}
		}
	}
	return zap.New(zapcore.NewTee(cores...))
}

// Get returns the global logger instance
func Get() *zap.SugaredLogger {
	if globalLogger == nil {
		Init("info")
	}
	return globalLogger
}

// Helper functions for quick logging. Arguments are alternating key/value pairs.
func Info(msg string, args ...any) {
	Get().Infow(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Errorw(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warnw(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debugw(msg, args...)
}

func With(args ...any) *zap.SugaredLogger {
	return Get().With(args...)
}

func Sync() {
	_ = Get().Sync()
}

func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, "error", err.Error())
	if reqID, ok := ctx.Value(RequestIDKey{}).(string); ok && reqID != "" {
		args = append(args, "request_id", reqID)
	}
	Get().Errorw(msg, args...)
}

// RequestIDKey is the context key under which request-scoped ids are stored.
type RequestIDKey struct{}
