// Package logging builds the zap logger used by the CLI and the tool layer.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kvit-s/kvit-patch/internal/config"
)

// Logger wraps a zap logger writing JSON lines to a rotated file.
type Logger struct {
	zap  *zap.Logger
	sink *lumberjack.Logger
}

// New creates a Logger from the log section of the config.
// An empty path disables logging.
func New(cfg config.LogConfig) (*Logger, error) {
	if cfg.Path == "" {
		return &Logger{zap: zap.NewNop()}, nil
	}

	sink := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	level := zapcore.InfoLevel
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		level = zapcore.DebugLevel
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(sink),
		level,
	)
	return &Logger{zap: zap.New(core), sink: sink}, nil
}

// Nop returns a Logger that discards everything
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Zap exposes the underlying logger for packages that take a *zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Close flushes the logger and closes the log file
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// ToolExecuted logs one tool call.
func (l *Logger) ToolExecuted(toolName string, duration time.Duration, success bool, err error) {
	fields := []zap.Field{
		zap.String("tool", toolName),
		zap.Duration("duration", duration),
		zap.Bool("success", success),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.zap.Info("tool executed", fields...)
}

// Error logs an error.
func (l *Logger) Error(msg string, err error) {
	l.zap.Error(msg, zap.Error(err))
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}
