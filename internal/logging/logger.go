package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production JSON logger at the given level
// (debug, info, warn, error). An empty level means info.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// WithOperation enriches the logger with the operation, feature and request
// identifiers of a classification.
func WithOperation(logger *zap.Logger, operation, feature, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if feature != "" {
		fields = append(fields, zap.String("feature", feature))
	}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}
