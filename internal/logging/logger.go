package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds a production ready structured logger.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	return cfg.Build()
}

// WithOperation enriches the logger with operation and transfer identifiers.
func WithOperation(logger *zap.Logger, operation, transferID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if transferID != "" {
		fields = append(fields, zap.String("transfer_id", transferID))
	}
	return logger.With(fields...)
}
