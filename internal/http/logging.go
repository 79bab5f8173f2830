package http

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/logging"
)

func defaultLogger(logger *zap.Logger) *zap.Logger {
	if logger != nil {
		return logger
	}
	return zap.NewNop()
}

func handlerLogger(ctx context.Context, fallback *zap.Logger, handlerName, operation string, fields ...zap.Field) *zap.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := []zap.Field{zap.String("handler", handlerName)}
	if operation != "" {
		pairs = append(pairs, zap.String("operation", operation))
	}
	pairs = append(pairs, fields...)
	return logger.With(pairs...)
}
