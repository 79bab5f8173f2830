package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/logging"
)

func defaultLogger(logger *zap.Logger) *zap.Logger {
	if logger != nil {
		return logger
	}
	return zap.NewNop()
}

func serviceLogger(ctx context.Context, base *zap.Logger, serviceName, operation string, fields ...zap.Field) *zap.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pairs := []zap.Field{zap.String("service", serviceName)}
	if operation != "" {
		pairs = append(pairs, zap.String("operation", operation))
	}
	pairs = append(pairs, fields...)
	return logger.With(pairs...)
}

// logOutcome writes the standard completion line for a service call:
// warn for caller mistakes, error for infrastructure failures.
func logOutcome(logger *zap.Logger, err error, success string, fields ...zap.Field) {
	if err == nil {
		logger.Info(success, fields...)
		return
	}
	kind := ErrorKind(err)
	fields = append(fields, zap.Error(err), zap.String("error_kind", kind))
	switch kind {
	case "validation", "unauthorized", "not_found", "conflict", "canceled":
		logger.Warn("request rejected", fields...)
	default:
		logger.Error("request failed", fields...)
	}
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
