package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/logging"
)

var errBadRequestBody = errors.New("request body is not valid JSON")

type responder struct {
	logger *zap.Logger
}

func newResponder(logger *zap.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).Error("failed to encode response", zap.Error(err))
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).Warn("request rejected", zap.Int("status", status), zap.Error(err))
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// writeValidation reports request DTO failures the same way the service
// reports its own validation errors.
func (r responder) writeValidation(ctx context.Context, w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		r.writeError(ctx, w, http.StatusBadRequest, err)
		return
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe.Namespace())] = validationMessage(fe)
	}
	r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
		Message: "validation failed",
		Errors:  details,
	})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "FORBIDDEN",
			Message:   "you are not allowed to access this schedule",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "schedule not found"})
	case errors.Is(err, application.ErrConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "schedule was modified concurrently"})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Message: "validation failed",
				Errors:  vErr.FieldErrors,
			})
			return
		}

		r.loggerFor(ctx).Error("request failed", zap.Error(err))
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *zap.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// fieldPath drops the root struct name from a validator namespace and
// rewrites map keys, so "req.weekly_schedule[MONDAY].working" becomes
// "weekly_schedule.MONDAY.working".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		namespace = namespace[i+1:]
	}
	namespace = strings.ReplaceAll(namespace, "[", ".")
	return strings.ReplaceAll(namespace, "]", "")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "len":
		return "must be " + fe.Param() + " characters long"
	case "datetime":
		return "must match " + fe.Param()
	default:
		return "is invalid"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
