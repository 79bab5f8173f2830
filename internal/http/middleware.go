package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/logging"
)

const (
	// HeaderUserID carries the caller's user id, set by the upstream gateway.
	HeaderUserID = "X-User-ID"
	// HeaderUserRole carries the caller's role; "admin" grants admin rights.
	HeaderUserRole = "X-User-Role"

	roleAdmin = "admin"
)

var (
	errMissingIdentity = errors.New("missing " + HeaderUserID + " header")
	errAdminRequired   = errors.New("administrator role required")
)

// RequireIdentity turns the gateway identity headers into a Principal.
// Requests without a user id are rejected with 401.
func RequireIdentity(logger *zap.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
				return
			}

			principal := application.Principal{
				UserID:  userID,
				IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), roleAdmin),
			}
			ctx := ContextWithPrincipal(r.Context(), principal)
			if base := logging.FromContext(ctx); base != nil {
				ctx = logging.ContextWithLogger(ctx, base.With(zap.String("principal", userID)))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects principals without the admin role with 403.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !principal.IsAdmin {
				responder.writeError(r.Context(), w, http.StatusForbidden, errAdminRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger attaches a request-scoped logger and logs each request's
// start and completion. It expects middleware.RequestID to run first.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			logger.Debug("request started")
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request completed",
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
