package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Availability *AvailabilityHandler
	Health       Pinger
	Logger       *zap.Logger
	// CORSOrigins defaults to every origin when empty.
	CORSOrigins []string
	// RateLimitPerSecond disables per-IP limiting when zero.
	RateLimitPerSecond int
	Middleware         []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	router := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderUserID, HeaderUserRole, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	if cfg.RateLimitPerSecond > 0 {
		router.Use(httprate.LimitByIP(cfg.RateLimitPerSecond, time.Second))
	}
	router.Use(middleware.RequestID)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		if mw != nil {
			router.Use(mw)
		}
	}

	router.Get("/healthz", healthHandler(cfg.Health, logger))

	if h := cfg.Availability; h != nil {
		router.Group(func(r chi.Router) {
			r.Use(RequireIdentity(logger))

			r.Route("/availability/me", func(r chi.Router) {
				mountSchedule(r, h)
			})

			r.Route("/admin/availability", func(r chi.Router) {
				r.Use(RequireAdmin(logger))
				r.Get("/available", h.FindAvailable)
				r.Route("/users/{userID}", func(r chi.Router) {
					mountSchedule(r, h)
				})
			})
		})
	}

	return router
}

func mountSchedule(r chi.Router, h *AvailabilityHandler) {
	r.Get("/", h.GetSchedule)
	r.Put("/", h.SaveSchedule)
	r.Put("/days/{day}", h.UpdateDay)
	r.Put("/dates/{date}", h.UpdateDate)
	r.Delete("/dates/{date}", h.ClearDate)
	r.Put("/range", h.UpdateRange)
	r.Delete("/range", h.ClearRange)
	r.Post("/generate", h.Generate)
	r.Delete("/overrides", h.ClearOverrides)
	r.Get("/check", h.Check)
	r.Get("/calendar", h.Calendar)
}

func healthHandler(pinger Pinger, logger *zap.Logger) http.HandlerFunc {
	responder := newResponder(logger)

	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				handlerLogger(r.Context(), logger, "Health", "ping").Error("store unreachable", zap.Error(err))
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
