package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"shortlink/internal/admission"
	"shortlink/internal/util"
)

// HealthFunc reports dependency health; a nil map entry value means healthy.
type HealthFunc func(ctx context.Context) map[string]string

// NewRouter configures the chi router with the full middleware stack. The
// admission pipeline wraps every route, including redirects.
func NewRouter(links *LinkHandler, auth *AuthHandler, admin *AdminHandler, pipeline *admission.Pipeline, health HealthFunc, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(pipeline.Middleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		overall := "healthy"
		deps := map[string]string{}
		if health != nil {
			deps = health(r.Context())
		}
		for _, state := range deps {
			if state != "healthy" {
				status = http.StatusServiceUnavailable
				overall = "degraded"
			}
		}
		writeJSON(w, status, map[string]interface{}{
			"status":       overall,
			"service":      "shortlink",
			"dependencies": deps,
		})
	})

	router.Post("/shorten", links.Shorten)

	router.Route("/auth", func(r chi.Router) {
		r.Get("/google", auth.GoogleLogin)
		r.Get("/google/callback", auth.GoogleCallback)
		r.Get("/success", auth.Success)
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/links", links.List)
		r.Post("/link/favourite", links.Favourite)
		r.Delete("/link", links.Delete)
		r.Get("/admin", admin.Overview)
	})

	// Last so it never shadows the fixed routes above.
	router.Get("/{code}", links.Redirect)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

// LoggerMiddleware logs every HTTP request with its final status.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
