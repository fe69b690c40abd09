package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	AuthRateLimit  int // Requêtes par minute et par IP sur /v1/auth/*, 0 = désactivé
	Gatherer       prometheus.Gatherer
	// Health vérifie les dépendances (DB, NATS...). nil = toujours OK.
	Health func(ctx context.Context) error
}

// NewRouter monte les routes REST et WebSocket.
// Ordre des couches (de l'extérieur vers l'intérieur) : OTel -> CORS -> chi.
func NewRouter(h *Handler, auth ports.Authenticator, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimit > 0 {
				r.Use(httprate.Limit(cfg.AuthRateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
						writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
							Kind:    KindRateLimited,
							Message: "too many authentication attempts",
						}})
					}),
				))
			}
			r.Post("/register", h.register)
			r.Post("/login", h.login)
		})

		// Lectures publiques
		r.Get("/accounts/{id}", h.getAccount)
		r.Get("/content/{id}", h.getContent)

		// Toute mutation passe par le Session Authenticator
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(auth))
			r.Get("/me", h.me)
			r.Post("/accounts/{id}/follow", h.follow)
			r.Delete("/accounts/{id}/follow", h.unfollow)
			r.Post("/content", h.createContent)
			r.Post("/content/{id}/like", h.toggleLike)
		})

		r.With(RequireHandshakeAuth(auth)).Get("/ws", h.websocket)
	})

	var handler http.Handler = r
	handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "baggage", "traceparent"},
		AllowCredentials: true,
	}).Handler(handler)

	return otelhttp.NewHandler(handler, cfg.ServiceName, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
