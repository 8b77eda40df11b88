// Package router sets up HTTP routes for the UI server.
package router

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leapstack-labs/schemagraph/internal/auth"
	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/engine"
	graphFeature "github.com/leapstack-labs/schemagraph/internal/ui/features/graph"
	sessionFeature "github.com/leapstack-labs/schemagraph/internal/ui/features/session"
	"github.com/leapstack-labs/schemagraph/internal/ui/notifier"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Deps are the dependencies shared by every feature.
type Deps struct {
	Engine       *engine.Engine
	SessionStore sessions.Store
	Verifier     *auth.Verifier
	// Refresher renews expired session tokens. Nil forces a new sign-in.
	Refresher   cloudsync.Refresher
	DefaultTier core.PlanTier
	Notifier    *notifier.Notifier
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// AllowedOrigins lists browser origins allowed to call the API.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(router chi.Router, deps Deps) error {
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	sessionHandlers := sessionFeature.NewHandlers(
		deps.Engine, deps.SessionStore, deps.Verifier, deps.Refresher, deps.DefaultTier, deps.Logger,
	)
	graphHandlers := graphFeature.NewHandlers(sessionHandlers, deps.Notifier, deps.Logger)

	router.Route("/api", func(api chi.Router) {
		api.Use(allowOrigins(deps.AllowedOrigins))

		sessionFeature.SetupRoutes(api, sessionHandlers)

		api.Group(func(authed chi.Router) {
			authed.Use(sessionHandlers.Middleware)
			graphFeature.SetupRoutes(authed, graphHandlers)
		})
	})

	return nil
}

// allowOrigins answers CORS for the listed origins. Same-origin requests
// carry no Origin header and pass through untouched.
func allowOrigins(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && slices.Contains(origins, origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
