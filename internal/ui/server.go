// Package ui provides the HTTP API for schemagraph sessions.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/schemagraph/internal/auth"
	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/internal/ui/notifier"
	"github.com/leapstack-labs/schemagraph/internal/ui/router"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Server is the main UI server.
type Server struct {
	engine         *engine.Engine
	sessionStore   *sessions.CookieStore
	verifier       *auth.Verifier
	refresher      cloudsync.Refresher
	tier           core.PlanTier
	port           int
	allowedOrigins []string
	registry       *prometheus.Registry
	metrics        *httpMetrics
	logger         *slog.Logger
	notifier       *notifier.Notifier
}

// Config holds configuration for the UI server.
type Config struct {
	Engine *engine.Engine
	Port   int
	// SessionSecret keys the session cookie. Empty generates a random key,
	// so cookies do not survive a restart.
	SessionSecret string
	Verifier      *auth.Verifier
	Refresher     cloudsync.Refresher
	DefaultTier   core.PlanTier
	// Notifier must be the one the engine's OnChange hook broadcasts to.
	Notifier       *notifier.Notifier
	Registry       *prometheus.Registry
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		logger.Warn("no session secret configured, sessions end on restart")
		secret = securecookie.GenerateRandomKey(32)
	}
	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	notify := cfg.Notifier
	if notify == nil {
		notify = notifier.New()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Server{
		engine:         cfg.Engine,
		sessionStore:   sessionStore,
		verifier:       cfg.Verifier,
		refresher:      cfg.Refresher,
		tier:           cfg.DefaultTier,
		port:           cfg.Port,
		allowedOrigins: cfg.AllowedOrigins,
		registry:       reg,
		metrics:        newHTTPMetrics(reg),
		logger:         logger,
		notifier:       notify,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.metrics.middleware,
		middleware.Compress(5),
	)

	if err := router.SetupRoutes(r, router.Deps{
		Engine:         s.engine,
		SessionStore:   s.sessionStore,
		Verifier:       s.verifier,
		Refresher:      s.refresher,
		DefaultTier:    s.tier,
		Notifier:       s.notifier,
		Gatherer:       s.registry,
		AllowedOrigins: s.allowedOrigins,
		Logger:         s.logger,
	}); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the UI server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting UI server", slog.String("addr", fmt.Sprintf("http://localhost:%d", s.port)))

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}
