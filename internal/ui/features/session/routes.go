package session

import "github.com/go-chi/chi/v5"

// SetupRoutes registers the session feature routes.
func SetupRoutes(router chi.Router, handlers *Handlers) {
	router.Post("/session", handlers.SignIn)
	router.Delete("/session", handlers.SignOut)
	router.With(handlers.Middleware).Get("/session", handlers.Current)
}
