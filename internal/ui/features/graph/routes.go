package graph

import "github.com/go-chi/chi/v5"

// SetupRoutes registers the graph feature routes. The router must already
// carry the session middleware.
func SetupRoutes(router chi.Router, handlers *Handlers) {
	router.Get("/graph", handlers.Graph)
	router.Get("/updates", handlers.Updates)

	router.Post("/provider", handlers.Connect)
	router.Delete("/provider", handlers.Disconnect)
	router.Post("/schema/sync", handlers.SyncSchema)

	router.Route("/filters", func(r chi.Router) {
		r.Delete("/", handlers.ClearFilters)
		r.Post("/types/{type}", handlers.ToggleFilter)
		r.Post("/hidden/{id}", handlers.ToggleHidden)
		r.Post("/isolated", handlers.ToggleIsolated)
	})

	router.Put("/colors/{id}", handlers.SetColor)
	router.Delete("/colors/{id}", handlers.ResetColor)
	router.Put("/positions", handlers.MoveNodes)

	router.Post("/history/undo", handlers.Undo)
	router.Post("/history/redo", handlers.Redo)

	router.Post("/onboarding", handlers.MarkOnboardingSeen)
	router.Post("/save", handlers.Save)
}
