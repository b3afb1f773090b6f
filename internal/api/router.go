package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aldwick/wardview/internal/engine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(eng *engine.Engine, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(eng)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Read surface.
	r.Get("/view", h.GetView)
	r.Get("/connectivity", h.GetConnectivity)
	r.Get("/subjects/{id}", h.GetSubject)

	// Simulation flag.
	r.Put("/simulated", h.SetSimulated)

	// Mutations, all funneled through the coordinator.
	r.Post("/enroll", h.Enroll)
	r.Delete("/enroll/{trackID}", h.Unenroll)
	r.Post("/demo/vitals/{id}/{direction}", h.AdjustRisk)
	r.Post("/demo/setup", h.SeedDemo)
	r.Post("/demo/clear", h.ClearAll)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
