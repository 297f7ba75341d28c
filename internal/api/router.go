package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gitnotes/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/home", h.Home)

	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{filename}", h.GetNote)
	r.Put("/notes/{filename}", h.UpdateNote)

	r.Get("/search", h.Search)
	r.Get("/todos", h.Todos)

	r.Get("/sync", h.SyncStatus)
	r.Post("/sync", h.Resync)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
