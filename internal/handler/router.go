package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/devaloi/lobbychat/internal/hub"
	"github.com/devaloi/lobbychat/internal/transport"
)

// NewRouter builds the server's HTTP routes.
func NewRouter(h *hub.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get(transport.ChatPath, ServeWS(h))

	r.Group(func(r chi.Router) {
		r.Use(Logging)
		r.Use(CORS)
		r.Get("/health", Health())
		r.Route("/api/rooms", func(r chi.Router) {
			r.Get("/", ListRooms(h))
			r.Get("/{name}", RoomInfo(h))
			r.Get("/{name}/history", RoomHistory(h))
		})
	})
	return r
}
