package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/devaloi/lobbychat/internal/peer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and attaches the connection to the hub. The
// peer is anonymous until it sends a login frame.
func ServeWS(router peer.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade error")
			return
		}

		p := peer.New(router, conn)
		log.Debug().Str("peer", p.ID()).Str("remote", r.RemoteAddr).Msg("peer connected")
		go p.Serve()
	}
}
