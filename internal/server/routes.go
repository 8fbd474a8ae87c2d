package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/broker"
	"github.com/BioHazard786/flipboard/internal/introducer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,

	// Hosts are usually opened from a link on another origin, so every
	// origin is accepted.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeRelay upgrades the request and hands the connection to the broker.
func (s *Server) ServeRelay(hub *broker.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("relay upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if !hub.Attach(conn) {
			s.logger.Debug("relay connection refused, broker stopped", "remote", r.RemoteAddr)
		}
	}
}

// ServeIntroducer upgrades the request and claims the peer id named by
// the id query parameter, or a fresh one when it is absent.
func (s *Server) ServeIntroducer(srv *introducer.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("introducer upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if !srv.Attach(conn, r.URL.Query().Get("id")) {
			s.logger.Debug("introducer connection refused, server stopped", "remote", r.RemoteAddr)
		}
	}
}

// Health is the body of the health endpoint.
type Health struct {
	Status string          `json:"status"`
	Broker broker.Snapshot `json:"broker"`
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	snap, err := s.hub.Snapshot(ctx)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(Health{Status: "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(Health{Status: "ok", Broker: snap})
}
