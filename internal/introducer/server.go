// Package introducer is the identifier service direct peers use to find
// each other. A peer connects with an optional requested id, is told the
// id it owns, and can then address offers and answers to other ids.
package introducer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/protocol"
)

// Server routes signals between connected peers. Its id table is
// confined to the goroutine running Run.
type Server struct {
	peers map[string]*peer

	register   chan *peer
	unregister chan *peer
	inbound    chan routed
	done       chan struct{}

	logger *slog.Logger
}

type routed struct {
	from *peer
	sig  protocol.Signal
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		peers:      make(map[string]*peer),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		inbound:    make(chan routed),
		done:       make(chan struct{}),
		logger:     logger.With("component", "introducer"),
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-s.register:
			s.claim(p)

		case p := <-s.unregister:
			if p.id != "" && s.peers[p.id] == p {
				delete(s.peers, p.id)
				s.logger.Debug("peer left", "id", p.id)
			}
			if !p.closed {
				p.closed = true
				close(p.send)
			}

		case r := <-s.inbound:
			s.route(r.from, r.sig)
		}
	}
}

func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Attach starts serving conn for a peer that asked for requestedID. An
// empty requestedID gets a generated one.
func (s *Server) Attach(conn *websocket.Conn, requestedID string) bool {
	p := &peer{
		server:    s,
		conn:      conn,
		requested: requestedID,
		send:      make(chan []byte, sendBuffer),
	}

	select {
	case s.register <- p:
	case <-s.done:
		conn.Close()
		return false
	}

	go p.writePump()
	go p.readPump()
	return true
}

func (s *Server) claim(p *peer) {
	id := p.requested
	if id == "" {
		id = uuid.NewString()
	}

	if _, taken := s.peers[id]; taken {
		s.logger.Info("id already taken", "id", id)
		p.deliver(protocol.Signal{Type: protocol.SignalIDTaken, ID: id})
		p.closed = true
		close(p.send)
		return
	}

	p.id = id
	s.peers[id] = p
	p.deliver(protocol.Signal{Type: protocol.SignalOpen, ID: id})
	s.logger.Debug("peer open", "id", id)
}

func (s *Server) route(from *peer, sig protocol.Signal) {
	if from.id == "" {
		return
	}
	if !sig.Forwarded() {
		s.logger.Debug("ignoring signal", "id", from.id, "type", sig.Type)
		return
	}

	target, ok := s.peers[sig.Dst]
	if !ok {
		if sig.Type == protocol.SignalOffer {
			from.deliver(protocol.Signal{
				Type:         protocol.SignalUnavailable,
				ID:           sig.Dst,
				ConnectionID: sig.ConnectionID,
			})
		}
		s.logger.Debug("destination unavailable", "src", from.id, "dst", sig.Dst, "type", sig.Type)
		return
	}

	sig.Src = from.id
	target.deliver(sig)
}

func (p *peer) deliver(sig protocol.Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		p.server.logger.Error("encode signal", "error", err)
		return
	}
	select {
	case p.send <- data:
	default:
		p.server.logger.Warn("send buffer full, dropping signal", "id", p.id, "type", sig.Type)
	}
}
