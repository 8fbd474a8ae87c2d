package introducer

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // SDP with a full candidate list
	sendBuffer     = 32
)

type peer struct {
	server    *Server
	conn      *websocket.Conn
	requested string
	send      chan []byte

	// id and closed are owned by the server goroutine.
	id     string
	closed bool
}

func (p *peer) readPump() {
	defer func() {
		select {
		case p.server.unregister <- p:
		case <-p.server.done:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		sig, err := protocol.DecodeSignal(data)
		if err != nil {
			p.server.logger.Warn("discarding malformed signal", "error", err)
			continue
		}

		select {
		case p.server.inbound <- routed{from: p, sig: sig}:
		case <-p.server.done:
			return
		}
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.server.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
