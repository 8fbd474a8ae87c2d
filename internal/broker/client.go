package broker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A full colour board is
	// well under this.
	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

// Client is one websocket connection to the broker.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// role and roomID are owned by the hub goroutine.
	role   protocol.Role
	roomID string
}

// Attach registers conn with the hub and starts its pumps. It returns
// false if the hub is no longer running.
func (h *Hub) Attach(conn *websocket.Conn) bool {
	client := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return false
	}

	go client.writePump()
	go client.readPump()
	return true
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// deliver encodes env and queues it without blocking.
func (c *Client) deliver(env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("encode envelope", "error", err)
		return
	}
	if !c.trySend(data) {
		c.hub.logger.Warn("send buffer full, dropping envelope", "client", c.ID, "type", env.Type)
	}
}

func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump pumps messages from the websocket connection to the hub.
//
// There is at most one reader on a connection: all reads happen on this
// goroutine.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("read failed", "client", c.ID, "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.hub.logger.Warn("discarding malformed envelope", "client", c.ID, "error", err)
			continue
		}

		select {
		case c.hub.inbound <- &message{client: c, env: env, raw: data}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// There is at most one writer to a connection: all writes happen on this
// goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Debug("write failed", "client", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
