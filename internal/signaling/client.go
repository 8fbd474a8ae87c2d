// Package signaling is the client side of the introducer: it claims a
// peer id and exchanges offers and answers with other ids.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/protocol"
	"github.com/BioHazard786/flipboard/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	bufferSize     = 16
)

// Client is a connection to the introducer that owns one peer id.
type Client struct {
	conn     *websocket.Conn
	id       string
	incoming chan protocol.Signal
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

// Dial connects to the introducer at serverURL and claims requestedID,
// or a server-assigned id when requestedID is empty. It returns once the
// introducer has confirmed the id. dialer may be nil.
func Dial(ctx context.Context, serverURL, requestedID string, dialer *websocket.Dialer, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid introducer URL: %w", err)
	}
	if requestedID != "" {
		q := u.Query()
		q.Set("id", requestedID)
		u.RawQuery = q.Encode()
	}

	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c := &Client{
		conn:     conn,
		incoming: make(chan protocol.Signal, bufferSize),
		outgoing: make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		logger:   logger.With("component", "signaling"),
	}

	go c.readPump()
	go c.writePump()

	if err := c.awaitOpen(ctx, requestedID); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) awaitOpen(ctx context.Context, requestedID string) error {
	for {
		select {
		case sig, ok := <-c.incoming:
			if !ok {
				return transport.ErrClosed
			}
			switch sig.Type {
			case protocol.SignalOpen:
				c.id = sig.ID
				return nil
			case protocol.SignalIDTaken:
				return transport.WrapError("claim id", transport.ErrIDTaken, requestedID)
			case protocol.SignalError:
				return transport.WrapError("claim id", transport.ErrRegistration, sig.Message)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ID is the peer id this client owns.
func (c *Client) ID() string {
	return c.id
}

// Signals delivers signals addressed to this id. It is closed when the
// connection ends.
func (c *Client) Signals() <-chan protocol.Signal {
	return c.incoming
}

// Send queues sig for the introducer.
func (c *Client) Send(ctx context.Context, sig protocol.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		sig, err := protocol.DecodeSignal(data)
		if err != nil {
			c.logger.Warn("discarding malformed signal", "error", err)
			continue
		}

		select {
		case c.incoming <- sig:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
