// Package relayed carries commands through the rendezvous broker over a
// websocket. Both peers register into the same room and the broker
// forwards each command envelope to the other participants.
package relayed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/protocol"
	"github.com/BioHazard786/flipboard/internal/transport"
)

const (
	DefaultRegisterTimeout = 10 * time.Second

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

type Options struct {
	// URL is the broker's websocket endpoint, e.g. ws://host:8080/ws-relay.
	URL string

	// RegisterTimeout bounds the wait for the broker's registered reply.
	RegisterTimeout time.Duration

	// Dialer may be nil.
	Dialer *websocket.Dialer

	Logger *slog.Logger
}

// Channel is a transport.Channel through the rendezvous broker.
type Channel struct {
	opts   Options
	events *transport.Events
	logger *slog.Logger

	mu      sync.Mutex
	session uint64
	role    transport.Role
	roomID  string
	sock    *socket
	pending chan error
	remotes int
}

var _ transport.Channel = (*Channel)(nil)

func New(opts Options) *Channel {
	if opts.RegisterTimeout <= 0 {
		opts.RegisterTimeout = DefaultRegisterTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Channel{
		opts:   opts,
		events: transport.NewEvents(),
		logger: opts.Logger.With("component", "relayed"),
	}
}

func (c *Channel) OnStatus(h transport.StatusHandler) {
	c.events.OnStatus(h)
}

func (c *Channel) OnCommand(h transport.CommandHandler) {
	c.events.OnCommand(h)
}

func (c *Channel) Status() transport.Status {
	return c.events.Status()
}

func (c *Channel) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// InitHost generates a room token and registers as its host. It returns
// once the broker has acknowledged the registration.
func (c *Channel) InitHost(ctx context.Context) (string, error) {
	roomID := transport.NewRoomID()
	if err := c.register(ctx, "init host", transport.RoleHost, roomID); err != nil {
		return "", err
	}
	return roomID, nil
}

// ConnectToHost registers as a remote in roomID. It returns once the
// broker has acknowledged the registration; the status becomes connected
// at that point.
func (c *Channel) ConnectToHost(ctx context.Context, roomID string) error {
	return c.register(ctx, "connect to host", transport.RoleRemote, roomID)
}

func (c *Channel) register(ctx context.Context, op string, role transport.Role, roomID string) error {
	id, pending := c.begin(role, roomID)

	ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return c.fail(id, ctx.Err())
		}
		return c.fail(id, transport.WrapError(op, transport.ErrRegistration, err.Error()))
	}

	sock := newSocket(ws)
	c.mu.Lock()
	if c.session != id {
		c.mu.Unlock()
		sock.close()
		return transport.NewError(op, transport.ErrDestroyed)
	}
	c.sock = sock
	c.mu.Unlock()

	go c.readPump(id, sock)
	go sock.writePump()

	data, err := protocol.Register(role, roomID).Encode()
	if err != nil {
		return c.fail(id, transport.WrapError(op, transport.ErrRegistration, err.Error()))
	}
	sock.enqueue(data)

	timer := time.NewTimer(c.opts.RegisterTimeout)
	defer timer.Stop()

	select {
	case err := <-pending:
		if err != nil {
			return c.fail(id, transport.WrapError(op, err, roomID))
		}
		c.logger.Info("registered", "role", role, "room", roomID)
		return nil
	case <-timer.C:
		return c.fail(id, transport.WrapError(op, transport.ErrTimeout,
			fmt.Sprintf("no registration reply after %s", c.opts.RegisterTimeout)))
	case <-ctx.Done():
		return c.fail(id, ctx.Err())
	}
}

// SendCommand wraps cmd in a command envelope and queues it on the
// socket. Without a registered socket the command is dropped.
func (c *Channel) SendCommand(cmd command.Command) {
	c.mu.Lock()
	sock := c.sock
	registered := c.pending == nil
	c.mu.Unlock()

	if sock == nil || !registered {
		c.logger.Debug("dropping command, not registered", "type", cmd.Type)
		return
	}

	env, err := protocol.CommandEnvelope(cmd)
	if err != nil {
		c.logger.Error("failed to wrap command", "type", cmd.Type, "error", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		c.logger.Error("failed to encode envelope", "type", cmd.Type, "error", err)
		return
	}
	if !sock.enqueue(data) {
		c.logger.Warn("dropping command, send buffer full or socket closed", "type", cmd.Type)
	}
}

// Destroy closes the socket. It is safe to call any number of times.
func (c *Channel) Destroy() {
	c.mu.Lock()
	sock := c.detachLocked()
	c.session++
	c.roomID = ""
	c.events.SetStatus(transport.StatusDisconnected)
	c.mu.Unlock()

	if sock != nil {
		sock.close()
	}
}

func (c *Channel) begin(role transport.Role, roomID string) (uint64, chan error) {
	c.mu.Lock()
	sock := c.detachLocked()
	c.session++
	id := c.session
	c.role = role
	c.roomID = roomID
	c.pending = make(chan error, 1)
	pending := c.pending
	c.events.SetStatus(transport.StatusConnecting)
	c.mu.Unlock()

	if sock != nil {
		sock.close()
	}
	return id, pending
}

// fail ends session id with the status matching err.
func (c *Channel) fail(id uint64, err error) error {
	c.mu.Lock()
	if c.session != id {
		c.mu.Unlock()
		return transport.NewError("register", transport.ErrDestroyed)
	}
	sock := c.detachLocked()
	c.session++
	c.events.SetStatus(transport.StatusFor(err))
	c.mu.Unlock()

	if sock != nil {
		sock.close()
	}
	c.logger.Warn("registration failed", "error", err)
	return err
}

// detachLocked releases any registration wait with ErrDestroyed and hands
// back the socket for the caller to close outside the lock.
func (c *Channel) detachLocked() *socket {
	sock := c.sock
	c.sock = nil
	c.resolveLocked(transport.ErrDestroyed)
	c.remotes = 0
	return sock
}

// resolveLocked completes a pending registration wait.
func (c *Channel) resolveLocked(err error) {
	if c.pending != nil {
		c.pending <- err
		c.pending = nil
	}
}

func (c *Channel) readPump(id uint64, sock *socket) {
	defer sock.close()

	ws := sock.ws
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.lost(id, err)
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("discarding malformed envelope", "error", err)
			continue
		}
		c.handle(id, env)
	}
}

func (c *Channel) handle(id uint64, env protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != id {
		return
	}

	switch env.Type {
	case protocol.TypeRegistered:
		if c.role == transport.RoleHost {
			c.events.SetStatus(transport.StatusHostReady)
		} else {
			c.events.SetStatus(transport.StatusConnected)
		}
		c.resolveLocked(nil)

	case protocol.TypePeerJoined:
		switch {
		case c.role == transport.RoleHost && env.Role == transport.RoleRemote:
			c.remotes++
			c.events.SetStatus(transport.StatusConnected)
		case c.role == transport.RoleRemote && env.Role == transport.RoleHost:
			c.events.SetStatus(transport.StatusConnected)
		}

	case protocol.TypePeerLeft:
		switch {
		case c.role == transport.RoleHost && env.Role == transport.RoleRemote:
			if c.remotes > 0 {
				c.remotes--
			}
			if c.remotes == 0 {
				c.events.SetStatus(transport.StatusHostReady)
			}
		case c.role == transport.RoleRemote && env.Role != transport.RoleRemote:
			c.events.SetStatus(transport.StatusHostDisconnected)
		}

	case protocol.TypeCommand:
		cmd, err := env.Command()
		if err != nil {
			c.logger.Warn("discarding invalid command", "error", err)
			return
		}
		c.events.Dispatch(cmd)

	case protocol.TypeError:
		c.logger.Warn("broker reported an error", "message", env.Message)
		if c.pending != nil {
			c.resolveLocked(fmt.Errorf("%w: %s", transport.ErrRegistration, env.Message))
			return
		}
		c.events.SetStatus(transport.StatusError)

	default:
		c.logger.Debug("ignoring envelope", "type", env.Type)
	}
}

// lost handles the socket ending under session id. Anything other than a
// clean close reports error before disconnected.
func (c *Channel) lost(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != id {
		return
	}

	if c.pending != nil {
		c.resolveLocked(fmt.Errorf("%w: %v", transport.ErrRegistration, err))
		return
	}

	c.sock = nil
	c.remotes = 0
	c.session++
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		c.logger.Warn("broker connection lost", "error", err)
		c.events.SetStatus(transport.StatusError)
	}
	c.events.SetStatus(transport.StatusDisconnected)
}
