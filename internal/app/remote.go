package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/transport"
)

const DefaultReconnectDelay = time.Second

type RemoteOptions struct {
	// ReconnectDelay is the pause between tearing down a stale
	// connection and connecting again.
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Remote sends commands to the host of one room.
type Remote struct {
	conn   Connection
	roomID string
	delay  time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	onStatus  transport.StatusHandler
	onCommand transport.CommandHandler
}

func NewRemote(conn Connection, roomID string, opts RemoteOptions) *Remote {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Remote{
		conn:   conn,
		roomID: roomID,
		delay:  opts.ReconnectDelay,
		logger: opts.Logger.With("component", "remote", "room", roomID),
	}
}

func (r *Remote) RoomID() string {
	return r.roomID
}

// Connect subscribes to the connection and joins the host's room.
func (r *Remote) Connect(ctx context.Context) error {
	r.conn.OnStatus(r.statusChanged)
	r.conn.OnCommand(r.commandReceived)
	return r.conn.ConnectToHost(ctx, r.roomID)
}

func (r *Remote) Status() transport.Status {
	return r.conn.Status()
}

func (r *Remote) OnStatus(fn transport.StatusHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatus = fn
}

// OnCommand receives commands the host sends back.
func (r *Remote) OnCommand(fn transport.CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCommand = fn
}

// Send forwards cmd to the host. It refuses with ErrNotConnected unless
// the connection is up, so nothing is sent into a half-open channel.
func (r *Remote) Send(cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if s := r.conn.Status(); s != transport.StatusConnected {
		return transport.WrapError("send", transport.ErrNotConnected, s.String())
	}
	r.conn.SendCommand(cmd)
	return nil
}

// SendMessage sends text as an UPDATE_MESSAGE, uppercased and padded to
// fill the board.
func (r *Remote) SendMessage(text string) error {
	return r.Send(command.UpdateMessage(text))
}

// Resume reconnects from scratch if the connection is no longer up, as
// after the process was suspended. A live connection is left alone.
func (r *Remote) Resume(ctx context.Context) error {
	if r.conn.Status() == transport.StatusConnected {
		return nil
	}
	return r.Reconnect(ctx)
}

// Reconnect tears down every transport, waits the reconnect delay and
// joins the room again.
func (r *Remote) Reconnect(ctx context.Context) error {
	r.logger.Info("reconnecting", "status", r.conn.Status())
	r.conn.DestroyAll()

	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	return r.Connect(ctx)
}

func (r *Remote) Close() {
	r.conn.DestroyAll()
}

func (r *Remote) statusChanged(s transport.Status) {
	r.logger.Debug("connection status", "status", s)
	r.mu.Lock()
	fn := r.onStatus
	r.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (r *Remote) commandReceived(cmd command.Command) {
	r.mu.Lock()
	fn := r.onCommand
	r.mu.Unlock()
	if fn != nil {
		fn(cmd)
	}
}
