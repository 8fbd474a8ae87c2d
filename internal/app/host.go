// Package app drives the display from the two ends of a connection: the
// host owns the board state, the remote issues commands against it.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/transport"
)

// Connection is the part of connection.Manager the controllers use.
type Connection interface {
	InitHost(ctx context.Context) (string, error)
	ConnectToHost(ctx context.Context, roomID string) error
	SendCommand(cmd command.Command)
	OnCommand(h transport.CommandHandler)
	OnStatus(h transport.StatusHandler)
	Status() transport.Status
	RoomID() string
	DestroyAll()
}

// Display is a snapshot of what the host shows.
type Display struct {
	Board        command.Board
	Theme        command.Theme
	Sound        command.Sound
	LiveClock    bool
	ClockVariant string
	UpdatedAt    time.Time
}

func (d Display) clone() Display {
	board := make(command.Board, len(d.Board))
	for i, row := range d.Board {
		board[i] = append([]command.Cell(nil), row...)
	}
	d.Board = board
	return d
}

type HostOptions struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// ClockInterval is how often the live clock redraws. Defaults to a
	// second.
	ClockInterval time.Duration
	Logger        *slog.Logger
}

// Host applies received commands to the display state.
type Host struct {
	conn     Connection
	now      func() time.Time
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	state    Display
	clock    chan struct{}
	onChange func(Display)
	onStatus transport.StatusHandler
}

func NewHost(conn Connection, opts HostOptions) *Host {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClockInterval <= 0 {
		opts.ClockInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Host{
		conn:     conn,
		now:      opts.Now,
		interval: opts.ClockInterval,
		logger:   opts.Logger.With("component", "host"),
		state: Display{
			Board: command.EmptyBoard(),
			Theme: command.ThemeDark,
			Sound: command.SoundLoud,
		},
	}
}

// Start subscribes to the connection and opens a room. It returns the
// room token to hand to remotes.
func (h *Host) Start(ctx context.Context) (string, error) {
	h.conn.OnCommand(h.Apply)
	h.conn.OnStatus(h.statusChanged)
	return h.conn.InitHost(ctx)
}

// Stop halts the live clock and closes every transport.
func (h *Host) Stop() {
	h.mu.Lock()
	h.stopClockLocked()
	h.mu.Unlock()
	h.conn.DestroyAll()
}

// OnChange registers fn to receive the display after every change.
func (h *Host) OnChange(fn func(Display)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

func (h *Host) OnStatus(fn transport.StatusHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStatus = fn
}

func (h *Host) State() Display {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.clone()
}

func (h *Host) statusChanged(s transport.Status) {
	h.logger.Info("connection status", "status", s)
	h.mu.Lock()
	fn := h.onStatus
	h.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Apply changes the display according to cmd. Commands that fail to
// decode are logged and ignored.
func (h *Host) Apply(cmd command.Command) {
	h.mu.Lock()
	changed, err := h.applyLocked(cmd)
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("ignoring command", "type", cmd.Type, "error", err)
		return
	}
	if !changed {
		h.mu.Unlock()
		return
	}
	h.state.UpdatedAt = h.now()
	snapshot, fn := h.state.clone(), h.onChange
	h.mu.Unlock()

	h.logger.Debug("applied command", "type", cmd.Type)
	if fn != nil {
		fn(snapshot)
	}
}

func (h *Host) applyLocked(cmd command.Command) (bool, error) {
	switch cmd.Type {
	case command.TypeUpdateMessage:
		msg, err := cmd.Message()
		if err != nil {
			return false, err
		}
		h.stopClockLocked()
		h.state.Board = command.BoardFromString(msg)

	case command.TypeUpdateBoard:
		board, err := cmd.Board()
		if err != nil {
			return false, err
		}
		h.stopClockLocked()
		h.state.Board = board.Normalize()

	case command.TypeSetTheme:
		theme, err := cmd.Theme()
		if err != nil {
			return false, err
		}
		h.state.Theme = theme

	case command.TypeSetSound:
		sound, err := cmd.Sound()
		if err != nil {
			return false, err
		}
		h.state.Sound = sound

	case command.TypeStartLiveClock:
		variant, err := cmd.ClockVariant()
		if err != nil {
			return false, err
		}
		h.startClockLocked(variant)

	case command.TypeStopLiveClock:
		if !h.state.LiveClock {
			return false, nil
		}
		h.stopClockLocked()

	default:
		return false, command.ErrUnknownType
	}
	return true, nil
}

func (h *Host) startClockLocked(variant string) {
	h.stopClockLocked()
	h.state.LiveClock = true
	h.state.ClockVariant = variant
	h.state.Board = command.ClockBoard(h.now(), variant)

	stop := make(chan struct{})
	h.clock = stop
	go h.runClock(stop, variant)
}

func (h *Host) stopClockLocked() {
	if h.clock != nil {
		close(h.clock)
		h.clock = nil
	}
	h.state.LiveClock = false
	h.state.ClockVariant = ""
}

func (h *Host) runClock(stop chan struct{}, variant string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			if h.clock != stop {
				h.mu.Unlock()
				return
			}
			now := h.now()
			h.state.Board = command.ClockBoard(now, variant)
			h.state.UpdatedAt = now
			snapshot, fn := h.state.clone(), h.onChange
			h.mu.Unlock()

			if fn != nil {
				fn(snapshot)
			}
		}
	}
}
