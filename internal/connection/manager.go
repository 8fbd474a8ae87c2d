// Package connection selects one transport channel at a time and gives
// the rest of the application a single API over it.
package connection

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/transport"
)

// Mode names a transport.
type Mode string

const (
	ModeRelay  Mode = "relay"
	ModeDirect Mode = "direct"
)

// ParseMode accepts a mode name. The names used by the web client,
// "websocket" and "peerjs", are accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "relay", "websocket", "ws":
		return ModeRelay, nil
	case "direct", "peerjs", "p2p", "webrtc":
		return ModeDirect, nil
	default:
		return "", transport.WrapError("parse mode", transport.ErrUnknownMode, s)
	}
}

// DefaultMode is direct in production, where no broker is colocated, and
// relay otherwise.
func DefaultMode(production bool) Mode {
	if production {
		return ModeDirect
	}
	return ModeRelay
}

// Manager routes every call to the channel of the current mode.
//
// Status and command events reach subscribers through the Manager's own
// dispatcher, so handlers run one at a time whichever channel produced
// the event. Only the active channel is subscribed, and its forwarders
// carry the generation they were created in: an event already queued by
// a channel that has since been replaced is dropped.
type Manager struct {
	channels   map[Mode]transport.Channel
	production bool
	logger     *slog.Logger
	events     *transport.Events

	mu   sync.Mutex
	mode Mode
	gen  uint64
}

// New returns a Manager over the two transports, starting in the default
// mode for production.
func New(relay, direct transport.Channel, production bool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		channels: map[Mode]transport.Channel{
			ModeRelay:  relay,
			ModeDirect: direct,
		},
		production: production,
		mode:       DefaultMode(production),
		logger:     logger.With("component", "connection"),
		events:     transport.NewEvents(),
	}

	m.mu.Lock()
	m.subscribeLocked()
	m.mu.Unlock()
	return m
}

// subscribeLocked points the active channel at forwarders for the current
// generation. The channel replays its status, which becomes the
// Manager's.
func (m *Manager) subscribeLocked() {
	ch := m.channels[m.mode]
	if ch == nil {
		return
	}
	gen := m.gen
	ch.OnStatus(func(s transport.Status) {
		m.forward(gen, func() { m.events.SetStatus(s) })
	})
	ch.OnCommand(func(cmd command.Command) {
		m.forward(gen, func() { m.events.Dispatch(cmd) })
	})
}

func (m *Manager) forward(gen uint64, post func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	post()
}

func (m *Manager) active() transport.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[m.mode]
}

func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Manager) IsProduction() bool {
	return m.production
}

// SetMode selects the transport used by later calls. The old channel is
// unsubscribed and anything it still has queued is discarded.
func (m *Manager) SetMode(mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.channels[mode]
	if !ok || next == nil {
		return transport.WrapError("set mode", transport.ErrUnknownMode, string(mode))
	}
	if mode == m.mode {
		return nil
	}

	if prev := m.channels[m.mode]; prev != nil {
		prev.OnStatus(nil)
		prev.OnCommand(nil)
	}
	m.logger.Info("transport mode changed", "from", m.mode, "to", mode)
	m.mode = mode
	m.gen++
	m.subscribeLocked()
	return nil
}

func (m *Manager) OnStatus(h transport.StatusHandler) {
	m.events.OnStatus(h)
}

func (m *Manager) OnCommand(h transport.CommandHandler) {
	m.events.OnCommand(h)
}

func (m *Manager) InitHost(ctx context.Context) (string, error) {
	return m.active().InitHost(ctx)
}

func (m *Manager) ConnectToHost(ctx context.Context, roomID string) error {
	return m.active().ConnectToHost(ctx, roomID)
}

func (m *Manager) SendCommand(cmd command.Command) {
	m.active().SendCommand(cmd)
}

func (m *Manager) Status() transport.Status {
	return m.active().Status()
}

func (m *Manager) RoomID() string {
	return m.active().RoomID()
}

// DestroyAll tears down both transports, whichever is active, so no
// connection from an earlier session survives a mode switch.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	channels := make([]transport.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Destroy()
	}
}
