// Package direct carries commands over a WebRTC data channel negotiated
// through an introducer. Once the channel is open the introducer is no
// longer involved.
package direct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/protocol"
	"github.com/BioHazard786/flipboard/internal/transport"
)

const (
	DefaultConnectTimeout = 10 * time.Second

	gatherTimeout  = 15 * time.Second
	channelLabel   = "commands"
	hostIDAttempts = 3
)

type Options struct {
	ICE ICEConfig

	// ConnectTimeout bounds a remote's whole connection attempt, from
	// introducer registration until the data channel opens.
	ConnectTimeout time.Duration

	// IncludeLoopback adds loopback candidates so peers on the same
	// machine can connect without any network interface.
	IncludeLoopback bool

	Logger *slog.Logger
}

// Channel is a transport.Channel over a WebRTC data channel.
//
// Every InitHost, ConnectToHost and Destroy starts a new session. Callbacks
// from pion carry the session they were created in and are ignored once
// it is over, so a late event from a torn down connection never changes
// the status.
type Channel struct {
	introducer Introducer
	opts       Options
	events     *transport.Events
	logger     *slog.Logger

	mu         sync.Mutex
	session    uint64
	cancel     context.CancelFunc
	role       transport.Role
	roomID     string
	signals    Session
	peers      []*webrtc.PeerConnection
	active     *webrtc.DataChannel
	activePeer *webrtc.PeerConnection
}

var _ transport.Channel = (*Channel)(nil)

func New(introducer Introducer, opts Options) *Channel {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Channel{
		introducer: introducer,
		opts:       opts,
		events:     transport.NewEvents(),
		logger:     opts.Logger.With("component", "direct"),
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

// InitHost claims a fresh room id on the introducer and answers offers
// addressed to it until the channel is destroyed.
func (c *Channel) InitHost(ctx context.Context) (string, error) {
	id, sctx := c.begin(transport.RoleHost, "")

	var (
		session Session
		err     error
	)
	for i := 0; i < hostIDAttempts; i++ {
		session, err = c.introducer.Register(ctx, transport.NewRoomID())
		if !errors.Is(err, transport.ErrIDTaken) {
			break
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", c.fail(id, ctx.Err())
		}
		return "", c.fail(id, transport.WrapError("init host", transport.ErrRegistration, err.Error()))
	}

	c.mu.Lock()
	if c.session != id {
		c.mu.Unlock()
		session.Close()
		return "", transport.NewError("init host", transport.ErrDestroyed)
	}
	c.signals = session
	c.roomID = session.ID()
	c.events.SetStatus(transport.StatusHostReady)
	c.mu.Unlock()

	c.logger.Info("host ready", "room", session.ID())
	go c.serveHost(sctx, id, session)
	return session.ID(), nil
}

func (c *Channel) serveHost(ctx context.Context, id uint64, session Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-session.Signals():
			if !ok {
				c.logger.Warn("introducer connection lost, no new remotes can join")
				c.mu.Lock()
				if c.session == id {
					c.events.SetStatus(transport.StatusError)
				}
				c.mu.Unlock()
				return
			}
			switch sig.Type {
			case protocol.SignalOffer:
				go c.answer(ctx, id, session, sig)
			default:
				c.logger.Debug("ignoring signal", "type", sig.Type, "from", sig.Src)
			}
		}
	}
}

// answer accepts one remote's offer. Failures are logged and leave the
// host waiting for the next offer.
func (c *Channel) answer(ctx context.Context, id uint64, session Session, offer protocol.Signal) {
	logger := c.logger.With("remote", offer.Src, "connection", offer.ConnectionID)

	pc, err := c.newPeerConnection()
	if err != nil {
		logger.Error("failed to create peer connection", "error", err)
		return
	}
	if !c.track(id, pc) {
		pc.Close()
		return
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		c.bind(id, pc, dc, nil)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", "state", s.String())
		if s == webrtc.PeerConnectionStateFailed {
			pc.Close()
		}
	})

	err = pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	})
	if err != nil {
		logger.Warn("rejecting offer", "error", err)
		c.untrack(id, pc)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		logger.Warn("failed to create answer", "error", err)
		c.untrack(id, pc)
		return
	}
	sdp, err := c.gather(ctx, pc, answer)
	if err != nil {
		logger.Warn("failed to gather candidates", "error", err)
		c.untrack(id, pc)
		return
	}

	err = session.Send(ctx, protocol.Signal{
		Type:         protocol.SignalAnswer,
		Dst:          offer.Src,
		SDP:          sdp,
		ConnectionID: offer.ConnectionID,
	})
	if err != nil {
		logger.Warn("failed to send answer", "error", err)
		c.untrack(id, pc)
		return
	}
	logger.Debug("answered offer")
}

// ConnectToHost offers a connection to hostID and waits until the data
// channel opens, the host is reported missing, negotiation fails or the
// connect timeout passes.
func (c *Channel) ConnectToHost(ctx context.Context, hostID string) error {
	const op = "connect to host"
	id, sctx := c.begin(transport.RoleRemote, hostID)

	// The connect timeout covers the whole attempt, gathering included.
	actx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	stop := context.AfterFunc(sctx, cancel)
	defer stop()

	expired := func() error {
		switch {
		case ctx.Err() != nil:
			return c.fail(id, ctx.Err())
		case sctx.Err() != nil:
			return transport.NewError(op, transport.ErrDestroyed)
		}
		return c.fail(id, transport.WrapError(op, transport.ErrTimeout,
			fmt.Sprintf("no connection to %s after %s", hostID, c.opts.ConnectTimeout)))
	}

	session, err := c.introducer.Register(actx, "")
	if err != nil {
		if actx.Err() != nil {
			return expired()
		}
		return c.fail(id, transport.WrapError(op, transport.ErrRegistration, err.Error()))
	}

	c.mu.Lock()
	if c.session != id {
		c.mu.Unlock()
		session.Close()
		return transport.NewError(op, transport.ErrDestroyed)
	}
	c.signals = session
	c.mu.Unlock()

	pc, err := c.newPeerConnection()
	if err != nil {
		return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, err.Error()))
	}
	if !c.track(id, pc) {
		pc.Close()
		return transport.NewError(op, transport.ErrDestroyed)
	}

	ordered := true
	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, err.Error()))
	}

	opened := make(chan struct{})
	var openOnce sync.Once
	c.bind(id, pc, dc, func() {
		openOnce.Do(func() { close(opened) })
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Debug("peer connection state", "state", s.String())
		if s == webrtc.PeerConnectionStateFailed {
			pc.Close()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, err.Error()))
	}
	sdp, err := c.gather(actx, pc, offer)
	if err != nil {
		if actx.Err() != nil {
			return expired()
		}
		return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, err.Error()))
	}

	connectionID := uuid.NewString()
	err = session.Send(actx, protocol.Signal{
		Type:         protocol.SignalOffer,
		Dst:          hostID,
		SDP:          sdp,
		ConnectionID: connectionID,
	})
	if err != nil {
		if actx.Err() != nil {
			return expired()
		}
		return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, err.Error()))
	}

	for {
		select {
		case <-opened:
			// The introducer id is only needed during negotiation.
			session.Close()
			c.logger.Info("connected to host", "host", hostID)
			return nil

		case sig, ok := <-session.Signals():
			if !ok {
				return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, "introducer connection lost"))
			}
			switch sig.Type {
			case protocol.SignalAnswer:
				if sig.ConnectionID != connectionID {
					continue
				}
				err := pc.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer,
					SDP:  sig.SDP,
				})
				if err != nil {
					return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, err.Error()))
				}
			case protocol.SignalUnavailable:
				if sig.ID == hostID {
					return c.fail(id, transport.WrapError(op, transport.ErrHostNotFound, hostID))
				}
			case protocol.SignalError:
				return c.fail(id, transport.WrapError(op, transport.ErrNegotiation, sig.Message))
			}

		case <-actx.Done():
			return expired()
		}
	}
}

// SendCommand sends cmd on the open data channel. Without one the
// command is dropped.
func (c *Channel) SendCommand(cmd command.Command) {
	c.mu.Lock()
	dc := c.active
	c.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		c.logger.Debug("dropping command, data channel not open", "type", cmd.Type)
		return
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Error("failed to encode command", "type", cmd.Type, "error", err)
		return
	}
	if err := dc.SendText(string(data)); err != nil {
		c.logger.Warn("failed to send command", "type", cmd.Type, "error", err)
	}
}

// Destroy closes every peer connection and the introducer session. It is
// safe to call at any point, any number of times.
func (c *Channel) Destroy() {
	c.mu.Lock()
	release := c.detachLocked()
	c.session++
	c.roomID = ""
	c.events.SetStatus(transport.StatusDisconnected)
	c.mu.Unlock()

	release()
}

// begin ends the current session and starts a new one in the connecting
// state.
func (c *Channel) begin(role transport.Role, roomID string) (uint64, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	release := c.detachLocked()
	c.session++
	id := c.session
	c.cancel = cancel
	c.role = role
	c.roomID = roomID
	c.events.SetStatus(transport.StatusConnecting)
	c.mu.Unlock()

	release()
	return id, ctx
}

// fail ends session id and publishes the status matching err. When the
// session is already over it reports ErrDestroyed instead.
func (c *Channel) fail(id uint64, err error) error {
	c.mu.Lock()
	if c.session != id {
		c.mu.Unlock()
		return transport.NewError("connect", transport.ErrDestroyed)
	}
	release := c.detachLocked()
	c.session++
	c.events.SetStatus(transport.StatusFor(err))
	c.mu.Unlock()

	release()
	c.logger.Warn("connection attempt failed", "error", err)
	return err
}

// detachLocked clears the session's resources and returns a function
// that closes them. pion may run callbacks while closing, so the
// function must be called without c.mu held.
func (c *Channel) detachLocked() func() {
	cancel, signals, peers := c.cancel, c.signals, c.peers
	c.cancel, c.signals, c.peers = nil, nil, nil
	c.active, c.activePeer = nil, nil

	return func() {
		if cancel != nil {
			cancel()
		}
		if signals != nil {
			signals.Close()
		}
		for _, pc := range peers {
			if err := pc.Close(); err != nil {
				c.logger.Debug("closing peer connection", "error", err)
			}
		}
	}
}

func (c *Channel) track(id uint64, pc *webrtc.PeerConnection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != id {
		return false
	}
	c.peers = append(c.peers, pc)
	return true
}

func (c *Channel) untrack(id uint64, pc *webrtc.PeerConnection) {
	c.mu.Lock()
	if c.session == id {
		c.removePeerLocked(pc)
	}
	c.mu.Unlock()
	pc.Close()
}

func (c *Channel) removePeerLocked(pc *webrtc.PeerConnection) {
	for i, p := range c.peers {
		if p == pc {
			c.peers = append(c.peers[:i], c.peers[i+1:]...)
			return
		}
	}
}

// bind routes dc's messages and lifecycle into session id. opened, when
// set, runs after dc becomes the active channel.
func (c *Channel) bind(id uint64, pc *webrtc.PeerConnection, dc *webrtc.DataChannel, opened func()) {
	dc.OnOpen(func() {
		if c.activate(id, pc, dc) && opened != nil {
			opened()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.receive(id, msg.Data)
	})
	dc.OnClose(func() {
		c.deactivate(id, dc)
	})
}

// activate makes dc the channel commands are sent on. A newer channel
// replaces an older one, whose peer connection is closed.
func (c *Channel) activate(id uint64, pc *webrtc.PeerConnection, dc *webrtc.DataChannel) bool {
	c.mu.Lock()
	if c.session != id {
		c.mu.Unlock()
		dc.Close()
		return false
	}
	previous := c.activePeer
	if previous == pc {
		previous = nil
	}
	if previous != nil {
		c.removePeerLocked(previous)
	}
	c.active, c.activePeer = dc, pc
	c.events.SetStatus(transport.StatusConnected)
	c.mu.Unlock()

	if previous != nil {
		c.logger.Info("newer remote replaced the active one")
		previous.Close()
	}
	return true
}

// deactivate handles the active channel closing. A host goes back to
// waiting for remotes, a remote is disconnected.
func (c *Channel) deactivate(id uint64, dc *webrtc.DataChannel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != id || c.active != dc {
		return
	}
	c.active, c.activePeer = nil, nil
	if c.role == transport.RoleHost {
		c.events.SetStatus(transport.StatusHostReady)
	} else {
		c.events.SetStatus(transport.StatusDisconnected)
	}
	c.logger.Info("data channel closed")
}

func (c *Channel) receive(id uint64, data []byte) {
	cmd, err := command.Parse(data)
	if err != nil {
		c.logger.Warn("discarding invalid command", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == id {
		c.events.Dispatch(cmd)
	}
}

// gather sets desc as the local description and waits for ICE gathering
// to finish, so the returned SDP carries every candidate.
func (c *Channel) gather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (string, error) {
	complete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(gatherTimeout)
	defer timer.Stop()

	select {
	case <-complete:
	case <-timer.C:
		return "", fmt.Errorf("ICE gathering timed out after %s", gatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

func (c *Channel) newPeerConnection() (*webrtc.PeerConnection, error) {
	se := webrtc.SettingEngine{}
	if c.opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(c.opts.ICE.Configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return pc, nil
}
