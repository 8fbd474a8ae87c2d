// Package broker implements the relay server that pairs hosts and remotes
// by room token and forwards commands between them.
package broker

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/flipboard/internal/protocol"
)

// Hub owns the room map. All of its state is confined to the goroutine
// running Run; clients talk to it through channels.
type Hub struct {
	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	inbound    chan *message
	snapshots  chan chan Snapshot

	// done is closed when Run returns.
	done chan struct{}

	counts struct {
		relayed, dropped, rejected int
	}

	metrics *Metrics
	logger  *slog.Logger
}

type message struct {
	client *Client
	env    protocol.Envelope
	raw    []byte
}

// NewHub creates a hub. metrics and logger may be nil.
func NewHub(metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *message),
		snapshots:  make(chan chan Snapshot),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger.With("component", "broker"),
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.metrics.connectionOpened()
			h.logger.Debug("connection opened", "client", client.ID, "remote", client.remoteAddr())

		case client := <-h.unregister:
			h.leave(client)
			close(client.send)
			h.metrics.connectionClosed()
			h.logger.Debug("connection closed", "client", client.ID)

		case msg := <-h.inbound:
			h.handle(msg)

		case reply := <-h.snapshots:
			reply <- h.snapshot()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) handle(msg *message) {
	switch msg.env.Type {
	case protocol.TypeRegister:
		h.handleRegister(msg.client, msg.env)
	case protocol.TypeCommand:
		h.relay(msg.client, msg.raw)
	default:
		h.logger.Debug("ignoring envelope", "client", msg.client.ID, "type", msg.env.Type)
	}
}

func (h *Hub) handleRegister(client *Client, env protocol.Envelope) {
	if err := env.ValidateRegister(); err != nil {
		h.logger.Warn("registration rejected", "client", client.ID, "error", err)
		h.counts.rejected++
		h.metrics.registrationRejected()
		client.deliver(protocol.Error(err.Error()))
		return
	}

	// Registering again moves the connection.
	if client.roomID != "" {
		h.leave(client)
	}

	room, ok := h.rooms[env.RoomID]
	if !ok {
		room = newRoom(env.RoomID)
		h.rooms[env.RoomID] = room
		h.metrics.roomCreated()
	}

	client.role = env.Role
	client.roomID = env.RoomID
	room.add(client)
	h.metrics.participantJoined(client.role)

	h.logger.Info("participant registered",
		"client", client.ID,
		"role", client.role,
		"participants", len(room.participants),
	)

	client.deliver(protocol.Registered(client.role, room.ID))

	joined := protocol.PeerJoined(client.role)
	for _, other := range room.others(client) {
		other.deliver(joined)
	}
}

// relay forwards raw, the sender's envelope as read, to every other
// participant of the sender's room.
func (h *Hub) relay(sender *Client, raw []byte) {
	if sender.roomID == "" {
		h.logger.Debug("dropping command from unregistered connection", "client", sender.ID)
		h.dropped()
		return
	}
	room, ok := h.rooms[sender.roomID]
	if !ok {
		h.dropped()
		return
	}

	for _, other := range room.others(sender) {
		if other.trySend(raw) {
			h.counts.relayed++
			h.metrics.commandRelayed()
			continue
		}
		h.logger.Warn("dropping command for slow participant", "client", other.ID)
		h.dropped()
	}
}

func (h *Hub) dropped() {
	h.counts.dropped++
	h.metrics.commandDropped()
}

// leave removes client from its room, tells the rest of the room and
// deletes the room once it is empty.
func (h *Hub) leave(client *Client) {
	if client.roomID == "" {
		return
	}
	roomID, role := client.roomID, client.role
	client.roomID, client.role = "", ""

	room, ok := h.rooms[roomID]
	if !ok || !room.remove(client) {
		return
	}
	h.metrics.participantLeft(role)

	if room.empty() {
		delete(h.rooms, roomID)
		h.metrics.roomDeleted()
		h.logger.Debug("room deleted")
		return
	}

	left := protocol.PeerLeft(role)
	for _, other := range room.participants {
		other.deliver(left)
	}
	h.logger.Info("participant left", "client", client.ID, "role", role, "participants", len(room.participants))
}

func (h *Hub) shutdown() {
	for id, room := range h.rooms {
		for _, c := range room.participants {
			c.roomID, c.role = "", ""
		}
		delete(h.rooms, id)
	}
}
