package broker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/protocol"
)

type testBroker struct {
	hub      *Hub
	server   *httptest.Server
	registry *prometheus.Registry
}

func startBroker(t *testing.T) *testBroker {
	t.Helper()

	registry := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(NewMetrics(registry), logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn)
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-hub.Done()
	})
	return &testBroker{hub: hub, server: server, registry: registry}
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (b *testBroker) dial(t *testing.T) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(b.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (b *testBroker) join(t *testing.T, role protocol.Role, roomID string) *testClient {
	t.Helper()
	c := b.dial(t)
	c.send(protocol.Register(role, roomID))
	reply := c.receive()
	require.Equal(t, protocol.TypeRegistered, reply.Type)
	require.Equal(t, role, reply.Role)
	require.Equal(t, roomID, reply.RoomID)
	return c
}

func (b *testBroker) snapshot(t *testing.T) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := b.hub.Snapshot(ctx)
	require.NoError(t, err)
	return s
}

func (c *testClient) send(env protocol.Envelope) {
	require.NoError(c.t, c.conn.WriteJSON(env))
}

func (c *testClient) sendRaw(data string) {
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (c *testClient) receive() protocol.Envelope {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	env, err := protocol.Decode(data)
	require.NoError(c.t, err)
	return env
}

func (c *testClient) receiveRaw() string {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	return string(data)
}

// expectSilence fails if anything arrives within a short window. The
// connection is unusable for reads afterwards.
func (c *testClient) expectSilence() {
	c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, data, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected message: %s", data)
}

func TestHub_RelaysBetweenHostAndRemote(t *testing.T) {
	b := startBroker(t)

	host := b.join(t, protocol.RoleHost, "ab12cd34")
	remote := b.join(t, protocol.RoleRemote, "ab12cd34")

	joined := host.receive()
	assert.Equal(t, protocol.TypePeerJoined, joined.Type)
	assert.Equal(t, protocol.RoleRemote, joined.Role)

	env, err := protocol.CommandEnvelope(command.SetTheme(command.ThemeLight))
	require.NoError(t, err)
	wire, err := env.Encode()
	require.NoError(t, err)

	remote.sendRaw(string(wire))
	assert.Equal(t, string(wire), host.receiveRaw())

	host.sendRaw(string(wire))
	assert.Equal(t, string(wire), remote.receiveRaw())

	// Never reflected back to the sender.
	host.expectSilence()
}

func TestHub_CommandPreservedForEveryType(t *testing.T) {
	b := startBroker(t)
	host := b.join(t, protocol.RoleHost, "room-types")
	remote := b.join(t, protocol.RoleRemote, "room-types")
	host.receive() // peer_joined

	commands := []command.Command{
		command.UpdateMessage("hello world"),
		command.UpdateBoard(command.BoardFromString("BOARD")),
		command.SetTheme(command.ThemeDark),
		command.SetSound(command.SoundSubtle),
		command.StartLiveClock(command.Clock24h),
		command.StopLiveClock(),
	}

	for _, cmd := range commands {
		env, err := protocol.CommandEnvelope(cmd)
		require.NoError(t, err)
		remote.send(env)

		got, err := host.receive().Command()
		require.NoError(t, err)
		assert.Equal(t, cmd.Type, got.Type)
		assert.JSONEq(t, string(orNull(cmd.Payload)), string(orNull(got.Payload)))
	}
}

func orNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

func TestHub_PeerLeftOncePerDeparture(t *testing.T) {
	b := startBroker(t)
	host := b.join(t, protocol.RoleHost, "room-leave")
	remote := b.join(t, protocol.RoleRemote, "room-leave")
	host.receive() // peer_joined

	require.NoError(t, remote.conn.Close())

	left := host.receive()
	assert.Equal(t, protocol.TypePeerLeft, left.Type)
	assert.Equal(t, protocol.RoleRemote, left.Role)
	host.expectSilence()
}

func TestHub_MultipleRemotesAllReceive(t *testing.T) {
	b := startBroker(t)
	host := b.join(t, protocol.RoleHost, "room-multi")
	first := b.join(t, protocol.RoleRemote, "room-multi")
	host.receive() // peer_joined
	second := b.join(t, protocol.RoleRemote, "room-multi")
	host.receive()  // peer_joined
	first.receive() // peer_joined for the second remote

	env, err := protocol.CommandEnvelope(command.StopLiveClock())
	require.NoError(t, err)
	host.send(env)

	assert.Equal(t, protocol.TypeCommand, first.receive().Type)
	assert.Equal(t, protocol.TypeCommand, second.receive().Type)

	s := b.snapshot(t)
	assert.Equal(t, 1, s.Rooms)
	assert.Equal(t, 1, s.Hosts)
	assert.Equal(t, 2, s.Remotes)
	assert.Equal(t, 2, s.Relayed)
}

func TestHub_RejectsMalformedRegistration(t *testing.T) {
	b := startBroker(t)
	c := b.dial(t)

	c.send(protocol.Register(protocol.Role("admin"), "room"))
	reply := c.receive()
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.NotEmpty(t, reply.Message)

	c.send(protocol.Register(protocol.RoleHost, ""))
	assert.Equal(t, protocol.TypeError, c.receive().Type)

	assert.Equal(t, 2, b.snapshot(t).Rejected)
}

func TestHub_DiscardsGarbageAndKeepsConnection(t *testing.T) {
	b := startBroker(t)
	c := b.dial(t)

	c.sendRaw(`{not json`)
	c.send(protocol.Register(protocol.RoleHost, "room-garbage"))
	assert.Equal(t, protocol.TypeRegistered, c.receive().Type)
}

func TestHub_DropsCommandsFromUnregistered(t *testing.T) {
	b := startBroker(t)
	host := b.join(t, protocol.RoleHost, "room-drop")
	stranger := b.dial(t)

	env, err := protocol.CommandEnvelope(command.StopLiveClock())
	require.NoError(t, err)
	stranger.send(env)

	assert.Eventually(t, func() bool {
		return b.snapshot(t).Dropped == 1
	}, 2*time.Second, 10*time.Millisecond)
	host.expectSilence()
}

func TestHub_DeletesEmptyRooms(t *testing.T) {
	b := startBroker(t)
	host := b.join(t, protocol.RoleHost, "room-empty")
	require.Equal(t, 1, b.snapshot(t).Rooms)

	require.NoError(t, host.conn.Close())

	assert.Eventually(t, func() bool {
		return b.snapshot(t).Rooms == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ReRegisterMovesConnection(t *testing.T) {
	b := startBroker(t)
	host := b.join(t, protocol.RoleHost, "room-a")
	remote := b.join(t, protocol.RoleRemote, "room-a")
	host.receive() // peer_joined

	remote.send(protocol.Register(protocol.RoleRemote, "room-b"))
	assert.Equal(t, protocol.TypeRegistered, remote.receive().Type)

	left := host.receive()
	assert.Equal(t, protocol.TypePeerLeft, left.Type)

	s := b.snapshot(t)
	assert.Equal(t, 2, s.Rooms)
}

func TestHub_Metrics(t *testing.T) {
	b := startBroker(t)
	host := b.join(t, protocol.RoleHost, "room-metrics")
	remote := b.join(t, protocol.RoleRemote, "room-metrics")
	host.receive()

	env, err := protocol.CommandEnvelope(command.SetSound(command.SoundLoud))
	require.NoError(t, err)
	remote.send(env)
	host.receive()
	b.snapshot(t) // the relay has been fully processed once the loop answers

	families, err := b.registry.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			for _, label := range metric.GetLabel() {
				key += "/" + label.GetValue()
			}
			switch {
			case metric.GetGauge() != nil:
				values[key] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[key] = metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, values["flipboard_broker_rooms"])
	assert.Equal(t, 2.0, values["flipboard_broker_connections"])
	assert.Equal(t, 1.0, values["flipboard_broker_participants/host"])
	assert.Equal(t, 1.0, values["flipboard_broker_participants/remote"])
	assert.Equal(t, 1.0, values["flipboard_broker_commands_total/relayed"])
	assert.Equal(t, 2.0, values["flipboard_broker_registrations_total/accepted"])
}

func TestHub_SnapshotAfterStop(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.Done()

	_, err := hub.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrHubStopped)
}
