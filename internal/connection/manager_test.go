package connection

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/flipboard/internal/broker"
	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/transport"
	"github.com/BioHazard786/flipboard/internal/transport/direct"
	"github.com/BioHazard786/flipboard/internal/transport/relayed"
	"github.com/BioHazard786/flipboard/internal/transport/transporttest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeChannel records calls and lets tests drive its status.
type fakeChannel struct {
	*transport.Events

	mu        sync.Mutex
	sent      []command.Command
	destroyed int
	hosted    int
}

func newFake() *fakeChannel {
	return &fakeChannel{Events: transport.NewEvents()}
}

func (f *fakeChannel) InitHost(context.Context) (string, error) {
	f.mu.Lock()
	f.hosted++
	f.mu.Unlock()
	f.SetStatus(transport.StatusHostReady)
	return "room0001", nil
}

func (f *fakeChannel) ConnectToHost(context.Context, string) error {
	f.SetStatus(transport.StatusConnected)
	return nil
}

func (f *fakeChannel) SendCommand(cmd command.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
}

func (f *fakeChannel) RoomID() string {
	return "room0001"
}

func (f *fakeChannel) Destroy() {
	f.mu.Lock()
	f.destroyed++
	f.mu.Unlock()
	f.SetStatus(transport.StatusDisconnected)
}

func (f *fakeChannel) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"relay", ModeRelay, false},
		{"websocket", ModeRelay, false},
		{"DIRECT", ModeDirect, false},
		{" peerjs ", ModeDirect, false},
		{"carrier-pigeon", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, transport.ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_DefaultModeByEnvironment(t *testing.T) {
	assert.Equal(t, ModeDirect, New(newFake(), newFake(), true, quiet).Mode())
	assert.Equal(t, ModeRelay, New(newFake(), newFake(), false, quiet).Mode())
	assert.True(t, New(newFake(), newFake(), true, quiet).IsProduction())
}

func TestManager_RoutesToActiveChannel(t *testing.T) {
	relay, peer := newFake(), newFake()
	m := New(relay, peer, false, quiet)

	m.SendCommand(command.StopLiveClock())
	assert.Equal(t, 1, relay.sentCount())
	assert.Equal(t, 0, peer.sentCount())

	require.NoError(t, m.SetMode(ModeDirect))
	m.SendCommand(command.StopLiveClock())
	assert.Equal(t, 1, peer.sentCount())
}

func TestManager_SetModeMovesHandlers(t *testing.T) {
	relay, peer := newFake(), newFake()
	m := New(relay, peer, false, quiet)
	rec := transporttest.Attach(m)

	require.NoError(t, m.SetMode(ModeDirect))
	rec.Reset()

	// The old channel no longer reaches the subscriber.
	relay.SetStatus(transport.StatusError)
	relay.Dispatch(command.StopLiveClock())

	peer.SetStatus(transport.StatusConnecting)
	peer.Dispatch(command.SetTheme(command.ThemeDark))

	require.Eventually(t, func() bool {
		return rec.Seen(transport.StatusConnecting) && len(rec.Commands()) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.False(t, rec.Seen(transport.StatusError))
	assert.Equal(t, command.TypeSetTheme, rec.Commands()[0].Type)
}

// heldChannel keeps the last status handler it was given so a test can
// fire it after the channel has been swapped out.
type heldChannel struct {
	*fakeChannel
	held transport.StatusHandler
}

func (h *heldChannel) OnStatus(fn transport.StatusHandler) {
	if fn != nil {
		h.held = fn
	}
	h.fakeChannel.OnStatus(fn)
}

func TestManager_DropsEventsFromReplacedChannel(t *testing.T) {
	relay := &heldChannel{fakeChannel: newFake()}
	peer := newFake()
	m := New(relay, peer, false, quiet)
	rec := transporttest.Attach(m)

	require.NotNil(t, relay.held)
	stale := relay.held

	require.NoError(t, m.SetMode(ModeDirect))
	_, err := m.InitHost(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rec.Last() == transport.StatusHostReady
	}, time.Second, 5*time.Millisecond)

	// An event the old channel queued before the switch arrives late.
	stale(transport.StatusConnected)
	time.Sleep(50 * time.Millisecond)

	assert.False(t, rec.Seen(transport.StatusConnected), "stale status leaked: %v", rec.Statuses())
	assert.Equal(t, transport.StatusHostReady, rec.Last())
	assert.Equal(t, transport.StatusHostReady, m.Status())
}

// slowSubscriber takes a while to handle each status and tracks how many
// calls were in flight at once.
type slowSubscriber struct {
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32

	mu   sync.Mutex
	seen []transport.Status
}

func (s *slowSubscriber) handle(st transport.Status) {
	n := s.inFlight.Add(1)
	for {
		top := s.maxFlight.Load()
		if n <= top || s.maxFlight.CompareAndSwap(top, n) {
			break
		}
	}
	time.Sleep(s.delay)

	s.mu.Lock()
	s.seen = append(s.seen, st)
	s.mu.Unlock()
	s.inFlight.Add(-1)
}

func (s *slowSubscriber) last() transport.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		return ""
	}
	return s.seen[len(s.seen)-1]
}

func (s *slowSubscriber) statuses() []transport.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Status(nil), s.seen...)
}

func TestManager_HandlersNeverOverlap(t *testing.T) {
	relay, peer := newFake(), newFake()
	m := New(relay, peer, false, quiet)
	sub := &slowSubscriber{delay: 10 * time.Millisecond}
	m.OnStatus(sub.handle)

	var wg sync.WaitGroup
	for _, st := range []transport.Status{transport.StatusConnecting, transport.StatusHostReady, transport.StatusConnected} {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.SetStatus(st)
		}()
	}
	wg.Wait()
	require.NoError(t, m.SetMode(ModeDirect))
	peer.SetStatus(transport.StatusConnecting)

	require.Eventually(t, func() bool {
		return sub.inFlight.Load() == 0 && sub.last() == m.Status()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), sub.maxFlight.Load())
}

func TestManager_SetModeUnknown(t *testing.T) {
	m := New(newFake(), newFake(), false, quiet)
	assert.ErrorIs(t, m.SetMode("smoke-signals"), transport.ErrUnknownMode)
	assert.Equal(t, ModeRelay, m.Mode())
}

func TestManager_DestroyAllTearsDownBoth(t *testing.T) {
	relay, peer := newFake(), newFake()
	m := New(relay, peer, false, quiet)

	m.DestroyAll()
	assert.Equal(t, 1, relay.destroyCount())
	assert.Equal(t, 1, peer.destroyCount())
}

func startBroker(t *testing.T) string {
	t.Helper()

	hub := broker.NewHub(nil, quiet)
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
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newManager(t *testing.T, url string, introducer direct.Introducer) *Manager {
	t.Helper()
	m := New(
		relayed.New(relayed.Options{URL: url, Logger: quiet}),
		direct.New(introducer, direct.Options{IncludeLoopback: true, Logger: quiet}),
		false,
		quiet,
	)
	t.Cleanup(m.DestroyAll)
	return m
}

func TestManager_SwitchModeMidSession(t *testing.T) {
	url := startBroker(t)
	introducer := direct.NewMemoryIntroducer()

	host := newManager(t, url, introducer)
	remote := newManager(t, url, introducer)
	hostRec := transporttest.Attach(host)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	roomID, err := host.InitHost(ctx)
	require.NoError(t, err)
	require.NoError(t, remote.ConnectToHost(ctx, roomID))
	require.Eventually(t, func() bool {
		return host.Status() == transport.StatusConnected
	}, 5*time.Second, 10*time.Millisecond)

	host.DestroyAll()
	require.Eventually(t, func() bool {
		return hostRec.Last() == transport.StatusDisconnected
	}, time.Second, 5*time.Millisecond)
	hostRec.Reset()

	require.NoError(t, host.SetMode(ModeDirect))
	newRoom, err := host.InitHost(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, roomID, newRoom)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, hostRec.Seen(transport.StatusConnected), "stale status leaked: %v", hostRec.Statuses())
	assert.Equal(t, transport.StatusHostReady, host.Status())

	// The remote follows onto the new transport and commands flow again.
	remote.DestroyAll()
	require.NoError(t, remote.SetMode(ModeDirect))
	require.NoError(t, remote.ConnectToHost(ctx, newRoom))

	remote.SendCommand(command.UpdateMessage("SWITCHED"))
	require.Eventually(t, func() bool {
		return len(hostRec.Commands()) == 1
	}, 20*time.Second, 10*time.Millisecond)
}

func TestManager_SwitchModeWithSlowSubscriber(t *testing.T) {
	url := startBroker(t)
	introducer := direct.NewMemoryIntroducer()

	host := newManager(t, url, introducer)
	remote := newManager(t, url, introducer)
	sub := &slowSubscriber{delay: 30 * time.Millisecond}
	host.OnStatus(sub.handle)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	roomID, err := host.InitHost(ctx)
	require.NoError(t, err)
	require.NoError(t, remote.ConnectToHost(ctx, roomID))
	require.Eventually(t, func() bool {
		return host.Status() == transport.StatusConnected
	}, 5*time.Second, 10*time.Millisecond)

	// Switch while the subscriber is still working through the backlog.
	host.DestroyAll()
	require.NoError(t, host.SetMode(ModeDirect))
	_, err = host.InitHost(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sub.inFlight.Load() == 0 && sub.last() == transport.StatusHostReady
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, transport.StatusHostReady, sub.last(), "delivered: %v", sub.statuses())
	assert.Equal(t, host.Status(), sub.last())
	assert.Equal(t, int32(1), sub.maxFlight.Load())
}
