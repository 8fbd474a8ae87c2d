package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/transport"
	"github.com/BioHazard786/flipboard/internal/transport/direct"
	"github.com/BioHazard786/flipboard/internal/transport/relayed"
	"github.com/BioHazard786/flipboard/internal/transport/transporttest"
)

const waitFor = 20 * time.Second

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	*Server
	http *httptest.Server
	stop context.CancelFunc
}

func start(t *testing.T) *testServer {
	t.Helper()

	s := New(Options{Logger: quiet, Registry: prometheus.NewRegistry()})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	httpServer := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		httpServer.Close()
		cancel()
		s.Wait()
	})
	return &testServer{Server: s, http: httpServer, stop: cancel}
}

func (ts *testServer) ws(path string) string {
	return "ws" + strings.TrimPrefix(ts.http.URL, "http") + path
}

func (ts *testServer) health(t *testing.T) (int, Health) {
	t.Helper()
	resp, err := http.Get(ts.http.URL + config.HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	return resp.StatusCode, h
}

func TestServer_HealthOnIdleBroker(t *testing.T) {
	ts := start(t)

	code, h := ts.health(t)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", h.Status)
	assert.Zero(t, h.Broker.Rooms)
}

func TestServer_HealthUnavailableAfterStop(t *testing.T) {
	ts := start(t)
	ts.stop()
	ts.Wait()

	code, h := ts.health(t)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", h.Status)
}

func TestServer_UnknownRoute(t *testing.T) {
	ts := start(t)

	resp, err := http.Get(ts.http.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RelayEndToEnd(t *testing.T) {
	ts := start(t)

	host := relayed.New(relayed.Options{URL: ts.ws(config.RelayPath), Logger: quiet})
	remote := relayed.New(relayed.Options{URL: ts.ws(config.RelayPath), Logger: quiet})
	t.Cleanup(host.Destroy)
	t.Cleanup(remote.Destroy)
	hostRec := transporttest.Attach(host)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	roomID, err := host.InitHost(ctx)
	require.NoError(t, err)
	require.NoError(t, remote.ConnectToHost(ctx, roomID))

	remote.SendCommand(command.UpdateMessage("VIA BROKER"))
	require.Eventually(t, func() bool {
		return len(hostRec.Commands()) == 1
	}, waitFor, 10*time.Millisecond)

	msg, err := hostRec.Commands()[0].Message()
	require.NoError(t, err)
	assert.Equal(t, command.PadMessage("VIA BROKER"), msg)

	_, h := ts.health(t)
	assert.Equal(t, 1, h.Broker.Rooms)
	assert.Equal(t, 1, h.Broker.Hosts)
	assert.Equal(t, 1, h.Broker.Remotes)
	assert.Equal(t, 1, h.Broker.Relayed)

	resp, err := http.Get(ts.http.URL + config.MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "flipboard_broker_rooms 1")
	assert.Contains(t, string(body), `flipboard_broker_commands_total{result="relayed"} 1`)
}

func TestServer_DirectEndToEnd(t *testing.T) {
	ts := start(t)

	introducer := &direct.WebSocketIntroducer{URL: ts.ws(config.IntroducePath), Logger: quiet}
	opts := direct.Options{ConnectTimeout: waitFor, IncludeLoopback: true, Logger: quiet}
	host := direct.New(introducer, opts)
	remote := direct.New(introducer, opts)
	t.Cleanup(host.Destroy)
	t.Cleanup(remote.Destroy)
	hostRec := transporttest.Attach(host)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	roomID, err := host.InitHost(ctx)
	require.NoError(t, err)
	require.NoError(t, remote.ConnectToHost(ctx, roomID))
	assert.Equal(t, transport.StatusConnected, remote.Status())

	remote.SendCommand(command.SetTheme(command.ThemeLight))
	require.Eventually(t, func() bool {
		return len(hostRec.Commands()) == 1
	}, waitFor, 20*time.Millisecond)

	theme, err := hostRec.Commands()[0].Theme()
	require.NoError(t, err)
	assert.Equal(t, command.ThemeLight, theme)
}
