package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/connection"
	"github.com/BioHazard786/flipboard/internal/dns"
	"github.com/BioHazard786/flipboard/internal/transport/direct"
	"github.com/BioHazard786/flipboard/internal/transport/relayed"
)

// newDialer resolves through the public-DNS fallback so that a broken
// local resolver does not block the websocket handshake.
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: 10 * time.Second,
	}
}

// newManager builds both transports from cfg and puts the configured one
// in front.
func newManager(cfg *config.Config) (*connection.Manager, error) {
	logger := slog.Default()
	dialer := newDialer()

	relay := relayed.New(relayed.Options{
		URL:             cfg.RelayURL(),
		RegisterTimeout: cfg.RegisterTimeout,
		Dialer:          dialer,
		Logger:          logger,
	})
	peer := direct.New(&direct.WebSocketIntroducer{
		URL:    cfg.IntroducerURL(),
		Dialer: dialer,
		Logger: logger,
	}, direct.Options{
		ICE:            cfg.ICE(),
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	})

	m := connection.New(relay, peer, cfg.Production, logger)
	if err := m.SetMode(cfg.Mode); err != nil {
		return nil, err
	}
	return m, nil
}
