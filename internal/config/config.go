package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/BioHazard786/flipboard/internal/connection"
	"github.com/BioHazard786/flipboard/internal/transport/direct"
)

// Default configuration values
const (
	DefaultDomain          = "localhost:8080"
	DefaultAddr            = ":8080"
	DefaultConnectTimeout  = 10 * time.Second
	DefaultRegisterTimeout = 10 * time.Second
	DefaultReconnectDelay  = time.Second

	RelayPath     = "/ws-relay"
	IntroducePath = "/introduce"
	HealthPath    = "/health"
	MetricsPath   = "/metrics"

	envPrefix = "FLIPBOARD"
)

// Config holds application configuration
type Config struct {
	// Domain is the host[:port] serving the broker and introducer.
	Domain string
	// Secure selects wss/https. Local domains default to plain ws/http.
	Secure bool

	Mode       connection.Mode
	Production bool

	// ICE servers for the direct transport
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	ConnectTimeout  time.Duration
	RegisterTimeout time.Duration
	ReconnectDelay  time.Duration

	// Addr is the listen address for serve.
	Addr string
}

// Options for loading config with CLI flag overrides. Zero values mean
// "not set on the command line".
type Options struct {
	ConfigFile string

	Domain     string
	Insecure   bool
	Mode       string
	Production bool

	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	ConnectTimeout  time.Duration
	RegisterTimeout time.Duration
	ReconnectDelay  time.Duration

	Addr string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (FLIPBOARD_DOMAIN, FLIPBOARD_TURN_USER, ...)
// 3. The config file, when one is given
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("insecure", false)
	v.SetDefault("mode", "")
	v.SetDefault("production", false)
	v.SetDefault("stun", direct.DefaultSTUN)
	v.SetDefault("turn", "")
	v.SetDefault("turn-user", "")
	v.SetDefault("turn-pass", "")
	v.SetDefault("force-relay", false)
	v.SetDefault("connect-timeout", DefaultConnectTimeout)
	v.SetDefault("register-timeout", DefaultRegisterTimeout)
	v.SetDefault("reconnect-delay", DefaultReconnectDelay)
	v.SetDefault("addr", DefaultAddr)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setIf(v, "domain", opts.Domain, opts.Domain != "")
	setIf(v, "insecure", true, opts.Insecure)
	setIf(v, "mode", opts.Mode, opts.Mode != "")
	setIf(v, "production", true, opts.Production)
	setIf(v, "stun", opts.STUNServers, len(opts.STUNServers) > 0)
	setIf(v, "turn", opts.TURNServer, opts.TURNServer != "")
	setIf(v, "turn-user", opts.TURNUser, opts.TURNUser != "")
	setIf(v, "turn-pass", opts.TURNPass, opts.TURNPass != "")
	setIf(v, "force-relay", true, opts.ForceRelay)
	setIf(v, "connect-timeout", opts.ConnectTimeout, opts.ConnectTimeout > 0)
	setIf(v, "register-timeout", opts.RegisterTimeout, opts.RegisterTimeout > 0)
	setIf(v, "reconnect-delay", opts.ReconnectDelay, opts.ReconnectDelay > 0)
	setIf(v, "addr", opts.Addr, opts.Addr != "")

	domain := strings.TrimSuffix(strings.TrimSpace(v.GetString("domain")), "/")
	if domain == "" {
		return nil, fmt.Errorf("domain must not be empty")
	}

	production := v.GetBool("production")
	mode := connection.DefaultMode(production)
	if raw := v.GetString("mode"); raw != "" {
		parsed, err := connection.ParseMode(raw)
		if err != nil {
			return nil, err
		}
		mode = parsed
	}

	cfg := &Config{
		Domain:          domain,
		Secure:          !v.GetBool("insecure") && !isLocal(domain),
		Mode:            mode,
		Production:      production,
		STUNServers:     splitList(v.GetStringSlice("stun")),
		TURNServers:     turnURLs(v.GetString("turn")),
		TURNUser:        v.GetString("turn-user"),
		TURNPass:        v.GetString("turn-pass"),
		ForceRelay:      v.GetBool("force-relay"),
		ConnectTimeout:  v.GetDuration("connect-timeout"),
		RegisterTimeout: v.GetDuration("register-timeout"),
		ReconnectDelay:  v.GetDuration("reconnect-delay"),
		Addr:            v.GetString("addr"),
	}

	if cfg.ForceRelay && len(cfg.TURNServers) == 0 {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

func setIf(v *viper.Viper, key string, value any, ok bool) {
	if ok {
		v.Set(key, value)
	}
}

// splitList flattens comma-separated entries, as env vars carry lists.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// turnURLs expands a bare TURN host into its UDP, TCP and TLS URLs. A
// value that already carries a turn: or turns: scheme is kept as is.
func turnURLs(server string) []string {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil
	}
	if strings.HasPrefix(server, "turn:") || strings.HasPrefix(server, "turns:") {
		return splitList([]string{server})
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", server),
		fmt.Sprintf("turn:%s:3478?transport=tcp", server),
		fmt.Sprintf("turns:%s:5349?transport=tcp", server),
	}
}

func isLocal(domain string) bool {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

func (c *Config) scheme(secure, plain string) string {
	if c.Secure {
		return secure
	}
	return plain
}

// RelayURL is the broker's websocket endpoint.
func (c *Config) RelayURL() string {
	return c.scheme("wss", "ws") + "://" + c.Domain + RelayPath
}

// IntroducerURL is the introducer's websocket endpoint.
func (c *Config) IntroducerURL() string {
	return c.scheme("wss", "ws") + "://" + c.Domain + IntroducePath
}

// HealthURL is the broker's JSON health endpoint.
func (c *Config) HealthURL() string {
	return c.scheme("https", "http") + "://" + c.Domain + HealthPath
}

// RoomLink returns the link a remote opens to join roomID.
func (c *Config) RoomLink(roomID string, mode connection.Mode) string {
	q := url.Values{}
	q.Set("remote", roomID)
	q.Set("mode", string(mode))
	return c.scheme("https", "http") + "://" + c.Domain + "/?" + q.Encode()
}

// ICE returns the ICE settings for the direct transport.
func (c *Config) ICE() direct.ICEConfig {
	return direct.ICEConfig{
		STUN:       c.STUNServers,
		TURN:       c.TURNServers,
		TURNUser:   c.TURNUser,
		TURNPass:   c.TURNPass,
		ForceRelay: c.ForceRelay,
	}
}
