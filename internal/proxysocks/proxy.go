// Package proxysocks provides optional SOCKS5 dial-through for an
// Endpoint's outbound peer connection, for environments where a direct TCP
// connect to the peer is not permitted (spec §4.5 dial path).
package proxysocks

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// Config holds the SOCKS5 settings for a peer dial. The zero value (Enabled
// == false) is valid and means "dial the peer directly".
type Config struct {
	Enabled  bool   `json:"enabled"`
	Type     string `json:"type"` // must be "socks5"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"` // optional authentication
	Password string `json:"password"` // optional authentication
}

// PeerDialer resolves an Endpoint's TCP connection to a peer, either
// directly or through a configured SOCKS5 proxy.
type PeerDialer struct {
	config *Config
	dialer proxy.Dialer
}

// NewPeerDialer builds a PeerDialer from cfg. A disabled config yields a
// direct net.Dialer with a conservative default timeout.
func NewPeerDialer(cfg *Config) (*PeerDialer, error) {
	if !cfg.Enabled {
		return &PeerDialer{
			config: cfg,
			dialer: &net.Dialer{Timeout: dialTimeout},
		}, nil
	}

	if cfg.Type != "socks5" {
		return nil, apperrors.New(apperrors.NotConnected, "unsupported proxy type "+cfg.Type+" (must be socks5)")
	}
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, apperrors.New(apperrors.NotConnected, "proxy host and port are required when proxy is enabled")
	}

	proxyAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	authURL := &url.URL{Scheme: "socks5", Host: proxyAddr}
	if cfg.Username != "" {
		authURL.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	dialer, err := proxy.FromURL(authURL, proxy.Direct)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NotConnected, "build socks5 dialer", err)
	}

	return &PeerDialer{config: cfg, dialer: dialer}, nil
}

const dialTimeout = 10 * time.Second

// Dial establishes network to address through the configured proxy, or
// directly if none is configured.
func (d *PeerDialer) Dial(network, address string) (net.Conn, error) {
	return d.dialer.Dial(network, address)
}

// DialContext is Dial with cancellation. Most golang.org/x/net/proxy dialers
// (including the direct net.Dialer) implement ContextDialer natively; the
// fallback goroutine exists only for dialer implementations that don't.
func (d *PeerDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if ctxDialer, ok := d.dialer.(interface {
		DialContext(context.Context, string, string) (net.Conn, error)
	}); ok {
		return ctxDialer.DialContext(ctx, network, address)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := d.dialer.Dial(network, address)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enabled reports whether peer connections are routed through a SOCKS5
// proxy rather than dialed directly.
func (d *PeerDialer) Enabled() bool {
	return d.config.Enabled
}

// ProxyType returns the configured proxy type, or "" when dialing directly.
func (d *PeerDialer) ProxyType() string {
	if !d.config.Enabled {
		return ""
	}
	return d.config.Type
}

// ProxyAddress returns the "host:port" of the configured proxy, or "" when
// dialing directly.
func (d *PeerDialer) ProxyAddress() string {
	if !d.config.Enabled {
		return ""
	}
	return net.JoinHostPort(d.config.Host, strconv.Itoa(d.config.Port))
}
