package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"
)

// Config describes how to reach the chat server.
type Config struct {
	// Address is host:port for a raw TLS stream, or a wss:// URL to tunnel
	// the stream through WebSocket binary messages.
	Address string
	// ServerName overrides the name checked against the certificate.
	ServerName string
	// InsecureSkipVerify accepts any server certificate. Chat servers are
	// usually deployed with self-signed certificates.
	InsecureSkipVerify bool
	// RootCAs verifies the server certificate; nil means the system pool.
	RootCAs *x509.CertPool
	// DialTimeout bounds connection setup including the TLS handshake.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func (c Config) tlsConfig(host string) *tls.Config {
	serverName := c.ServerName
	if serverName == "" {
		serverName = host
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: c.InsecureSkipVerify,
		RootCAs:            c.RootCAs,
		MinVersion:         tls.VersionTLS12,
	}
}

// IsWebSocket reports whether address selects the WebSocket transport.
func IsWebSocket(address string) bool {
	return strings.HasPrefix(address, "wss://")
}

// Dial connects to the chat server and completes the TLS handshake.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if IsWebSocket(cfg.Address) {
		u, err := url.Parse(cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid server address %q: %w", cfg.Address, err)
		}
		s, err := dialWebSocket(ctx, cfg.Address, cfg.tlsConfig(u.Hostname()), timeout)
		if err != nil {
			return nil, &Error{Op: "dial", Err: err}
		}
		logger.Info("connected", "address", cfg.Address, "transport", "wss")
		return newSession(s, logger), nil
	}

	host, _, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", cfg.Address, err)
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    cfg.tlsConfig(host),
	}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, &Error{Op: "dial", Err: err}
	}
	logger.Info("connected", "address", cfg.Address, "transport", "tls")
	return newSession(newConnStream(conn), logger), nil
}
