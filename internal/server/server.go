// Package server implements a chat room server for the fixed-layout packet
// protocol. One TLS port accepts raw packet streams and WebSocket clients.
package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Config configures a Server.
type Config struct {
	Address   string
	TLSConfig *tls.Config
	Limits    Limits
	// AdminUsername and AdminPassword seed an administrator account when
	// both are set.
	AdminUsername string
	AdminPassword string
	Logger        *slog.Logger
}

// Server is a TLS chat room server.
type Server struct {
	config   Config
	hub      *Hub
	logger   *slog.Logger
	listener net.Listener
	conns    map[net.Conn]struct{}
	mu       sync.Mutex
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Server instance
func New(config Config) (*Server, error) {
	if config.TLSConfig == nil || len(config.TLSConfig.Certificates) == 0 {
		return nil, errors.New("server requires a TLS certificate")
	}
	config.Limits = config.Limits.withDefaults()
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	hub := NewHub(config.Limits)
	if config.AdminUsername != "" && config.AdminPassword != "" {
		if err := hub.AddAccount(config.AdminUsername, config.AdminPassword, true); err != nil {
			return nil, err
		}
	}

	return &Server{
		config: config,
		hub:    hub,
		logger: config.Logger,
		conns:  make(map[net.Conn]struct{}),
		quit:   make(chan struct{}),
	}, nil
}

// Hub returns the server's shared state.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := tls.Listen("tcp", s.config.Address, s.config.TLSConfig)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.logger.Info("server listening", "address", listener.Addr().String())
	return nil
}

// Serve accepts connections until Stop is called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("failed to accept connection", "error", err)
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop closes the listener and every client connection, then waits for
// their handlers to finish.
func (s *Server) Stop() {
	select {
	case <-s.quit:
		return
	default:
		close(s.quit)
	}

	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleConnection detects the client protocol and runs its session.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	proto, reader, err := detectProtocol(conn)
	if err != nil {
		s.logger.Debug("connection closed before first packet", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	var c Connection
	if proto == protocolWebSocket {
		wc, err := UpgradeWebSocket(conn, reader)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
		c = wc
	} else {
		c = NewRawConnection(conn, reader)
	}

	s.logger.Info("client connected", "remote", conn.RemoteAddr().String(), "protocol", proto.String())
	s.serveSession(c)
}
