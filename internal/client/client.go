// Package client implements the chat room client engine: the request and
// response exchange for every command, and a background watcher that
// delivers room broadcasts and notices a dead connection.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/chatroom/internal/session"
	"github.com/omochice/chatroom/internal/transport"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultChunkTimeout   = 500 * time.Millisecond
	DefaultPollInterval   = time.Second
)

// Options configures a Client.
type Options struct {
	Logger *slog.Logger

	// OnChatMessage receives each chat line in arrival order, including the
	// history returned by Join. It is never called with the lock held.
	OnChatMessage func(line string)
	// OnDisconnected is called once when the connection is lost without the
	// caller asking for it.
	OnDisconnected func(reason string)

	// RequestTimeout bounds a fixed-size reply and the first chunk of an
	// accumulated one.
	RequestTimeout time.Duration
	// ChunkTimeout ends an accumulated reply once no more bytes arrive.
	ChunkTimeout time.Duration
	// PollInterval is how long the watcher waits for data per iteration.
	PollInterval time.Duration
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = DefaultChunkTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
}

// Client is a connected chat session. Operations are meant to be issued
// one at a time by a single caller; the watcher goroutine shares the
// connection through mu.
type Client struct {
	opts   Options
	logger *slog.Logger

	// mu serializes all I/O on conn and guards state. Whoever holds it
	// leaves conn in blocking mode on release.
	mu    sync.Mutex
	conn  *transport.Session
	state session.State

	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	closing   atomic.Bool
	lostOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the chat server and starts the watcher.
func Dial(ctx context.Context, cfg transport.Config, opts Options) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = opts.Logger
	}
	conn, err := transport.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return New(conn, opts), nil
}

// New starts a client over an established transport session.
func New(conn *transport.Session, opts Options) *Client {
	opts.setDefaults()
	c := &Client{
		opts:   opts,
		logger: opts.Logger,
		conn:   conn,
		done:   make(chan struct{}),
	}
	c.state.Connect()
	conn.SetMode(transport.Blocking)

	c.wg.Add(1)
	go c.watch()

	return c
}

// Snapshot returns a copy of the session state.
func (c *Client) Snapshot() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Phase returns the current session phase.
func (c *Client) Phase() session.Phase {
	return c.Snapshot().Phase
}

// Quit stops the watcher, tells the server the session is over and closes
// the connection. It is safe to call more than once.
func (c *Client) Quit() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.stopWatcher()
		c.wg.Wait()

		if c.Phase() != session.Disconnected {
			if err := c.quit(); err != nil {
				c.logger.Debug("quit not acknowledged", "error", err)
				c.closeErr = err
			}
		}

		c.mu.Lock()
		c.state.Disconnect()
		c.mu.Unlock()

		if err := c.conn.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.logger.Info("session closed")
	})
	return c.closeErr
}

// Close implements io.Closer by calling Quit.
func (c *Client) Close() error {
	return c.Quit()
}

func (c *Client) stopWatcher() {
	c.stopOnce.Do(func() { close(c.done) })
}

// disconnectLocked moves to Disconnected after a transport failure and
// returns the reason to report once the lock is released.
func (c *Client) disconnectLocked(cause error) string {
	c.state.Disconnect()
	c.stopWatcher()
	c.conn.Close()
	c.logger.Error("connection lost", "error", cause)
	return cause.Error()
}

func (c *Client) notifyDisconnected(reason string) {
	if reason == "" || c.closing.Load() {
		return
	}
	c.lostOnce.Do(func() {
		if c.opts.OnDisconnected != nil {
			c.opts.OnDisconnected(reason)
		}
	})
}

func (c *Client) notifyChat(lines []string) {
	if c.opts.OnChatMessage == nil {
		return
	}
	for _, line := range lines {
		c.opts.OnChatMessage(line)
	}
}
