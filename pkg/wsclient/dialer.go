// Package wsclient is a reconnecting WebSocket client for the event
// stream. It dials with a JWT, hands every text frame to a callback,
// and retries dropped connections with exponential backoff up to a
// retry ceiling.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrRetriesExhausted is returned when the client gives up reconnecting
var ErrRetriesExhausted = errors.New("websocket retries exhausted")

// Config tunes the client
type Config struct {
	// URL is the ws:// or wss:// endpoint
	URL string
	// Token is the JWT presented as a Bearer header
	Token string
	// MaxRetries caps consecutive failed connection attempts. Zero means
	// the default.
	MaxRetries int
	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// HandshakeTimeout bounds the dial
	HandshakeTimeout time.Duration
}

const (
	defaultMaxRetries       = 5
	defaultInitialBackoff   = time.Second
	defaultMaxBackoff       = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxRetries <= 0 {
		out.MaxRetries = defaultMaxRetries
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = defaultInitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = defaultMaxBackoff
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = defaultHandshakeTimeout
	}
	return out
}

// MessageHandler receives every text frame from the server
type MessageHandler func(data []byte)

// Client maintains one logical connection, transparently reconnecting
// across drops
type Client struct {
	config  Config
	handler MessageHandler
	logger  *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a client. The handler may be nil if the caller only sends.
func New(config Config, handler MessageHandler, logger *zap.Logger) *Client {
	return &Client{
		config:  config.withDefaults(),
		handler: handler,
		logger:  logger,
	}
}

// Run connects and pumps messages until ctx is cancelled or the retry
// budget is spent. Each successful connection resets the budget.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	backoff := c.config.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			if attempt >= c.config.MaxRetries {
				return fmt.Errorf("%w: last error: %v", ErrRetriesExhausted, err)
			}

			c.logger.Warn("websocket dial failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = min(backoff*2, c.config.MaxBackoff)
			continue
		}

		attempt = 0
		backoff = c.config.InitialBackoff

		err = c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Info("websocket connection lost, reconnecting", zap.Error(err))
	}
}

// Send writes one text frame on the current connection
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errors.New("not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}

	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.config.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.config.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType == websocket.TextMessage && c.handler != nil {
			c.handler(data)
		}
	}
}
