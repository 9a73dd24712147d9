// Package transport keeps one persistent websocket connection to the
// coordination server and turns its frames into bus events.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/groovify/beatsync/internal/protocol"
)

var (
	ErrNotConnected    = errors.New("not connected to server")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

type Client struct {
	dialer     *websocket.Dialer
	bus        *Bus
	logger     zerolog.Logger
	newBackoff func() backoff.BackOff

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("component", "transport").Logger() }
}

func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithBackoff sets the reconnect policy. The factory is called once per outage.
func WithBackoff(f func() backoff.BackOff) Option { return func(c *Client) { c.newBackoff = f } }

func New(opts ...Option) *Client {
	c := &Client{
		dialer: websocket.DefaultDialer,
		bus:    NewBus(),
		logger: zerolog.Nop(),
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WebsocketURL maps an http(s) or ws(s) server base to its websocket endpoint.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	return u.String(), nil
}

// Subscribe registers h for eventType, including the connect and
// disconnect lifecycle events.
func (c *Client) Subscribe(eventType string, h Handler) (unsubscribe func()) {
	return c.bus.Subscribe(eventType, h)
}

// Connect starts the connection manager for endpoint. It returns
// immediately; a connect event is published once the socket is open and
// the manager reconnects on its own after a drop. Calling Connect while
// the manager runs is a no-op.
func (c *Client) Connect(endpoint string) error {
	wsURL, err := WebsocketURL(endpoint)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, wsURL, c.done)
	return nil
}

// Disconnect closes the connection and stops reconnecting. It returns after
// the manager, its reader and its ping ticker have exited.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done = nil, nil
	if cancel != nil {
		cancel()
	}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	<-done
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one event. It fails with ErrNotConnected when no socket is open.
func (c *Client) Send(eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("failed to send %s: %w", eventType, ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(protocol.Envelope{Type: eventType, Payload: body}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}

	c.logger.Debug().Str("event", eventType).RawJSON("payload", body).Msg("sent")
	return nil
}

func (c *Client) run(ctx context.Context, wsURL string, done chan struct{}) {
	defer close(done)

	b := backoff.WithContext(c.newBackoff(), ctx)
	for {
		conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				c.logger.Error().Err(err).Msg("giving up on server connection")
				return
			}
			c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("failed to connect")
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		b.Reset()

		c.serve(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info().Str("url", conn.RemoteAddr().String()).Msg("connected to server")
	c.bus.Publish(Event{Type: protocol.EventConnect})

	pingDone := make(chan struct{})
	stopPing := make(chan struct{})
	go c.pingLoop(conn, stopPing, pingDone)

	err := c.readLoop(conn)

	close(stopPing)
	<-pingDone

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	if ctx.Err() == nil {
		c.logger.Warn().Err(err).Msg("disconnected from server")
	} else {
		c.logger.Info().Msg("disconnected from server")
	}
	c.bus.Publish(Event{Type: protocol.EventDisconnect})
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		if env.Type == "" || env.Type == protocol.EventConnect || env.Type == protocol.EventDisconnect {
			c.logger.Warn().Str("event", env.Type).Msg("ignoring reserved or empty event type")
			continue
		}

		c.logger.Debug().Str("event", env.Type).Msg("received")
		c.bus.Publish(Event{Type: env.Type, Payload: env.Payload})
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
