package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single authenticated WebSocket connection to the market-data feed.
type Client interface {
	// Connect dials the feed and performs the auth handshake. A rejected
	// key fails with ErrAuthRejected.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns a channel of all raw data frames received after auth.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu          sync.RWMutex
	connected   bool
	closed      bool
	lastFrameAt time.Time
	pingSentAt  time.Time // zero when no ping is outstanding
}

// NewClient creates a new feed client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the feed and authenticates.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastFrameAt = time.Now()
	c.pingSentAt = time.Time{}
	c.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastFrameAt = time.Now()
		c.pingSentAt = time.Time{}
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("feed connected", "url", c.cfg.URL)

	return nil
}

// authenticate sends the auth frame and waits for the acknowledgment.
// The feed replies with status events; "connected" frames before the auth
// result are skipped.
func (c *client) authenticate(conn *websocket.Conn) error {
	auth, _ := json.Marshal(controlFrame{Action: "auth", Params: c.cfg.APIKey})

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	deadline := time.Now().Add(c.cfg.AuthTimeout)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read auth response: %w", err)
		}

		for _, ev := range parseEventFrames(data) {
			if ev.Ev != eventTypeStatus {
				continue
			}
			switch ev.Status {
			case statusAuthSuccess:
				conn.SetReadDeadline(time.Time{})
				return nil
			case statusAuthFailed:
				return fmt.Errorf("%w: %s", ErrAuthRejected, ev.Message)
			}
		}
	}

	return ErrAuthTimeout
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames and forwards them to the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		c.mu.Lock()
		c.lastFrameAt = receivedAt
		c.mu.Unlock()

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("feed message buffer full, dropping frame")
		}
	}
}

// heartbeatLoop pings the feed after ReadTimeout of silence and forces a
// reconnect when no pong arrives within PongTimeout.
func (c *client) heartbeatLoop() {
	interval := c.cfg.ReadTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			lastFrame := c.lastFrameAt
			pingSent := c.pingSentAt
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			if !pingSent.IsZero() {
				if time.Since(pingSent) > c.cfg.PongTimeout {
					c.logger.Warn("no pong from feed, connection stale",
						"last_frame", lastFrame,
						"pong_timeout", c.cfg.PongTimeout,
					)
					select {
					case c.errors <- ErrStaleConnection:
					default:
					}
					return
				}
				continue
			}

			if time.Since(lastFrame) < c.cfg.ReadTimeout {
				continue
			}

			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				continue
			}

			c.mu.Lock()
			c.pingSentAt = time.Now()
			c.mu.Unlock()
		}
	}
}

// parseEventFrames decodes a frame that may carry an array of events or a
// single event object.
func parseEventFrames(data []byte) []eventFrame {
	var events []eventFrame
	if err := json.Unmarshal(data, &events); err == nil {
		return events
	}

	var single eventFrame
	if err := json.Unmarshal(data, &single); err == nil && single.Ev != "" {
		return []eventFrame{single}
	}

	return nil
}
