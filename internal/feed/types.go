package feed

import (
	"errors"
	"time"

	"github.com/tballes8/northwest-creek/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAuthRejected    = errors.New("feed authentication rejected")
	ErrAuthTimeout     = errors.New("timed out waiting for auth response")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the feed
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// controlFrame is an outbound command to the feed.
// The feed expects {"action":"auth","params":"<key>"} and
// {"action":"subscribe","params":"T.AAPL,T.MSFT"}.
type controlFrame struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// eventFrame is a single inbound event. The feed delivers JSON arrays of
// these, discriminated by "ev": "T" for trades, "status" for control acks.
type eventFrame struct {
	Ev        string  `json:"ev"`
	Sym       string  `json:"sym"`
	Price     float64 `json:"p"`
	Size      int64   `json:"s"`
	Timestamp int64   `json:"t"` // ms since epoch

	// status events
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	eventTypeTrade  = "T"
	eventTypeStatus = "status"

	statusAuthSuccess = "auth_success"
	statusAuthFailed  = "auth_failed"
)

// TickSink receives ticks from the feed manager. Push must not block;
// implementations drop rather than stall the read loop.
type TickSink interface {
	Push(tick model.PriceTick) bool
}

// ClientConfig configures a single feed connection.
type ClientConfig struct {
	URL          string        // WebSocket URL
	APIKey       string        // Feed API key sent in the auth frame
	AuthTimeout  time.Duration // Max time to wait for the auth ack
	ReadTimeout  time.Duration // Max silence before sending a ping
	PongTimeout  time.Duration // Max wait for a pong after a ping
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		AuthTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		PongTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// ManagerConfig configures the feed manager.
type ManagerConfig struct {
	URL                string
	APIKey             string
	ReconnectBaseDelay time.Duration // Base wait before a reconnect attempt
	ReconnectMaxDelay  time.Duration // Cap for the exponential backoff
	ReadTimeout        time.Duration
	PongTimeout        time.Duration
	WriteTimeout       time.Duration
	BufferSize         int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		ReadTimeout:        30 * time.Second,
		PongTimeout:        10 * time.Second,
		WriteTimeout:       5 * time.Second,
		BufferSize:         4096,
	}
}

func (c ManagerConfig) clientConfig() ClientConfig {
	return ClientConfig{
		URL:          c.URL,
		APIKey:       c.APIKey,
		AuthTimeout:  10 * time.Second,
		ReadTimeout:  c.ReadTimeout,
		PongTimeout:  c.PongTimeout,
		WriteTimeout: c.WriteTimeout,
		BufferSize:   c.BufferSize,
	}
}
