package hub

import "time"

// Client → server actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Server → client message types.
const (
	TypePriceCache     = "price_cache"
	TypePriceUpdate    = "price_update"
	TypeAlertTriggered = "alert_triggered"
	TypePong           = "pong"
)

// Wildcard subscribes a client to the unfiltered firehose.
const Wildcard = "*"

// clientRequest is an inbound JSON frame from a downstream client.
type clientRequest struct {
	Action  string   `json:"action"`
	Tickers []string `json:"tickers,omitempty"`
}

// serverMessage is an outbound JSON frame to a downstream client.
type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Config configures the hub.
type Config struct {
	SendBuffer   int           // Per-client outbound queue length
	WriteTimeout time.Duration // Per-write deadline; a missed deadline drops the client
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   256,
		WriteTimeout: 5 * time.Second,
	}
}
