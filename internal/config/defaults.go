package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL            = "wss://socket.massive.com/stocks"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultPongTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultQueueSize          = 4096
	DefaultServerPort         = 8080
	DefaultClientSendBuffer   = 256
	DefaultClientWriteTimeout = 5 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultRedisKey           = "prices:latest"
	DefaultRedisTTL           = 24 * time.Hour
	DefaultThrottleWindow     = 15 * time.Second
	DefaultNotifyTimeout      = 10 * time.Second
)

func (c *StreamerConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = DefaultReadTimeout
	}
	if c.Feed.PongTimeout == 0 {
		c.Feed.PongTimeout = DefaultPongTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.QueueSize == 0 {
		c.Feed.QueueSize = DefaultQueueSize
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ClientSendBuffer == 0 {
		c.Server.ClientSendBuffer = DefaultClientSendBuffer
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultClientWriteTimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Redis defaults. An empty addr disables the mirror entirely.
	if c.Redis.Key == "" {
		c.Redis.Key = DefaultRedisKey
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultRedisTTL
	}

	// Alerts defaults
	if c.Alerts.ThrottleWindow == 0 {
		c.Alerts.ThrottleWindow = DefaultThrottleWindow
	}

	// Notify defaults
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = DefaultNotifyTimeout
	}
}
