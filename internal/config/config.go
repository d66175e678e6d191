package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Server   ServerConfig   `yaml:"server"`
	Database DBConfig       `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds upstream market-data feed settings.
type FeedConfig struct {
	URL                string        `yaml:"url"`
	APIKey             string        `yaml:"api_key"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReadTimeout        time.Duration `yaml:"read_timeout"` // No frame for this long triggers a ping
	PongTimeout        time.Duration `yaml:"pong_timeout"` // No pong after a ping forces reconnect
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	QueueSize          int           `yaml:"queue_size"` // Per-consumer tick queue capacity
}

// ServerConfig holds the downstream WebSocket/HTTP server settings.
type ServerConfig struct {
	Port             int           `yaml:"port"`
	ClientSendBuffer int           `yaml:"client_send_buffer"` // Per-client outbound queue
	WriteTimeout     time.Duration `yaml:"write_timeout"`      // Client write deadline
}

// DBConfig holds the alert store database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the latest-price mirror settings. An empty addr
// disables the mirror.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"` // Hash key for latest prices
	TTL      time.Duration `yaml:"ttl"` // Hash expiry, refreshed on write
}

// AlertsConfig holds alert checker settings.
type AlertsConfig struct {
	ThrottleWindow time.Duration `yaml:"throttle_window"` // Min gap between evaluations per ticker
}

// NotifyConfig holds outbound notification channel settings.
// Each webhook is a collaborator endpoint; empty URL disables the channel.
type NotifyConfig struct {
	SMSWebhookURL   string        `yaml:"sms_webhook_url"`
	EmailWebhookURL string        `yaml:"email_webhook_url"`
	Timeout         time.Duration `yaml:"timeout"`
}
