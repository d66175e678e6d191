package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tballes8/northwest-creek/internal/model"
)

// WebhookError represents a non-2xx response from a notification webhook.
type WebhookError struct {
	Channel    string
	StatusCode int
	Body       []byte
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("%s webhook error %d: %s", e.Channel, e.StatusCode, http.StatusText(e.StatusCode))
}

// payload is the JSON body posted to a notification webhook.
type payload struct {
	AlertID      string  `json:"alert_id"`
	UserID       string  `json:"user_id"`
	Ticker       string  `json:"ticker"`
	Condition    string  `json:"condition"`
	TargetPrice  float64 `json:"target_price"`
	CurrentPrice float64 `json:"current_price"`
	Message      string  `json:"message"`
}

// Webhook delivers alert notifications by POSTing JSON to an HTTP
// endpoint. One instance serves one channel (sms, email).
type Webhook struct {
	channel    string
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) {
		w.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Webhook) {
		w.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(w *Webhook) {
		w.httpClient = hc
	}
}

// NewWebhook creates a notifier for the given channel and endpoint.
func NewWebhook(channel, url string, opts ...Option) *Webhook {
	w := &Webhook{
		channel: channel,
		url:     url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Channel returns the notification channel this webhook serves.
func (w *Webhook) Channel() string { return w.channel }

// Notify posts the trigger notification. It returns an error for
// transport failures and non-2xx responses; the caller decides what to
// do with it.
func (w *Webhook) Notify(ctx context.Context, alert model.Alert, tick model.PriceTick) error {
	body, err := json.Marshal(payload{
		AlertID:      alert.ID.String(),
		UserID:       alert.UserID.String(),
		Ticker:       alert.Ticker,
		Condition:    string(alert.Condition),
		TargetPrice:  alert.TargetPrice,
		CurrentPrice: tick.Price,
		Message: fmt.Sprintf("%s is %s your target of $%.2f (now $%.2f)",
			alert.Ticker, string(alert.Condition), alert.TargetPrice, tick.Price),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &WebhookError{
			Channel:    w.channel,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	w.logger.Debug("notification delivered",
		"channel", w.channel,
		"alert_id", alert.ID,
		"ticker", alert.Ticker,
	)
	return nil
}
