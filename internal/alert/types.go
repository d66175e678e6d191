package alert

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tballes8/northwest-creek/internal/model"
)

// ErrNotActive is returned by a Store when the alert was already triggered
// or deactivated, so the conditional update matched no row.
var ErrNotActive = errors.New("alert is no longer active")

// Store is the alert persistence collaborator.
type Store interface {
	// LoadActive returns all active, untriggered alerts.
	LoadActive(ctx context.Context) ([]model.Alert, error)

	// MarkTriggered atomically transitions an alert to
	// isActive=false, triggeredAt=at, conditional on it still being
	// active. Returns ErrNotActive when the condition did not hold.
	MarkTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Notifier delivers a trigger notification over one channel (SMS, email).
type Notifier interface {
	// Channel is the name alerts reference in their notify channel list.
	Channel() string

	// Notify delivers the notification. Failures are logged by the
	// caller, never retried inline.
	Notify(ctx context.Context, alert model.Alert, tick model.PriceTick) error
}

// EventSink receives the alert_triggered broadcast.
type EventSink interface {
	BroadcastAlert(ev model.AlertTriggered)
}

// Interest is notified when the set of tickers with active alerts changes.
type Interest interface {
	OnAlertSetChanged(added, removed []string)
}

// Config configures the checker.
type Config struct {
	ThrottleWindow time.Duration // Min gap between evaluations per ticker
	TriggerTimeout time.Duration // Deadline for the store update and each notifier call
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ThrottleWindow: 15 * time.Second,
		TriggerTimeout: 10 * time.Second,
	}
}
