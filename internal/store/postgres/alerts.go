package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tballes8/northwest-creek/internal/alert"
	"github.com/tballes8/northwest-creek/internal/model"
)

// AlertStore persists price alerts in the price_alerts table.
type AlertStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewAlertStore creates an alert store backed by the given pool.
func NewAlertStore(db *pgxpool.Pool, logger *slog.Logger) *AlertStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertStore{
		db:     db,
		logger: logger.With("component", "alert_store"),
	}
}

// LoadActive returns every active, untriggered alert.
func (s *AlertStore) LoadActive(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, ticker, target_price, condition, is_active,
		       triggered_at, notify_channels, created_at
		FROM price_alerts
		WHERE is_active = true AND triggered_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Ticker, &a.TargetPrice, &a.Condition,
			&a.IsActive, &a.TriggeredAt, &a.NotifyChannels, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}

	return alerts, nil
}

// MarkTriggered flips an alert to triggered, conditional on it still
// being active and untriggered. Exactly one caller can win; everyone
// else gets alert.ErrNotActive.
func (s *AlertStore) MarkTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE price_alerts
		SET is_active = false, triggered_at = $2
		WHERE id = $1 AND is_active = true AND triggered_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark alert triggered: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return alert.ErrNotActive
	}
	return nil
}

// GetAlert fetches one alert by ID, for registration of newly created
// alerts.
func (s *AlertStore) GetAlert(ctx context.Context, id uuid.UUID) (model.Alert, error) {
	var a model.Alert
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, ticker, target_price, condition, is_active,
		       triggered_at, notify_channels, created_at
		FROM price_alerts
		WHERE id = $1
	`, id).Scan(
		&a.ID, &a.UserID, &a.Ticker, &a.TargetPrice, &a.Condition,
		&a.IsActive, &a.TriggeredAt, &a.NotifyChannels, &a.CreatedAt,
	)
	if err != nil {
		return model.Alert{}, fmt.Errorf("get alert %s: %w", id, err)
	}
	return a, nil
}
