package model

import (
	"time"

	"github.com/google/uuid"
)

// Condition is the direction of a price alert.
type Condition string

const (
	// ConditionAbove triggers when the price rises to or above the target.
	ConditionAbove Condition = "above"

	// ConditionBelow triggers when the price falls to or below the target.
	ConditionBelow Condition = "below"
)

// Valid reports whether the condition is one of the known directions.
func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// PriceTick is a single trade event for one ticker. Immutable once constructed.
type PriceTick struct {
	Ticker     string    `json:"ticker"`     // Uppercase symbol (e.g., "AAPL")
	Price      float64   `json:"price"`      // Trade price in dollars
	Size       int64     `json:"size"`       // Number of shares
	ExchangeTS int64     `json:"timestamp"`  // Feed timestamp (ms since epoch)
	ReceivedAt time.Time `json:"updated_at"` // Local timestamp when the frame was read
}

// Alert is a user-defined price threshold. Created by the CRUD layer,
// transitioned to inactive exactly once by the alert checker.
type Alert struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Ticker         string
	TargetPrice    float64
	Condition      Condition
	IsActive       bool
	TriggeredAt    *time.Time
	NotifyChannels []string // e.g., "sms", "email"
	CreatedAt      time.Time
}

// ConditionMet reports whether the given price satisfies the alert condition.
func (a *Alert) ConditionMet(price float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return price >= a.TargetPrice
	case ConditionBelow:
		return price <= a.TargetPrice
	}
	return false
}

// AlertTriggered is the event pushed to downstream clients when an alert fires.
type AlertTriggered struct {
	AlertID      string  `json:"alert_id"`
	Ticker       string  `json:"ticker"`
	Condition    string  `json:"condition"`
	TargetPrice  float64 `json:"target_price"`
	CurrentPrice float64 `json:"current_price"`
	TriggeredAt  string  `json:"triggered_at"` // RFC 3339
	UserID       string  `json:"user_id"`
}

// NewAlertTriggered builds the broadcast event for a fired alert.
func NewAlertTriggered(a *Alert, tick PriceTick, at time.Time) AlertTriggered {
	return AlertTriggered{
		AlertID:      a.ID.String(),
		Ticker:       a.Ticker,
		Condition:    string(a.Condition),
		TargetPrice:  a.TargetPrice,
		CurrentPrice: tick.Price,
		TriggeredAt:  at.UTC().Format(time.RFC3339),
		UserID:       a.UserID.String(),
	}
}
