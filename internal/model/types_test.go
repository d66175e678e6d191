package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAlert_ConditionMet(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		target    float64
		price     float64
		want      bool
	}{
		{"above not reached", ConditionAbove, 200.00, 199.99, false},
		{"above crossed", ConditionAbove, 200.00, 200.01, true},
		{"above exact", ConditionAbove, 200.00, 200.00, true},
		{"below not reached", ConditionBelow, 100.00, 100.01, false},
		{"below crossed", ConditionBelow, 100.00, 99.99, true},
		{"below exact", ConditionBelow, 100.00, 100.00, true},
		{"unknown condition", Condition("between"), 100.00, 100.00, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Alert{Ticker: "AAPL", TargetPrice: tt.target, Condition: tt.condition}
			if got := a.ConditionMet(tt.price); got != tt.want {
				t.Errorf("ConditionMet(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestCondition_Valid(t *testing.T) {
	if !ConditionAbove.Valid() || !ConditionBelow.Valid() {
		t.Error("expected above/below to be valid")
	}
	if Condition("sideways").Valid() {
		t.Error("expected unknown condition to be invalid")
	}
}

func TestPriceTick_JSON(t *testing.T) {
	tick := PriceTick{
		Ticker:     "MSFT",
		Price:      421.55,
		Size:       100,
		ExchangeTS: 1705321845000,
		ReceivedAt: time.Date(2026, 2, 6, 14, 30, 15, 0, time.UTC),
	}

	data, err := json.Marshal(tick)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{"ticker", "price", "size", "timestamp", "updated_at"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing wire field %q", key)
		}
	}
}

func TestNewAlertTriggered(t *testing.T) {
	alertID := uuid.New()
	userID := uuid.New()
	at := time.Date(2026, 2, 6, 15, 0, 0, 0, time.UTC)

	a := Alert{
		ID:          alertID,
		UserID:      userID,
		Ticker:      "AAPL",
		TargetPrice: 200.00,
		Condition:   ConditionAbove,
	}
	tick := PriceTick{Ticker: "AAPL", Price: 200.01}

	ev := NewAlertTriggered(&a, tick, at)

	if ev.AlertID != alertID.String() {
		t.Errorf("AlertID = %s, want %s", ev.AlertID, alertID)
	}
	if ev.UserID != userID.String() {
		t.Errorf("UserID = %s, want %s", ev.UserID, userID)
	}
	if ev.CurrentPrice != 200.01 {
		t.Errorf("CurrentPrice = %v, want 200.01", ev.CurrentPrice)
	}
	if ev.TriggeredAt != "2026-02-06T15:00:00Z" {
		t.Errorf("TriggeredAt = %s, want RFC3339 UTC", ev.TriggeredAt)
	}
}
