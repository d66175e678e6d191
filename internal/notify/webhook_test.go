package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tballes8/northwest-creek/internal/model"
)

func testAlert() model.Alert {
	return model.Alert{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Ticker:      "AAPL",
		TargetPrice: 200.00,
		Condition:   model.ConditionAbove,
		IsActive:    true,
	}
}

func testTick() model.PriceTick {
	return model.PriceTick{
		Ticker:     "AAPL",
		Price:      201.50,
		Size:       100,
		ExchangeTS: time.Now().UnixMilli(),
		ReceivedAt: time.Now(),
	}
}

func TestWebhook_NotifyPostsPayload(t *testing.T) {
	var got payload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alert := testAlert()
	wh := NewWebhook("sms", srv.URL)
	if err := wh.Notify(context.Background(), alert, testTick()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	if got.AlertID != alert.ID.String() {
		t.Errorf("alert_id = %q, want %q", got.AlertID, alert.ID)
	}
	if got.Ticker != "AAPL" || got.Condition != "above" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.TargetPrice != 200.00 || got.CurrentPrice != 201.50 {
		t.Errorf("prices = %v/%v", got.TargetPrice, got.CurrentPrice)
	}
	if got.Message == "" {
		t.Error("empty message")
	}
}

func TestWebhook_NotifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	wh := NewWebhook("email", srv.URL)
	err := wh.Notify(context.Background(), testAlert(), testTick())
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	var whErr *WebhookError
	if !errors.As(err, &whErr) {
		t.Fatalf("expected *WebhookError, got %T", err)
	}
	if whErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", whErr.StatusCode)
	}
	if whErr.Channel != "email" {
		t.Errorf("channel = %q", whErr.Channel)
	}
}

func TestWebhook_NotifyRespectsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	wh := NewWebhook("sms", srv.URL)
	if err := wh.Notify(ctx, testAlert(), testTick()); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestWebhook_NotifyConnectionError(t *testing.T) {
	// Point at a closed server.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	wh := NewWebhook("sms", url, WithTimeout(time.Second))
	if err := wh.Notify(context.Background(), testAlert(), testTick()); err == nil {
		t.Fatal("expected transport error")
	}
}
