package hub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tballes8/northwest-creek/internal/model"
	"github.com/tballes8/northwest-creek/internal/pricecache"
)

// fakeCoordinator records interest notifications.
type fakeCoordinator struct {
	mu      sync.Mutex
	changes map[string][]string
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{changes: make(map[string][]string)}
}

func (f *fakeCoordinator) OnClientInterestChanged(connID string, tickers []string) {
	f.mu.Lock()
	f.changes[connID] = tickers
	f.mu.Unlock()
}

func (f *fakeCoordinator) interest(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changes[connID]
}

func (f *fakeCoordinator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.changes)
}

type testEnv struct {
	hub    *Hub
	cache  *pricecache.Cache
	coord  *fakeCoordinator
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cache := pricecache.New()
	coord := newFakeCoordinator()
	h := New(DefaultConfig(), cache, coord, nil)
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &testEnv{hub: h, cache: cache, coord: coord, server: server}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) serverMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg serverMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for h.Size() != n {
		select {
		case <-deadline:
			t.Fatalf("Size = %d, want %d", h.Size(), n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func tick(ticker string, price float64) model.PriceTick {
	return model.PriceTick{Ticker: ticker, Price: price, Size: 10, ReceivedAt: time.Now()}
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	env := newTestEnv(t)
	env.cache.Update(tick("AAPL", 199.99))
	env.cache.Update(tick("MSFT", 420.00))

	ws := env.dial(t)

	msg := readMessage(t, ws)
	if msg.Type != TypePriceCache {
		t.Fatalf("first message type = %q, want %q", msg.Type, TypePriceCache)
	}

	raw, _ := json.Marshal(msg.Data)
	var ticks []model.PriceTick
	if err := json.Unmarshal(raw, &ticks); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if len(ticks) != 2 {
		t.Errorf("snapshot len = %d, want 2", len(ticks))
	}
}

func TestHub_BroadcastFiltersByInterest(t *testing.T) {
	env := newTestEnv(t)

	aaplClient := env.dial(t)
	msftClient := env.dial(t)
	waitForClients(t, env.hub, 2)

	aaplClient.WriteJSON(clientRequest{Action: ActionSubscribe, Tickers: []string{"AAPL"}})
	msftClient.WriteJSON(clientRequest{Action: ActionSubscribe, Tickers: []string{"MSFT"}})

	// Wait until both interest changes landed.
	deadline := time.After(2 * time.Second)
	for {
		if env.hub.Size() == 2 && env.coord.count() >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("interest changes not registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	env.hub.Broadcast(tick("AAPL", 200.01))

	msg := readMessage(t, aaplClient)
	if msg.Type != TypePriceUpdate {
		t.Fatalf("message type = %q, want price_update", msg.Type)
	}

	// The MSFT client must not receive the AAPL tick.
	msftClient.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := msftClient.ReadJSON(&serverMessage{}); err == nil {
		t.Error("MSFT client unexpectedly received AAPL tick")
	}
}

func TestHub_WildcardReceivesAll(t *testing.T) {
	env := newTestEnv(t)

	ws := env.dial(t)
	waitForClients(t, env.hub, 1)
	ws.WriteJSON(clientRequest{Action: ActionSubscribe, Tickers: []string{Wildcard}})
	time.Sleep(50 * time.Millisecond)

	env.hub.Broadcast(tick("NVDA", 900.00))

	msg := readMessage(t, ws)
	if msg.Type != TypePriceUpdate {
		t.Errorf("message type = %q, want price_update", msg.Type)
	}
}

func TestHub_PingPong(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t)

	ws.WriteJSON(clientRequest{Action: ActionPing})

	msg := readMessage(t, ws)
	if msg.Type != TypePong {
		t.Errorf("message type = %q, want pong", msg.Type)
	}
}

func TestHub_DeadClientDoesNotBlockHealthyOne(t *testing.T) {
	env := newTestEnv(t)

	deadClient := env.dial(t)
	healthyClient := env.dial(t)
	waitForClients(t, env.hub, 2)

	deadClient.WriteJSON(clientRequest{Action: ActionSubscribe, Tickers: []string{"AAPL"}})
	healthyClient.WriteJSON(clientRequest{Action: ActionSubscribe, Tickers: []string{"AAPL"}})
	time.Sleep(50 * time.Millisecond)

	// Kill the first client's socket without telling the hub.
	deadClient.Close()

	for i := 0; i < 5; i++ {
		env.hub.Broadcast(tick("AAPL", 200.00+float64(i)))
	}

	// The healthy client still receives every tick.
	for i := 0; i < 5; i++ {
		msg := readMessage(t, healthyClient)
		if msg.Type != TypePriceUpdate {
			t.Fatalf("message %d type = %q, want price_update", i, msg.Type)
		}
	}
}

func TestHub_RemoveClientIdempotentAndNotifiesCoordinator(t *testing.T) {
	env := newTestEnv(t)

	ws := env.dial(t)
	waitForClients(t, env.hub, 1)
	ws.WriteJSON(clientRequest{Action: ActionSubscribe, Tickers: []string{"AAPL"}})
	time.Sleep(50 * time.Millisecond)

	var connID string
	env.coord.mu.Lock()
	for id := range env.coord.changes {
		connID = id
	}
	env.coord.mu.Unlock()
	if connID == "" {
		t.Fatal("no interest change recorded")
	}

	ws.Close()
	waitForClients(t, env.hub, 0)

	if got := env.coord.interest(connID); len(got) != 0 {
		t.Errorf("interest after disconnect = %v, want empty", got)
	}

	// A second removal for the same ID must be a no-op.
	id, err := uuid.Parse(connID)
	if err != nil {
		t.Fatalf("parse conn id: %v", err)
	}
	env.hub.RemoveClient(id)
	env.hub.RemoveClient(id)
}

func TestHub_BroadcastAlertReachesAllClients(t *testing.T) {
	env := newTestEnv(t)

	subscribed := env.dial(t)
	idle := env.dial(t)
	waitForClients(t, env.hub, 2)
	subscribed.WriteJSON(clientRequest{Action: ActionSubscribe, Tickers: []string{"AAPL"}})
	time.Sleep(50 * time.Millisecond)

	env.hub.BroadcastAlert(model.AlertTriggered{
		AlertID:      "a1",
		Ticker:       "AAPL",
		Condition:    "above",
		TargetPrice:  200,
		CurrentPrice: 200.01,
	})

	for _, ws := range []*websocket.Conn{subscribed, idle} {
		msg := readMessage(t, ws)
		if msg.Type != TypeAlertTriggered {
			t.Errorf("message type = %q, want alert_triggered", msg.Type)
		}
	}
}
