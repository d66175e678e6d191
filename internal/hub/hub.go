package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tballes8/northwest-creek/internal/model"
	"github.com/tballes8/northwest-creek/internal/pricecache"
)

// InterestListener is notified whenever a client's ticker interest changes.
// An empty set means the client is gone.
type InterestListener interface {
	OnClientInterestChanged(connID string, tickers []string)
}

// Hub tracks downstream client connections and fans ticks out to them.
type Hub struct {
	cfg    Config
	cache  *pricecache.Cache
	coord  InterestListener
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*conn
}

// New creates a hub.
func New(cfg Config, cache *pricecache.Cache, coord InterestListener, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg,
		cache:  cache,
		coord:  coord,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*conn),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := h.AddClient(sock)
	h.readPump(c)
}

// AddClient registers a connection, starts its write pump, and queues a full
// cache snapshot as a single batch message. Returns the connection.
func (h *Hub) AddClient(sock *websocket.Conn) *conn {
	c := newConn(uuid.New(), sock, h.cfg.SendBuffer)

	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	go h.writePump(c)

	if snapshot := h.cache.Snapshot(); len(snapshot) > 0 {
		if data, err := json.Marshal(serverMessage{Type: TypePriceCache, Data: snapshot}); err == nil {
			c.enqueue(data)
		}
	}

	h.logger.Info("client connected", "conn_id", c.id, "clients", total)
	return c
}

// RemoveClient deregisters a connection and releases its resources. Safe to
// call multiple times.
func (h *Hub) RemoveClient(id uuid.UUID) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	c.close()
	h.coord.OnClientInterestChanged(id.String(), nil)
	h.logger.Info("client disconnected", "conn_id", id, "clients", total)
}

// Subscribe adds tickers to a client's interest set. "*" switches the client
// to the unfiltered firehose.
func (h *Hub) Subscribe(id uuid.UUID, tickers []string) {
	h.updateInterest(id, tickers, nil, false)
}

// Unsubscribe removes tickers from a client's interest set.
func (h *Hub) Unsubscribe(id uuid.UUID, tickers []string) {
	h.updateInterest(id, nil, tickers, false)
}

// UpdateInterest replaces a client's interest set.
func (h *Hub) UpdateInterest(id uuid.UUID, tickers []string) {
	h.updateInterest(id, tickers, nil, true)
}

func (h *Hub) updateInterest(id uuid.UUID, add, remove []string, replace bool) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}

	if replace {
		c.tickers = make(map[string]struct{})
		c.wildcard = false
	}
	for _, t := range add {
		t = strings.ToUpper(t)
		if t == Wildcard {
			c.wildcard = true
			continue
		}
		c.tickers[t] = struct{}{}
	}
	for _, t := range remove {
		t = strings.ToUpper(t)
		if t == Wildcard {
			c.wildcard = false
			continue
		}
		delete(c.tickers, t)
	}

	interest := make([]string, 0, len(c.tickers))
	for t := range c.tickers {
		interest = append(interest, t)
	}
	sort.Strings(interest)
	h.mu.Unlock()

	h.coord.OnClientInterestChanged(id.String(), interest)
}

// Broadcast sends the tick to every client whose interest set contains its
// ticker. Clients that cannot be written to are pruned after the iteration,
// never mid-broadcast.
func (h *Hub) Broadcast(tick model.PriceTick) {
	data, err := json.Marshal(serverMessage{Type: TypePriceUpdate, Data: tick})
	if err != nil {
		h.logger.Error("marshal price update", "error", err)
		return
	}

	var dead []uuid.UUID

	h.mu.RLock()
	for id, c := range h.clients {
		if !c.interestedIn(tick.Ticker) {
			continue
		}
		if !c.enqueue(data) {
			dead = append(dead, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range dead {
		h.logger.Warn("dropping unresponsive client", "conn_id", id)
		h.RemoveClient(id)
	}
}

// BroadcastAlert pushes an alert_triggered event to every connected client.
func (h *Hub) BroadcastAlert(ev model.AlertTriggered) {
	data, err := json.Marshal(serverMessage{Type: TypeAlertTriggered, Data: ev})
	if err != nil {
		h.logger.Error("marshal alert event", "error", err)
		return
	}

	var dead []uuid.UUID

	h.mu.RLock()
	for id, c := range h.clients {
		if !c.enqueue(data) {
			dead = append(dead, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range dead {
		h.RemoveClient(id)
	}
}

// Size returns the number of connected clients, for health reporting.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
