package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tballes8/northwest-creek/internal/model"
	"github.com/tballes8/northwest-creek/internal/pricecache"
)

// Manager owns the upstream feed connection, the subscribed-ticker set, and
// the dispatch of each inbound tick to the price cache and the tick sinks.
type Manager interface {
	// Start connects and authenticates, then begins streaming. An auth
	// rejection is returned to the caller; it is not retried.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the connection.
	Stop(ctx context.Context) error

	// Subscribe adds tickers to the upstream subscription set. Tickers
	// already subscribed are no-ops.
	Subscribe(tickers []string) error

	// Unsubscribe removes tickers from the upstream subscription set.
	// Tickers not subscribed are no-ops.
	Unsubscribe(tickers []string) error

	// Subscribed returns the current subscription set, sorted.
	Subscribed() []string

	// IsConnected returns current connection state.
	IsConnected() bool

	// Stats returns streaming statistics.
	Stats() ManagerStats
}

// ManagerStats provides statistics about the feed manager.
type ManagerStats struct {
	Connected     bool
	Subscriptions int
	TicksReceived int64
	ParseErrors   int64
	Reconnects    int64
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	cache  *pricecache.Cache
	sinks  []TickSink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Connection and subscription state
	mu     sync.Mutex
	client Client
	subs   map[string]struct{}

	// Counters
	ticksReceived atomic.Int64
	parseErrors   atomic.Int64
	reconnects    atomic.Int64

	// Test hook: replaces NewClient when set
	newClient func(ClientConfig, *slog.Logger) Client
}

// NewManager creates a feed manager. Every tick is written to the cache and
// offered to each sink without blocking the read loop.
func NewManager(cfg ManagerConfig, cache *pricecache.Cache, logger *slog.Logger, sinks ...TickSink) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:       cfg,
		cache:     cache,
		sinks:     sinks,
		logger:    logger,
		subs:      make(map[string]struct{}),
		newClient: NewClient,
	}
}

// Start connects, authenticates, and begins the streaming loop.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	c := m.newClient(m.cfg.clientConfig(), m.logger)
	if err := c.Connect(m.ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.client = c
	m.mu.Unlock()

	// Replay any subscriptions registered before Start
	if err := m.replaySubscriptions(c); err != nil {
		m.logger.Warn("initial subscribe failed", "error", err)
	}

	m.wg.Add(1)
	go m.run()

	m.logger.Info("feed manager started", "url", m.cfg.URL)

	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping feed manager")

	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	c := m.client
	m.mu.Unlock()
	if c != nil {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("feed manager stopped")
	case <-ctx.Done():
		m.logger.Warn("feed manager stop timed out")
	}

	return nil
}

// Subscribe adds tickers to the subscription set and pushes the delta upstream.
func (m *manager) Subscribe(tickers []string) error {
	m.mu.Lock()
	var delta []string
	for _, t := range tickers {
		t = strings.ToUpper(t)
		if _, ok := m.subs[t]; ok {
			continue
		}
		m.subs[t] = struct{}{}
		delta = append(delta, t)
	}
	c := m.client
	m.mu.Unlock()

	if len(delta) == 0 {
		return nil
	}
	if c == nil || !c.IsConnected() {
		// Desired set recorded; the reconnect replay will cover it.
		return nil
	}

	if err := m.sendControl(c, "subscribe", delta); err != nil {
		return err
	}

	m.logger.Info("subscribed upstream", "tickers", delta)
	return nil
}

// Unsubscribe removes tickers from the subscription set and pushes the delta.
func (m *manager) Unsubscribe(tickers []string) error {
	m.mu.Lock()
	var delta []string
	for _, t := range tickers {
		t = strings.ToUpper(t)
		if _, ok := m.subs[t]; !ok {
			continue
		}
		delete(m.subs, t)
		delta = append(delta, t)
	}
	c := m.client
	m.mu.Unlock()

	if len(delta) == 0 {
		return nil
	}
	if c == nil || !c.IsConnected() {
		return nil
	}

	if err := m.sendControl(c, "unsubscribe", delta); err != nil {
		return err
	}

	m.logger.Info("unsubscribed upstream", "tickers", delta)
	return nil
}

// Subscribed returns the current subscription set, sorted.
func (m *manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.subs))
	for t := range m.subs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsConnected returns the current connection state.
func (m *manager) IsConnected() bool {
	m.mu.Lock()
	c := m.client
	m.mu.Unlock()
	return c != nil && c.IsConnected()
}

// Stats returns streaming statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	subs := len(m.subs)
	m.mu.Unlock()

	return ManagerStats{
		Connected:     m.IsConnected(),
		Subscriptions: subs,
		TicksReceived: m.ticksReceived.Load(),
		ParseErrors:   m.parseErrors.Load(),
		Reconnects:    m.reconnects.Load(),
	}
}

// run is the streaming loop: consume until the connection fails, then
// reconnect with backoff and replay the full subscription set.
func (m *manager) run() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		c := m.client
		m.mu.Unlock()

		err := m.consume(c)
		if m.ctx.Err() != nil {
			return
		}

		m.logger.Warn("feed connection lost", "error", err)
		c.Close()
		m.reconnects.Add(1)

		if !m.reconnect() {
			return
		}
	}
}

// consume drains one connection's messages until it errors or the context ends.
func (m *manager) consume(c Client) error {
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case err := <-c.Errors():
			return err
		case msg, ok := <-c.Messages():
			if !ok {
				return ErrNotConnected
			}
			m.handleMessage(msg)
		}
	}
}

// handleMessage parses a raw frame and dispatches any trade events.
func (m *manager) handleMessage(msg TimestampedMessage) {
	events := parseEventFrames(msg.Data)
	if events == nil {
		m.parseErrors.Add(1)
		m.logger.Warn("unparseable feed frame", "size", len(msg.Data))
		return
	}

	for _, ev := range events {
		switch ev.Ev {
		case eventTypeTrade:
			if ev.Sym == "" || ev.Price <= 0 {
				m.parseErrors.Add(1)
				continue
			}
			tick := model.PriceTick{
				Ticker:     ev.Sym,
				Price:      ev.Price,
				Size:       ev.Size,
				ExchangeTS: ev.Timestamp,
				ReceivedAt: msg.ReceivedAt,
			}
			m.dispatch(tick)

		case eventTypeStatus:
			m.logger.Debug("feed status", "status", ev.Status, "message", ev.Message)
		}
	}
}

// dispatch updates the cache and pushes the tick to every sink. Push never
// blocks; a full sink drops its own oldest ticks.
func (m *manager) dispatch(tick model.PriceTick) {
	m.ticksReceived.Add(1)
	m.cache.Update(tick)

	for _, sink := range m.sinks {
		sink.Push(tick)
	}
}

// reconnect retries with capped exponential backoff until connected or the
// context ends. Returns false when the context ended. An auth rejection
// during reconnect is logged and retried like any other failure; the key
// already authenticated once at startup.
func (m *manager) reconnect() bool {
	wait := m.cfg.ReconnectBaseDelay
	maxWait := m.cfg.ReconnectMaxDelay

	for {
		select {
		case <-m.ctx.Done():
			return false
		case <-time.After(wait):
		}

		m.logger.Info("attempting feed reconnection", "wait", wait)

		c := m.newClient(m.cfg.clientConfig(), m.logger)
		if err := c.Connect(m.ctx); err != nil {
			m.logger.Warn("feed reconnection failed", "error", err)

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		m.mu.Lock()
		m.client = c
		m.mu.Unlock()

		if err := m.replaySubscriptions(c); err != nil {
			m.logger.Warn("subscription replay failed", "error", err)
		}

		m.logger.Info("feed reconnected")
		return true
	}
}

// replaySubscriptions re-subscribes the entire current set. The feed keeps no
// subscription state across connections, so the full set is sent, not a delta.
func (m *manager) replaySubscriptions(c Client) error {
	tickers := m.Subscribed()
	if len(tickers) == 0 {
		return nil
	}

	if err := m.sendControl(c, "subscribe", tickers); err != nil {
		return err
	}

	m.logger.Info("replayed subscriptions", "count", len(tickers))
	return nil
}

// sendControl sends a subscribe/unsubscribe frame for a set of tickers using
// the feed's "T.<ticker>" CSV parameter form.
func (m *manager) sendControl(c Client, action string, tickers []string) error {
	params := make([]string, 0, len(tickers))
	for _, t := range tickers {
		params = append(params, "T."+t)
	}

	data, _ := json.Marshal(controlFrame{
		Action: action,
		Params: strings.Join(params, ","),
	})

	return c.Send(data)
}
