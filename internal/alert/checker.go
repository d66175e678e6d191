package alert

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/tballes8/northwest-creek/internal/model"
)

const throttleShards = 16

// Checker evaluates incoming price ticks against the in-memory working
// set of active alerts and runs the trigger sequence when a condition
// is met.
//
// Evaluation is throttled per ticker and guarded so that at most one
// evaluation per ticker runs at a time. Triggering is at-most-once:
// the conditional store update is the deciding step, and notifications
// plus the client broadcast only happen after it succeeds.
type Checker struct {
	cfg      Config
	store    Store
	interest Interest
	events   EventSink
	logger   *slog.Logger

	notifiers map[string]Notifier

	mu     sync.RWMutex
	alerts map[string][]*model.Alert // keyed by upper-case ticker

	shards [throttleShards]throttleShard

	wg sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

type throttleShard struct {
	mu       sync.Mutex
	lastEval map[string]time.Time
	inflight map[string]struct{}
}

// NewChecker creates a checker. The interest and events collaborators
// may be nil; notifications are dispatched only for channels present
// in notifiers.
func NewChecker(cfg Config, store Store, interest Interest, events EventSink, notifiers []Notifier, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultConfig().ThrottleWindow
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = DefaultConfig().TriggerTimeout
	}
	byChannel := make(map[string]Notifier, len(notifiers))
	for _, n := range notifiers {
		byChannel[n.Channel()] = n
	}
	c := &Checker{
		cfg:       cfg,
		store:     store,
		interest:  interest,
		events:    events,
		logger:    logger.With("component", "alert_checker"),
		notifiers: byChannel,
		alerts:    make(map[string][]*model.Alert),
		now:       time.Now,
	}
	for i := range c.shards {
		c.shards[i].lastEval = make(map[string]time.Time)
		c.shards[i].inflight = make(map[string]struct{})
	}
	return c
}

// LoadActiveAlerts replaces the working set with the store's active
// alerts and reports the full ticker set to the interest listener.
func (c *Checker) LoadActiveAlerts(ctx context.Context) (int, error) {
	loaded, err := c.store.LoadActive(ctx)
	if err != nil {
		return 0, err
	}

	byTicker := make(map[string][]*model.Alert, len(loaded))
	for i := range loaded {
		a := loaded[i]
		byTicker[a.Ticker] = append(byTicker[a.Ticker], &a)
	}

	c.mu.Lock()
	prev := c.alerts
	c.alerts = byTicker
	c.mu.Unlock()

	var added, removed []string
	for t := range byTicker {
		if _, ok := prev[t]; !ok {
			added = append(added, t)
		}
	}
	for t := range prev {
		if _, ok := byTicker[t]; !ok {
			removed = append(removed, t)
		}
	}
	if c.interest != nil && (len(added) > 0 || len(removed) > 0) {
		c.interest.OnAlertSetChanged(added, removed)
	}

	c.logger.Info("loaded active alerts", "count", len(loaded), "tickers", len(byTicker))
	return len(loaded), nil
}

// RegisterAlert adds a single alert to the working set. Inactive or
// already-triggered alerts are ignored.
func (c *Checker) RegisterAlert(a model.Alert) error {
	if !a.IsActive || a.TriggeredAt != nil {
		return ErrNotActive
	}
	if !a.Condition.Valid() {
		return errors.New("unknown alert condition: " + string(a.Condition))
	}

	c.mu.Lock()
	for _, existing := range c.alerts[a.Ticker] {
		if existing.ID == a.ID {
			c.mu.Unlock()
			return nil
		}
	}
	first := len(c.alerts[a.Ticker]) == 0
	c.alerts[a.Ticker] = append(c.alerts[a.Ticker], &a)
	c.mu.Unlock()

	if first && c.interest != nil {
		c.interest.OnAlertSetChanged([]string{a.Ticker}, nil)
	}
	c.logger.Info("alert registered",
		"alert_id", a.ID, "ticker", a.Ticker,
		"condition", a.Condition, "target", a.TargetPrice)
	return nil
}

// ActiveCount reports the number of alerts in the working set.
func (c *Checker) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, list := range c.alerts {
		n += len(list)
	}
	return n
}

// OnTick feeds one price tick into the checker. It never blocks: the
// tick is either discarded by the throttle or in-flight guard, or the
// evaluation proceeds on its own goroutine.
func (c *Checker) OnTick(tick model.PriceTick) {
	sh := c.shard(tick.Ticker)

	sh.mu.Lock()
	now := c.now()
	if last, ok := sh.lastEval[tick.Ticker]; ok && now.Sub(last) < c.cfg.ThrottleWindow {
		sh.mu.Unlock()
		return
	}
	if _, busy := sh.inflight[tick.Ticker]; busy {
		sh.mu.Unlock()
		return
	}
	sh.lastEval[tick.Ticker] = now
	sh.inflight[tick.Ticker] = struct{}{}
	sh.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			sh.mu.Lock()
			delete(sh.inflight, tick.Ticker)
			sh.mu.Unlock()
		}()
		c.evaluate(tick)
	}()
}

// Stop waits for in-flight evaluations to finish or the context to end.
func (c *Checker) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Checker) shard(ticker string) *throttleShard {
	h := fnv.New32a()
	h.Write([]byte(ticker))
	return &c.shards[h.Sum32()%throttleShards]
}

func (c *Checker) evaluate(tick model.PriceTick) {
	c.mu.RLock()
	var matched []*model.Alert
	for _, a := range c.alerts[tick.Ticker] {
		if a.IsActive && a.ConditionMet(tick.Price) {
			matched = append(matched, a)
		}
	}
	c.mu.RUnlock()

	for _, a := range matched {
		c.trigger(a, tick)
	}
}

func (c *Checker) trigger(a *model.Alert, tick model.PriceTick) {
	at := c.now()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TriggerTimeout)
	err := c.store.MarkTriggered(ctx, a.ID, at)
	cancel()

	switch {
	case errors.Is(err, ErrNotActive):
		// Lost the race: someone else triggered or deactivated it.
		// Drop it from the working set without notifying anyone.
		c.remove(a)
		c.logger.Info("alert already triggered elsewhere, dropping",
			"alert_id", a.ID, "ticker", a.Ticker)
		return
	case err != nil:
		// Leave the alert in the working set so a later tick retries.
		c.logger.Error("failed to persist alert trigger",
			"alert_id", a.ID, "ticker", a.Ticker, "error", err)
		return
	}

	c.remove(a)
	a.IsActive = false
	triggered := at
	a.TriggeredAt = &triggered

	c.logger.Info("alert triggered",
		"alert_id", a.ID, "ticker", a.Ticker,
		"condition", a.Condition, "target", a.TargetPrice,
		"price", tick.Price)

	c.dispatchNotifications(*a, tick)

	if c.events != nil {
		c.events.BroadcastAlert(model.NewAlertTriggered(a, tick, at))
	}
}

// remove drops the alert from the working set and, if it was the last
// one for its ticker, tells the interest listener.
func (c *Checker) remove(a *model.Alert) {
	c.mu.Lock()
	list := c.alerts[a.Ticker]
	for i, existing := range list {
		if existing.ID == a.ID {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	last := len(list) == 0
	if last {
		delete(c.alerts, a.Ticker)
	} else {
		c.alerts[a.Ticker] = list
	}
	c.mu.Unlock()

	if last && c.interest != nil {
		c.interest.OnAlertSetChanged(nil, []string{a.Ticker})
	}
}

// dispatchNotifications fans out to the alert's channels concurrently.
// Each channel is isolated: a failure or panic in one never affects
// the others or the caller.
func (c *Checker) dispatchNotifications(a model.Alert, tick model.PriceTick) {
	for _, channel := range a.NotifyChannels {
		n, ok := c.notifiers[channel]
		if !ok {
			c.logger.Debug("no notifier for channel, skipping",
				"alert_id", a.ID, "channel", channel)
			continue
		}
		c.wg.Add(1)
		go func(n Notifier, channel string) {
			defer c.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("notifier panicked",
						"alert_id", a.ID, "channel", channel, "panic", r)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TriggerTimeout)
			defer cancel()
			if err := n.Notify(ctx, a, tick); err != nil {
				c.logger.Warn("notification failed",
					"alert_id", a.ID, "channel", channel, "error", err)
			}
		}(n, channel)
	}
}
