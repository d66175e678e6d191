// Package coordinator derives the required upstream subscription set from
// downstream client interest and active alerts, and pushes only the deltas
// to the feed manager.
//
// A ticker stays subscribed while any active alert references it, even with
// no clients connected, so alerts keep firing with no UI attached.
package coordinator

import (
	"log/slog"
	"sync"
)

// FeedSubscriber is the part of the feed manager the coordinator drives.
type FeedSubscriber interface {
	Subscribe(tickers []string) error
	Unsubscribe(tickers []string) error
}

// Coordinator serializes all recomputations of the subscription set.
type Coordinator struct {
	feed   FeedSubscriber
	logger *slog.Logger

	mu             sync.Mutex
	clientInterest map[string]map[string]struct{} // connection ID → tickers
	alertCounts    map[string]int                 // ticker → active alert count
	subscribed     map[string]struct{}            // tickers currently pushed upstream
}

// New creates a coordinator.
func New(feed FeedSubscriber, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		feed:           feed,
		logger:         logger,
		clientInterest: make(map[string]map[string]struct{}),
		alertCounts:    make(map[string]int),
		subscribed:     make(map[string]struct{}),
	}
}

// OnClientInterestChanged replaces one client's interest set and reconciles.
// An empty newSet removes the client entirely (disconnect).
func (c *Coordinator) OnClientInterestChanged(connID string, newSet []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(newSet) == 0 {
		delete(c.clientInterest, connID)
	} else {
		interest := make(map[string]struct{}, len(newSet))
		for _, t := range newSet {
			interest[t] = struct{}{}
		}
		c.clientInterest[connID] = interest
	}

	c.reconcileLocked()
}

// OnAlertSetChanged adjusts per-ticker active alert counts and reconciles.
func (c *Coordinator) OnAlertSetChanged(added, removed []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range added {
		c.alertCounts[t]++
	}
	for _, t := range removed {
		c.alertCounts[t]--
		if c.alertCounts[t] <= 0 {
			delete(c.alertCounts, t)
		}
	}

	c.reconcileLocked()
}

// Required returns the current required subscription set.
func (c *Coordinator) Required() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	required := c.requiredLocked()
	out := make([]string, 0, len(required))
	for t := range required {
		out = append(out, t)
	}
	return out
}

// requiredLocked computes union(client interest) ∪ union(alert tickers).
func (c *Coordinator) requiredLocked() map[string]struct{} {
	required := make(map[string]struct{})
	for _, interest := range c.clientInterest {
		for t := range interest {
			required[t] = struct{}{}
		}
	}
	for t := range c.alertCounts {
		required[t] = struct{}{}
	}
	return required
}

// reconcileLocked diffs required against subscribed and pushes the delta.
// A failed push is logged and still marked as applied: the feed manager
// records the desired set before sending, so its reconnect replay delivers
// the tickers once the connection is back. Re-sending the delta here would
// only duplicate frames.
func (c *Coordinator) reconcileLocked() {
	required := c.requiredLocked()

	var subscribe, unsubscribe []string
	for t := range required {
		if _, ok := c.subscribed[t]; !ok {
			subscribe = append(subscribe, t)
		}
	}
	for t := range c.subscribed {
		if _, ok := required[t]; !ok {
			unsubscribe = append(unsubscribe, t)
		}
	}

	if len(subscribe) > 0 {
		if err := c.feed.Subscribe(subscribe); err != nil {
			c.logger.Warn("upstream subscribe failed", "tickers", subscribe, "error", err)
		}
		for _, t := range subscribe {
			c.subscribed[t] = struct{}{}
		}
	}

	if len(unsubscribe) > 0 {
		if err := c.feed.Unsubscribe(unsubscribe); err != nil {
			c.logger.Warn("upstream unsubscribe failed", "tickers", unsubscribe, "error", err)
		}
		for _, t := range unsubscribe {
			delete(c.subscribed, t)
		}
	}
}
