package coordinator

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
)

// recordingFeed tracks the subscription set the coordinator pushed upstream.
type recordingFeed struct {
	mu   sync.Mutex
	subs map[string]struct{}
}

func newRecordingFeed() *recordingFeed {
	return &recordingFeed{subs: make(map[string]struct{})}
}

func (f *recordingFeed) Subscribe(tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tickers {
		if _, ok := f.subs[t]; ok {
			return fmt.Errorf("duplicate subscribe for %s", t)
		}
		f.subs[t] = struct{}{}
	}
	return nil
}

func (f *recordingFeed) Unsubscribe(tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tickers {
		if _, ok := f.subs[t]; !ok {
			return fmt.Errorf("unsubscribe for unsubscribed %s", t)
		}
		delete(f.subs, t)
	}
	return nil
}

func (f *recordingFeed) current() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for t := range f.subs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func assertSets(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("subscription set = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("subscription set = %v, want %v", got, want)
		}
	}
}

func TestCoordinator_ClientInterestDrivesSubscriptions(t *testing.T) {
	feed := newRecordingFeed()
	c := New(feed, nil)

	c.OnClientInterestChanged("conn-1", []string{"AAPL", "MSFT"})
	assertSets(t, feed.current(), []string{"AAPL", "MSFT"})

	c.OnClientInterestChanged("conn-2", []string{"MSFT", "GOOG"})
	assertSets(t, feed.current(), []string{"AAPL", "GOOG", "MSFT"})

	// conn-1 narrows its interest; AAPL is no longer required.
	c.OnClientInterestChanged("conn-1", []string{"MSFT"})
	assertSets(t, feed.current(), []string{"GOOG", "MSFT"})

	// conn-2 disconnects.
	c.OnClientInterestChanged("conn-2", nil)
	assertSets(t, feed.current(), []string{"MSFT"})
}

func TestCoordinator_AlertsKeepTickerSubscribed(t *testing.T) {
	feed := newRecordingFeed()
	c := New(feed, nil)

	c.OnClientInterestChanged("conn-1", []string{"AAPL"})
	c.OnAlertSetChanged([]string{"AAPL", "TSLA"}, nil)
	assertSets(t, feed.current(), []string{"AAPL", "TSLA"})

	// All clients gone: alert tickers must stay subscribed.
	c.OnClientInterestChanged("conn-1", nil)
	assertSets(t, feed.current(), []string{"AAPL", "TSLA"})

	// One of two AAPL alerts removed: still subscribed.
	c.OnAlertSetChanged([]string{"AAPL"}, nil)
	c.OnAlertSetChanged(nil, []string{"AAPL"})
	assertSets(t, feed.current(), []string{"AAPL", "TSLA"})

	// Last AAPL alert removed.
	c.OnAlertSetChanged(nil, []string{"AAPL"})
	assertSets(t, feed.current(), []string{"TSLA"})
}

// TestCoordinator_InvariantUnderRandomChurn randomly adds/removes clients and
// alerts and asserts after every call that the upstream set equals the union
// of client interest and alert tickers.
func TestCoordinator_InvariantUnderRandomChurn(t *testing.T) {
	feed := newRecordingFeed()
	c := New(feed, nil)
	rng := rand.New(rand.NewSource(1))

	universe := []string{"AAPL", "MSFT", "GOOG", "TSLA", "NVDA", "AMZN"}
	clients := make(map[string][]string)
	alertCounts := make(map[string]int)

	randomTickers := func() []string {
		n := rng.Intn(4)
		out := make([]string, 0, n)
		seen := make(map[string]bool)
		for len(out) < n {
			tk := universe[rng.Intn(len(universe))]
			if !seen[tk] {
				seen[tk] = true
				out = append(out, tk)
			}
		}
		return out
	}

	expected := func() []string {
		set := make(map[string]struct{})
		for _, interest := range clients {
			for _, tk := range interest {
				set[tk] = struct{}{}
			}
		}
		for tk, n := range alertCounts {
			if n > 0 {
				set[tk] = struct{}{}
			}
		}
		out := make([]string, 0, len(set))
		for tk := range set {
			out = append(out, tk)
		}
		return out
	}

	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0: // client interest change or disconnect
			id := fmt.Sprintf("conn-%d", rng.Intn(5))
			tickers := randomTickers()
			if len(tickers) == 0 {
				delete(clients, id)
			} else {
				clients[id] = tickers
			}
			c.OnClientInterestChanged(id, tickers)

		case 1: // alert added
			tk := universe[rng.Intn(len(universe))]
			alertCounts[tk]++
			c.OnAlertSetChanged([]string{tk}, nil)

		case 2: // alert removed, if any
			tk := universe[rng.Intn(len(universe))]
			if alertCounts[tk] > 0 {
				alertCounts[tk]--
				c.OnAlertSetChanged(nil, []string{tk})
			}
		}

		assertSets(t, feed.current(), expected())
	}
}

// flakyFeed fails the first Subscribe call and records every attempt.
type flakyFeed struct {
	recordingFeed
	failed bool
}

func (f *flakyFeed) Subscribe(tickers []string) error {
	if !f.failed {
		f.failed = true
		return fmt.Errorf("send failed: connection reset")
	}
	return f.recordingFeed.Subscribe(tickers)
}

// A failed push still counts as applied: the feed manager keeps the desired
// set and replays it on reconnect, so the coordinator must not re-send the
// same tickers on the next change.
func TestCoordinator_FailedPushIsNotResent(t *testing.T) {
	feed := &flakyFeed{recordingFeed: recordingFeed{subs: make(map[string]struct{})}}
	c := New(feed, nil)

	c.OnClientInterestChanged("conn-1", []string{"AAPL"})
	if got := feed.current(); len(got) != 0 {
		t.Fatalf("failed subscribe recorded upstream: %v", got)
	}

	// The next change carries only its own delta.
	c.OnClientInterestChanged("conn-2", []string{"MSFT"})
	assertSets(t, feed.current(), []string{"MSFT"})

	// AAPL is still part of the required set.
	required := c.Required()
	sort.Strings(required)
	assertSets(t, required, []string{"AAPL", "MSFT"})
}

func TestCoordinator_Required(t *testing.T) {
	c := New(newRecordingFeed(), nil)
	c.OnClientInterestChanged("conn-1", []string{"AAPL"})
	c.OnAlertSetChanged([]string{"TSLA"}, nil)

	got := c.Required()
	sort.Strings(got)
	assertSets(t, got, []string{"AAPL", "TSLA"})
}
