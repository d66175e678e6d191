package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tballes8/northwest-creek/internal/config"
	"github.com/tballes8/northwest-creek/internal/model"
	"github.com/tballes8/northwest-creek/internal/queue"
)

const writeTimeout = 5 * time.Second

// Mirror consumes price ticks from its input queue and writes the
// latest price per ticker into a Redis hash, so other services can
// read current prices without a feed connection.
//
// Hash field = ticker, value = the tick's JSON. The hash TTL is
// refreshed on every write, so the mirror going away lets the data
// expire instead of serving stale prices forever.
type Mirror struct {
	cfg    config.RedisConfig
	rdb    *redis.Client
	input  *queue.Ring[model.PriceTick]
	logger *slog.Logger

	wg sync.WaitGroup

	writes atomic.Int64
	errors atomic.Int64
}

// MirrorStats is a point-in-time snapshot of mirror counters.
type MirrorStats struct {
	Writes int64
	Errors int64
}

// NewMirror creates a latest-price mirror reading from input.
func NewMirror(cfg config.RedisConfig, rdb *redis.Client, input *queue.Ring[model.PriceTick], logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		cfg:    cfg,
		rdb:    rdb,
		input:  input,
		logger: logger.With("component", "redis_mirror"),
	}
}

// Start launches the write loop. The loop exits when the input queue
// is closed and drained.
func (m *Mirror) Start() {
	m.wg.Add(1)
	go m.run()
	m.logger.Info("redis mirror started", "key", m.cfg.Key, "ttl", m.cfg.TTL)
}

// Stop waits for the write loop to drain, or the context to end.
// Close the input queue before calling Stop.
func (m *Mirror) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("redis mirror stopped",
			"writes", m.writes.Load(), "errors", m.errors.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (m *Mirror) Stats() MirrorStats {
	return MirrorStats{
		Writes: m.writes.Load(),
		Errors: m.errors.Load(),
	}
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for {
		tick, ok := m.input.Pop()
		if !ok {
			return
		}
		m.write(tick)
	}
}

func (m *Mirror) write(tick model.PriceTick) {
	body, err := json.Marshal(tick)
	if err != nil {
		m.errors.Add(1)
		m.logger.Error("marshal tick", "ticker", tick.Ticker, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, m.cfg.Key, tick.Ticker, string(body))
	if m.cfg.TTL > 0 {
		pipe.Expire(ctx, m.cfg.Key, m.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.errors.Add(1)
		m.logger.Warn("mirror write failed", "ticker", tick.Ticker, "error", err)
		return
	}
	m.writes.Add(1)
}
