// feedtest connects to the upstream trade feed and streams parsed ticks
// to console.
// Usage: go run ./cmd/feedtest --config configs/streamer.local.yaml AAPL MSFT
//
// Required environment variables (referenced from the config file):
//
//	FEED_API_KEY - Upstream feed API key
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tballes8/northwest-creek/internal/config"
	"github.com/tballes8/northwest-creek/internal/feed"
	"github.com/tballes8/northwest-creek/internal/model"
	"github.com/tballes8/northwest-creek/internal/pricecache"
)

// printSink logs every tick it receives.
type printSink struct {
	logger *slog.Logger
}

func (s *printSink) Push(tick model.PriceTick) bool {
	s.logger.Info("tick",
		"ticker", tick.Ticker,
		"price", tick.Price,
		"size", tick.Size,
		"exchange_ts", tick.ExchangeTS,
	)
	return true
}

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	tickers := flag.Args()
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(tickers) == 0 {
		logger.Error("no tickers given")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cache := pricecache.New()
	mgr := feed.NewManager(feed.ManagerConfig{
		URL:                cfg.Feed.URL,
		APIKey:             cfg.Feed.APIKey,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		ReadTimeout:        cfg.Feed.ReadTimeout,
		PongTimeout:        cfg.Feed.PongTimeout,
		WriteTimeout:       cfg.Feed.WriteTimeout,
		BufferSize:         cfg.Feed.QueueSize,
	}, cache, logger, &printSink{logger: logger})

	logger.Info("connecting to feed", "url", cfg.Feed.URL)
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	if err := mgr.Subscribe(tickers); err != nil {
		logger.Error("subscribe failed", "error", err)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"connected", stats.Connected,
					"subscriptions", stats.Subscriptions,
					"ticks_received", stats.TicksReceived,
					"parse_errors", stats.ParseErrors,
					"reconnects", stats.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	mgr.Stop(shutdownCtx)
	logger.Info("done")
}
