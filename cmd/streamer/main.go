package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tballes8/northwest-creek/internal/alert"
	"github.com/tballes8/northwest-creek/internal/config"
	"github.com/tballes8/northwest-creek/internal/coordinator"
	"github.com/tballes8/northwest-creek/internal/database"
	"github.com/tballes8/northwest-creek/internal/feed"
	"github.com/tballes8/northwest-creek/internal/hub"
	"github.com/tballes8/northwest-creek/internal/model"
	"github.com/tballes8/northwest-creek/internal/notify"
	"github.com/tballes8/northwest-creek/internal/pricecache"
	"github.com/tballes8/northwest-creek/internal/queue"
	"github.com/tballes8/northwest-creek/internal/store/postgres"
	redisstore "github.com/tballes8/northwest-creek/internal/store/redis"
	"github.com/tballes8/northwest-creek/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// .env is optional; config values reference its variables via ${VAR}.
	godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the alert database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	alertStore := postgres.NewAlertStore(pool, logger)

	// Price cache and per-consumer tick queues
	cache := pricecache.New()
	broadcastQueue := queue.NewRing[model.PriceTick](cfg.Feed.QueueSize)
	alertQueue := queue.NewRing[model.PriceTick](cfg.Feed.QueueSize)

	sinks := []feed.TickSink{broadcastQueue, alertQueue}

	// Redis latest-price mirror (optional)
	var mirror *redisstore.Mirror
	var mirrorQueue *queue.Ring[model.PriceTick]
	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		mirrorQueue = queue.NewRing[model.PriceTick](cfg.Feed.QueueSize)
		sinks = append(sinks, mirrorQueue)
		mirror = redisstore.NewMirror(cfg.Redis, rdb, mirrorQueue, logger)
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	// Feed manager
	feedMgr := feed.NewManager(feed.ManagerConfig{
		URL:                cfg.Feed.URL,
		APIKey:             cfg.Feed.APIKey,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		ReadTimeout:        cfg.Feed.ReadTimeout,
		PongTimeout:        cfg.Feed.PongTimeout,
		WriteTimeout:       cfg.Feed.WriteTimeout,
		BufferSize:         cfg.Feed.QueueSize,
	}, cache, logger, sinks...)

	// Subscription coordinator ties client interest and alerts to the feed
	coord := coordinator.New(feedMgr, logger)

	// Client hub
	h := hub.New(hub.Config{
		SendBuffer:   cfg.Server.ClientSendBuffer,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cache, coord, logger)

	// Notification channels
	var notifiers []alert.Notifier
	notifyOpts := []notify.Option{notify.WithLogger(logger)}
	if cfg.Notify.Timeout > 0 {
		notifyOpts = append(notifyOpts, notify.WithTimeout(cfg.Notify.Timeout))
	}
	if cfg.Notify.SMSWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook("sms", cfg.Notify.SMSWebhookURL, notifyOpts...))
	}
	if cfg.Notify.EmailWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook("email", cfg.Notify.EmailWebhookURL, notifyOpts...))
	}

	// Alert checker
	checker := alert.NewChecker(alert.Config{
		ThrottleWindow: cfg.Alerts.ThrottleWindow,
	}, alertStore, coord, h, notifiers, logger)

	loaded, err := checker.LoadActiveAlerts(ctx)
	if err != nil {
		logger.Error("failed to load active alerts", "error", err)
		os.Exit(1)
	}
	logger.Info("alert checker ready", "active_alerts", loaded)

	// Connect the upstream feed. An auth rejection here is fatal.
	if err := feedMgr.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		feedMgr.Stop(shutdownCtx)
	}()

	// Tick consumers
	var consumers sync.WaitGroup
	consumers.Add(2)
	go func() {
		defer consumers.Done()
		for {
			tick, ok := broadcastQueue.Pop()
			if !ok {
				return
			}
			h.Broadcast(tick)
		}
	}()
	go func() {
		defer consumers.Done()
		for {
			tick, ok := alertQueue.Pop()
			if !ok {
				return
			}
			checker.OnTick(tick)
		}
	}()

	if mirror != nil {
		mirror.Start()
	}

	// HTTP server: client websockets, health, internal alert registration
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: createHandler(h, feedMgr, checker, alertStore, pool, logger),
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("streamer running",
		"instance_id", cfg.Instance.ID,
		"ws_url", fmt.Sprintf("ws://localhost:%d/ws", cfg.Server.Port),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	// Closing the queues drains the consumers.
	broadcastQueue.Close()
	alertQueue.Close()
	consumers.Wait()

	if mirror != nil {
		mirrorQueue.Close()
		mirror.Stop(shutdownCtx)
	}
	checker.Stop(shutdownCtx)

	logger.Info("streamer stopped")
}

// pinger covers pgxpool.Pool for health checks.
type pinger interface {
	Ping(ctx context.Context) error
}

// createHandler assembles the HTTP routes.
func createHandler(h *hub.Hub, feedMgr feed.Manager, checker *alert.Checker, alertStore *postgres.AlertStore, db pinger, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/ws", h)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		stats := feedMgr.Stats()
		health.Components["feed"] = map[string]interface{}{
			"connected":      stats.Connected,
			"subscriptions":  stats.Subscriptions,
			"ticks_received": stats.TicksReceived,
			"parse_errors":   stats.ParseErrors,
			"reconnects":     stats.Reconnects,
		}
		if !stats.Connected {
			health.Status = "degraded"
		}

		health.Components["clients"] = h.Size()
		health.Components["active_alerts"] = checker.ActiveCount()

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	// The API backend calls this after inserting a new alert so the
	// checker picks it up without a restart.
	mux.HandleFunc("/internal/alerts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			AlertID string `json:"alert_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		id, err := uuid.Parse(req.AlertID)
		if err != nil {
			http.Error(w, "invalid alert_id", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		a, err := alertStore.GetAlert(ctx, id)
		if err != nil {
			logger.Warn("alert registration lookup failed", "alert_id", id, "error", err)
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		if err := checker.RegisterAlert(a); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}
