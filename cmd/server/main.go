// cmd/server runs the dashboard backend: REST API, websocket push, scheduled
// watchlist refresh and signal alerts.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quant-dashboard/config"
	"quant-dashboard/internal/api"
	"quant-dashboard/internal/collector"
	"quant-dashboard/internal/gateway"
	"quant-dashboard/internal/logger"
	"quant-dashboard/internal/markethours"
	"quant-dashboard/internal/metrics"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/notification"
	"quant-dashboard/internal/scheduler"
	"quant-dashboard/internal/service"
	"quant-dashboard/internal/store/postgres"
	redisstore "quant-dashboard/internal/store/redis"
	sqlitestore "quant-dashboard/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[server] config: %v", err)
	}
	logger.Init("quant-dashboard", logger.ParseLevel(cfg.LogLevel))
	log.Printf("[server] starting (store=%s, redis=%s)", cfg.StoreDriver, cfg.RedisAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	// ---- Bar store ----
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[server] store init failed: %v", err)
	}
	defer store.Close()
	health.AddProbe(cfg.StoreDriver, true, store.Ping)
	log.Printf("[server] %s store ready", cfg.StoreDriver)

	// ---- Dashboard cache (optional) ----
	var (
		cache     model.DashboardCache
		announcer service.RefreshAnnouncer
		rc        *redisstore.Cache
	)
	if cfg.CacheEnabled() {
		rc, err = redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[server] WARNING: redis init failed: %v (continuing without cache)", err)
		} else {
			defer rc.Close()
			rc.OnBreakerChange(func(_, to redisstore.State) { prom.SetBreakerState(int(to)) })
			health.AddProbe("redis", false, rc.Ping)
			cache, announcer = rc, rc
		}
	}

	// ---- Collector and alerts ----
	fetcher := collector.NewYahooFetcher(cfg.YahooProxy)
	notifier := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifier = append(notifier, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" {
		notifier = append(notifier, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}

	// ---- Service + websocket hub ----
	var svc *service.Service
	hub := gateway.NewHub(func(ctx context.Context, symbol string) (any, error) {
		return svc.Dashboard(ctx, symbol, svc.Defaults())
	}, prom.WSClients)

	svc, err = service.New(service.Options{
		Store:        store,
		Cache:        cache,
		Fetcher:      fetcher,
		Notifier:     notifier,
		Publisher:    hub,
		Announcer:    announcer,
		Sessions:     markethours.NewRegistry(cfg.MarketMIC),
		Metrics:      prom,
		Defaults:     cfg.Indicators,
		CacheTTL:     cfg.CacheTTL,
		HistoryRange: cfg.HistoryRange,
	})
	if err != nil {
		log.Fatalf("[server] service init failed: %v", err)
	}

	// Refreshes done by other instances: push to our own subscribers.
	if rc != nil {
		go func() {
			err := rc.SubscribeRefresh(ctx, svc.InstanceID(), func(symbol string) {
				svc.PushDashboard(ctx, symbol)
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("[server] refresh subscription ended: %v", err)
			}
		}()
	}

	health.Check(ctx)
	go health.StartLivenessChecker(ctx, 15*time.Second)

	// ---- Scheduled refresh ----
	cal := markethours.New(cfg.MarketMIC)
	sched := scheduler.New(ctx,
		scheduler.RefreshFunc(func(ctx context.Context, symbol string) error {
			_, err := svc.Refresh(ctx, symbol)
			return err
		}),
		cal,
		func(ctx context.Context) []string { return watchlist(ctx, cfg, svc) },
	)
	if err := sched.Register(cfg.RefreshCron); err != nil {
		log.Fatalf("[server] %v", err)
	}
	sched.Start()
	go sched.RunNow()

	// ---- HTTP ----
	router := api.NewRouter(api.Deps{
		Service: svc,
		Metrics: prom,
		Health:  health,
		WS:      hub.ServeWS,
		Debug:   cfg.LogLevel == "debug",
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[server] serving at http://localhost%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] http error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[server] shutting down...")
	cancel()
	sched.Stop()
	hub.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] http shutdown: %v", err)
	}
	log.Println("[server] stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (model.BarStore, error) {
	if cfg.StoreDriver == "postgres" {
		// The database container may still be starting: retry for ~30s.
		var lastErr error
		for i := 0; i < 30; i++ {
			s, err := postgres.Open(ctx, cfg.DBDSN)
			if err == nil {
				return s, nil
			}
			lastErr = err
			log.Printf("[server] waiting for postgres (%d/30): %v", i+1, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}
		return nil, lastErr
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	s, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// watchlist is the configured symbols plus everything already stored.
func watchlist(ctx context.Context, cfg *config.Config, svc *service.Service) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = service.NormalizeSymbol(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range cfg.Symbols() {
		add(s)
	}
	stored, err := svc.ListSymbols(ctx)
	if err != nil {
		log.Printf("[server] list stored symbols: %v", err)
	}
	for _, s := range stored {
		add(s)
	}
	return out
}
