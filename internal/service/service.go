// Package service is the application layer: it reads bars from the store,
// ingests missing or stale history through the collector, computes and caches
// dashboards, runs backtests and pushes results to live subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quant-dashboard/internal/collector"
	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/logger"
	"quant-dashboard/internal/metrics"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/notification"
)

var (
	// ErrUnknownSymbol means the symbol has no stored bars and could not be
	// ingested.
	ErrUnknownSymbol = errors.New("symbol not found or data unavailable")

	// ErrNoFetcher is returned by Refresh when no collector is configured.
	ErrNoFetcher = errors.New("no market-data collector configured")

	// ErrBadSourceData wraps validation failures of downloaded bars. The
	// underlying *series.ValidationError stays in the chain.
	ErrBadSourceData = errors.New("data source returned invalid bars")
)

// Publisher pushes an update for symbol to live subscribers.
type Publisher interface {
	Publish(symbol, kind string, payload any)
}

// RefreshAnnouncer tells other server instances that symbol was refreshed.
type RefreshAnnouncer interface {
	PublishRefresh(ctx context.Context, origin, symbol string) error
}

// SessionCalendar names the latest session whose bar should be stored.
type SessionCalendar interface {
	LastSessionKey(symbol string, t time.Time) string
}

// Options wires a Service. Only Store is required.
type Options struct {
	Store     model.BarStore
	Cache     model.DashboardCache
	Fetcher   collector.Fetcher
	Notifier  notification.Notifier
	Publisher Publisher
	Announcer RefreshAnnouncer
	Sessions  SessionCalendar
	Metrics   *metrics.Metrics

	Defaults     indicator.Params
	CacheTTL     time.Duration
	HistoryRange string
	InstanceID   string
}

// Service implements the dashboard use cases.
type Service struct {
	store     model.BarStore
	cache     model.DashboardCache
	fetcher   collector.Fetcher
	notifier  notification.Notifier
	publisher Publisher
	announcer RefreshAnnouncer
	sessions  SessionCalendar
	metrics   *metrics.Metrics

	defaults     indicator.Params
	cacheTTL     time.Duration
	historyRange string
	instanceID   string

	ingest        singleflight.Group
	ingestTimeout time.Duration
	staleRetry    time.Duration
	now           func() time.Time

	mu          sync.Mutex
	lastAlerts  map[string]string    // symbol -> day of the last alerted marker
	staleChecks map[string]time.Time // symbol -> last background refresh
}

// New validates opts and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("service: store is required")
	}
	if opts.Defaults == (indicator.Params{}) {
		opts.Defaults = indicator.DefaultParams()
	}
	if err := opts.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("service: default params: %w", err)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.HistoryRange == "" {
		opts.HistoryRange = "max"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics()
	}
	if opts.InstanceID == "" {
		opts.InstanceID = logger.NewRequestID("svc", time.Now())
	}

	return &Service{
		store:         opts.Store,
		cache:         opts.Cache,
		fetcher:       opts.Fetcher,
		notifier:      opts.Notifier,
		publisher:     opts.Publisher,
		announcer:     opts.Announcer,
		sessions:      opts.Sessions,
		metrics:       opts.Metrics,
		defaults:      opts.Defaults,
		cacheTTL:      opts.CacheTTL,
		historyRange:  opts.HistoryRange,
		instanceID:    opts.InstanceID,
		ingestTimeout: 2 * time.Minute,
		staleRetry:    15 * time.Minute,
		now:           time.Now,
		lastAlerts:    make(map[string]string),
		staleChecks:   make(map[string]time.Time),
	}, nil
}

// Defaults returns the parameter set used when a request omits one.
func (s *Service) Defaults() indicator.Params { return s.defaults }

// InstanceID identifies this process in cross-instance refresh events.
func (s *Service) InstanceID() string { return s.instanceID }

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ListSymbols returns every stored symbol.
func (s *Service) ListSymbols(ctx context.Context) ([]string, error) {
	return s.store.ListSymbols(ctx)
}

// History returns symbol's stored bars, ingesting them first when the store
// has none.
func (s *Service) History(ctx context.Context, symbol string) (*model.StockHistory, error) {
	symbol = NormalizeSymbol(symbol)
	bars, err := s.bars(ctx, symbol)
	if err != nil {
		return nil, err
	}

	name, err := s.store.CompanyName(ctx, symbol)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			slog.Warn("company name lookup failed", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
		}
		name = symbol
	}
	return &model.StockHistory{Symbol: symbol, CompanyName: name, Data: bars}, nil
}

// bars reads symbol's bars with lazy ingestion. Concurrent misses for the
// same symbol share one ingestion. Stale data is served as-is while a
// background refresh catches up.
func (s *Service) bars(ctx context.Context, symbol string) ([]model.PriceBar, error) {
	if symbol == "" {
		return nil, ErrUnknownSymbol
	}
	bars, err := s.store.ReadBars(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", symbol, err)
	}
	if len(bars) > 0 {
		if s.stale(symbol, bars[len(bars)-1].Time) {
			go s.refreshStale(symbol)
		}
		return bars, nil
	}
	if s.fetcher == nil {
		return nil, ErrUnknownSymbol
	}

	slog.Info("no stored data, triggering ingestion", append(logger.Attrs(ctx), "symbol", symbol)...)
	// Waiters share the ingestion, so it must not die with the first caller.
	_, err, _ = s.ingest.Do(symbol, func() (any, error) {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ingestTimeout)
		defer cancel()
		_, err := s.Refresh(ictx, symbol)
		return nil, err
	})
	if err != nil {
		if errors.Is(err, collector.ErrSymbolNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		return nil, fmt.Errorf("ingest %s: %w", symbol, err)
	}

	bars, err = s.store.ReadBars(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return bars, nil
}

// stale reports whether symbol is missing a completed session and no
// background refresh was attempted recently.
func (s *Service) stale(symbol, lastDay string) bool {
	if s.sessions == nil || s.fetcher == nil {
		return false
	}
	now := s.now()
	if lastDay >= s.sessions.LastSessionKey(symbol, now.AddDate(0, 0, -1)) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.staleChecks[symbol]; ok && now.Sub(at) < s.staleRetry {
		return false
	}
	s.staleChecks[symbol] = now
	return true
}

func (s *Service) refreshStale(symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.ingestTimeout)
	defer cancel()
	slog.Info("stored data is stale, refreshing in background", "symbol", symbol)
	_, err, _ := s.ingest.Do(symbol, func() (any, error) {
		_, err := s.Refresh(ctx, symbol)
		return nil, err
	})
	if err != nil {
		slog.Warn("background refresh failed", "symbol", symbol, "error", err)
	}
}
