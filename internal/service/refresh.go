package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"quant-dashboard/internal/logger"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/notification"
	"quant-dashboard/internal/series"
	"quant-dashboard/internal/strategy"
)

// RefreshResult reports one ingestion.
type RefreshResult struct {
	Symbol   string              `json:"symbol"`
	Bars     int                 `json:"bars"`
	First    string              `json:"first,omitempty"`
	Last     string              `json:"last,omitempty"`
	Duration time.Duration       `json:"duration"`
	Alert    *model.SignalMarker `json:"alert,omitempty"`
}

// Refresh downloads symbol's daily history, cleans and validates it, upserts
// it, drops cached dashboards and pushes the new dashboard to subscribers.
// A crossover on the newest bar raises an alert once per day.
func (s *Service) Refresh(ctx context.Context, symbol string) (*RefreshResult, error) {
	symbol = NormalizeSymbol(symbol)
	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}
	start := time.Now()

	raw, err := s.fetcher.FetchDailyBars(ctx, symbol, s.historyRange)
	if err != nil {
		s.metrics.IngestFailures.Inc()
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	bars, err := Prepare(raw)
	if err != nil {
		s.metrics.IngestFailures.Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrBadSourceData, symbol, err)
	}
	if len(bars) == 0 {
		s.metrics.IngestFailures.Inc()
		return nil, fmt.Errorf("%w: %s returned no bars", ErrUnknownSymbol, symbol)
	}

	if _, err := s.store.CompanyName(ctx, symbol); errors.Is(err, model.ErrNotFound) {
		s.saveCompanyName(ctx, symbol)
	}
	if err := s.store.WriteBars(ctx, symbol, bars); err != nil {
		s.metrics.IngestFailures.Inc()
		return nil, fmt.Errorf("write %s: %w", symbol, err)
	}
	s.metrics.BarsIngested.Add(float64(len(bars)))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, symbol); err != nil {
			s.metrics.CacheErrors.Inc()
			slog.Warn("cache invalidate failed", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
		}
	}
	if s.announcer != nil {
		if err := s.announcer.PublishRefresh(ctx, s.instanceID, symbol); err != nil {
			slog.Warn("refresh announce failed", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
		}
	}

	res := &RefreshResult{
		Symbol: symbol,
		Bars:   len(bars),
		First:  bars[0].Time,
		Last:   bars[len(bars)-1].Time,
	}
	res.Alert = s.alertLatest(ctx, symbol, bars)
	s.PushDashboard(ctx, symbol)

	res.Duration = time.Since(start)
	s.metrics.IngestDur.Observe(res.Duration.Seconds())
	slog.Info("refreshed",
		append(logger.Attrs(ctx), "symbol", symbol, "bars", res.Bars, "last", res.Last, "duration", res.Duration)...)
	return res, nil
}

// Prepare turns raw collector output into canonical bars: day keys, ascending,
// one bar per day (last wins), all values finite and non-negative.
func Prepare(raw []model.PriceBar) ([]model.PriceBar, error) {
	bars := series.Normalize(raw)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	bars = series.Dedupe(bars)
	if err := series.Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (s *Service) saveCompanyName(ctx context.Context, symbol string) {
	name, err := s.fetcher.FetchCompanyName(ctx, symbol)
	if err != nil || name == "" {
		name = symbol
	}
	if err := s.store.SaveCompany(ctx, symbol, name); err != nil {
		slog.Warn("save company failed", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
	}
}

// alertLatest notifies when the default crossover fires on the newest bar.
func (s *Service) alertLatest(ctx context.Context, symbol string, bars []model.PriceBar) *model.SignalMarker {
	markers := strategy.DetectCrossovers(bars, strategy.OptionsFromParams(s.defaults))
	if len(markers) == 0 {
		return nil
	}
	last := markers[len(markers)-1]
	latest := bars[len(bars)-1]
	if last.Time != latest.Time {
		return nil
	}

	s.mu.Lock()
	seen := s.lastAlerts[symbol] == last.Time
	s.lastAlerts[symbol] = last.Time
	s.mu.Unlock()
	if seen {
		return &last
	}

	s.metrics.SignalsTotal.WithLabelValues(string(last.Direction)).Inc()
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, notification.SignalAlert(symbol, last, latest.Close)); err != nil {
			slog.Warn("alert delivery failed", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
		}
	}
	return &last
}
