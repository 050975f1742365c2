package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"quant-dashboard/internal/backtest"
	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/logger"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/strategy"
)

// Dashboard returns every enabled indicator for symbol plus crossover markers
// (when SMA is enabled). Results are cached per symbol and parameter set;
// cache failures fall through to direct computation.
func (s *Service) Dashboard(ctx context.Context, symbol string, p indicator.Params) (*indicator.Dashboard, error) {
	symbol = NormalizeSymbol(symbol)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	key := model.DashboardKey(symbol, p.Key())

	if d := s.cached(ctx, key); d != nil {
		s.metrics.DashboardsTotal.WithLabelValues("cache").Inc()
		return d, nil
	}

	bars, err := s.bars(ctx, symbol)
	if err != nil {
		return nil, err
	}
	d := s.compute(symbol, bars, p)
	s.metrics.DashboardsTotal.WithLabelValues("computed").Inc()

	if s.cache != nil {
		if data, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				s.metrics.CacheErrors.Inc()
				slog.Debug("cache set failed", append(logger.Attrs(ctx), "key", key, "error", err)...)
			}
		}
	}
	return d, nil
}

func (s *Service) cached(ctx context.Context, key string) *indicator.Dashboard {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.CacheErrors.Inc()
		slog.Debug("cache get failed", append(logger.Attrs(ctx), "key", key, "error", err)...)
		return nil
	}
	if data == nil {
		return nil
	}
	var d indicator.Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		slog.Warn("corrupt cache entry", append(logger.Attrs(ctx), "key", key, "error", err)...)
		return nil
	}
	return &d
}

func (s *Service) compute(symbol string, bars []model.PriceBar, p indicator.Params) *indicator.Dashboard {
	d := indicator.Compute(bars, p, func(f indicator.Family, dur time.Duration) {
		s.metrics.ObserveIndicator(string(f), dur)
	})
	d.Symbol = symbol
	if p.EnableSMA {
		d.Markers = strategy.NewEngine(strategy.NewCrossover(strategy.OptionsFromParams(p))).Run(bars)
	}
	return &d
}

// Signals returns only the crossover markers for symbol under p.
func (s *Service) Signals(ctx context.Context, symbol string, p indicator.Params) ([]model.SignalMarker, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	bars, err := s.bars(ctx, NormalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	return strategy.DetectCrossovers(bars, strategy.OptionsFromParams(p)), nil
}

// PushDashboard sends the default dashboard for symbol to live subscribers.
func (s *Service) PushDashboard(ctx context.Context, symbol string) {
	if s.publisher == nil {
		return
	}
	d, err := s.Dashboard(ctx, symbol, s.defaults)
	if err != nil {
		slog.Warn("push dashboard failed", append(logger.Attrs(ctx), "symbol", symbol, "error", err)...)
		return
	}
	s.publisher.Publish(d.Symbol, "dashboard", d)
}

// Backtest simulates the crossover strategy on symbol's stored history.
func (s *Service) Backtest(ctx context.Context, symbol string, p backtest.Params) (*backtest.Result, error) {
	symbol = NormalizeSymbol(symbol)
	bars, err := s.bars(ctx, symbol)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := backtest.Run(symbol, bars, p)
	if err != nil {
		return nil, err
	}
	s.metrics.BacktestsTotal.Inc()
	s.metrics.BacktestDur.Observe(time.Since(start).Seconds())
	slog.Info("backtest complete",
		append(logger.Attrs(ctx), "symbol", symbol, "final_return", res.FinalReturn, "trades", res.TotalTrades)...)
	return res, nil
}
