// Package api serves the dashboard over HTTP: stock history, indicator
// dashboards, signals, refreshes, backtests and the websocket stream.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"quant-dashboard/internal/backtest"
	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/metrics"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/service"
)

// Service is the application layer the handlers call.
type Service interface {
	Defaults() indicator.Params
	ListSymbols(ctx context.Context) ([]string, error)
	History(ctx context.Context, symbol string) (*model.StockHistory, error)
	Dashboard(ctx context.Context, symbol string, p indicator.Params) (*indicator.Dashboard, error)
	Signals(ctx context.Context, symbol string, p indicator.Params) ([]model.SignalMarker, error)
	Refresh(ctx context.Context, symbol string) (*service.RefreshResult, error)
	Backtest(ctx context.Context, symbol string, p backtest.Params) (*backtest.Result, error)
}

// Deps wires the router. Only Service is required.
type Deps struct {
	Service Service
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	WS      http.HandlerFunc
	Debug   bool
}

type handlers struct {
	svc Service
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	if !d.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(), cors())
	if d.Metrics != nil {
		r.Use(instrument(d.Metrics))
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.Health != nil {
		r.GET("/healthz", gin.WrapH(d.Health))
	}
	if d.WS != nil {
		r.GET("/ws", gin.WrapF(d.WS))
	}

	h := &handlers{svc: d.Service}
	api := r.Group("/api")
	api.GET("/health", h.health)
	api.POST("/backtest", h.backtest)

	stocks := api.Group("/stocks")
	stocks.GET("/list", h.listStocks)
	stocks.GET("/:symbol/history", h.history)
	stocks.GET("/:symbol/indicators", h.indicators)
	stocks.GET("/:symbol/signals", h.signals)
	stocks.POST("/:symbol/refresh", h.refresh)

	return r
}
