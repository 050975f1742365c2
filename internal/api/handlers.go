package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quant-dashboard/internal/backtest"
	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/logger"
	"quant-dashboard/internal/series"
	"quant-dashboard/internal/service"
)

// BacktestRequest is the POST /api/backtest body. Omitted params keep their
// defaults.
type BacktestRequest struct {
	Ticker string          `json:"ticker"`
	Params json.RawMessage `json:"params"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (h *handlers) listStocks(c *gin.Context) {
	symbols, err := h.svc.ListSymbols(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

// history serves daily bars, optionally resampled with ?interval=1wk|1mo.
func (h *handlers) history(c *gin.Context) {
	iv, err := series.ParseInterval(c.Query("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	hist, err := h.svc.History(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	hist.Data = series.Resample(hist.Data, iv)
	c.JSON(http.StatusOK, hist)
}

func (h *handlers) indicators(c *gin.Context) {
	p, err := ParseParams(c.Request.URL.Query(), h.svc.Defaults())
	if err != nil {
		fail(c, err)
		return
	}
	d, err := h.svc.Dashboard(c.Request.Context(), c.Param("symbol"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handlers) signals(c *gin.Context) {
	p, err := ParseParams(c.Request.URL.Query(), h.svc.Defaults())
	if err != nil {
		fail(c, err)
		return
	}
	markers, err := h.svc.Signals(c.Request.Context(), c.Param("symbol"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": service.NormalizeSymbol(c.Param("symbol")), "markers": markers})
}

func (h *handlers) refresh(c *gin.Context) {
	res, err := h.svc.Refresh(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) backtest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if service.NormalizeSymbol(req.Ticker) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": "ticker is required"})
		return
	}

	p := backtest.DefaultParams()
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
	}

	res, err := h.svc.Backtest(c.Request.Context(), req.Ticker, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// fail maps service errors onto HTTP status codes.
func fail(c *gin.Context, err error) {
	var (
		pe *indicator.ParamError
		ve *series.ValidationError
	)
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, service.ErrBadSourceData):
		status, msg = http.StatusBadGateway, "Data source returned invalid data"
	case errors.As(err, &pe), errors.As(err, &ve):
		status, msg = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrUnknownSymbol), errors.Is(err, backtest.ErrNoData):
		status, msg = http.StatusNotFound, "Symbol not found or data unavailable"
	case errors.Is(err, service.ErrNoFetcher):
		status, msg = http.StatusServiceUnavailable, "Ingestion unavailable"
	}
	if status >= 500 {
		slog.Error("request failed", append(logger.Attrs(c.Request.Context()), "path", c.Request.URL.Path, "error", err)...)
	}
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}
