// Package backtest runs a position-based, long-only SMA crossover simulation
// over daily bars and reports the equity curve with indicator annotations.
//
// Entry: flat, short SMA above long SMA and (optionally) RSI below the buy
// threshold. Exit: long and short SMA below long SMA. A position held on day
// i earns close[i+1]/close[i]-1.
package backtest

import (
	"errors"
	"fmt"
	"math"

	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/series"
)

// ErrNoData is returned when there are no bars to simulate.
var ErrNoData = errors.New("no data")

// Params configures a backtest. JSON names follow the dashboard's
// query parameters.
type Params struct {
	SMAShort   int     `json:"sma_short"`
	SMALong    int     `json:"sma_long"`
	RSIPeriod  int     `json:"rsi_period"`
	RSIBuyK    float64 `json:"rsi_buy_k"`
	UseRSI     bool    `json:"use_rsi"`
	MACDFast   int     `json:"macd_fast"`
	MACDSlow   int     `json:"macd_slow"`
	MACDSignal int     `json:"macd_sig"`
	BBWindow   int     `json:"bb_window"`
	BBStd      float64 `json:"bb_std"`
}

// DefaultParams is SMA 5/20 with an RSI(14) < 60 entry filter.
func DefaultParams() Params {
	return Params{
		SMAShort:   5,
		SMALong:    20,
		RSIPeriod:  indicator.DefaultRSIWindow,
		RSIBuyK:    60,
		UseRSI:     true,
		MACDFast:   indicator.DefaultMACDFast,
		MACDSlow:   indicator.DefaultMACDSlow,
		MACDSignal: indicator.DefaultMACDSignal,
		BBWindow:   indicator.DefaultBBWindow,
		BBStd:      indicator.DefaultBBMultiplier,
	}
}

// Dashboard returns the dashboard parameters that chart the same indicators,
// every family enabled and the RSI filter mirrored.
func (p Params) Dashboard() indicator.Params {
	return indicator.Params{
		EnableSMA:     true,
		EnableRSI:     p.UseRSI,
		EnableMACD:    true,
		EnableBB:      true,
		SMAShort:      p.SMAShort,
		SMALong:       p.SMALong,
		RSIPeriod:     p.RSIPeriod,
		RSIBuyCeiling: p.RSIBuyK,
		MACDFast:      p.MACDFast,
		MACDSlow:      p.MACDSlow,
		MACDSignal:    p.MACDSignal,
		BBWindow:      p.BBWindow,
		BBStd:         p.BBStd,
	}
}

// Validate reuses the dashboard range checks.
func (p Params) Validate() error {
	if err := p.Dashboard().Validate(); err != nil {
		return fmt.Errorf("backtest params: %w", err)
	}
	return nil
}

// Point is one day of the equity curve. Indicator fields are nil where the
// indicator is not yet defined.
type Point struct {
	Time     string   `json:"time"`
	Value    float64  `json:"value"`
	Position int      `json:"position"`
	RSI      *float64 `json:"rsi"`
	MACD     *float64 `json:"macd"`
	MACDHist *float64 `json:"macd_h"`
	BBUpper  *float64 `json:"bb_u"`
	BBMiddle *float64 `json:"bb_m"`
	BBLower  *float64 `json:"bb_l"`
}

// Result is the backtest report.
type Result struct {
	Ticker      string               `json:"ticker"`
	Results     []Point              `json:"results"`
	FinalReturn float64              `json:"final_return"`
	TotalTrades int                  `json:"total_trades"`
	WinRate     float64              `json:"win_rate"`
	Trades      []Trade              `json:"trades"`
	Markers     []model.SignalMarker `json:"markers"`
}

// Run simulates p over bars.
func Run(ticker string, bars []model.PriceBar, p Params) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	short := series.DateIndex(indicator.SMA(bars, p.SMAShort))
	long := series.DateIndex(indicator.SMA(bars, p.SMALong))
	rsi := series.DateIndex(indicator.RSI(bars, p.RSIPeriod))
	macd := indicator.MACD(bars, p.MACDFast, p.MACDSlow, p.MACDSignal)
	bands := make(map[string]model.BandPoint)
	for _, b := range indicator.BollingerBands(bars, p.BBWindow, p.BBStd) {
		bands[b.Time] = b
	}

	ledger := NewLedger()
	markers := []model.SignalMarker{}
	positions := make([]int, len(bars))
	for i, b := range bars {
		s, okS := short[b.Time]
		l, okL := long[b.Time]
		r, okR := rsi[b.Time]
		if !okS || !okL || (p.UseRSI && !okR) {
			continue
		}

		switch {
		case !ledger.Long() && s > l && (!p.UseRSI || r < p.RSIBuyK):
			ledger.Enter(b)
			markers = append(markers, model.SignalMarker{Time: b.Time, Direction: model.Buy, Reason: "backtest-entry"})
		case ledger.Long() && s < l:
			ledger.Exit(b)
			markers = append(markers, model.SignalMarker{Time: b.Time, Direction: model.Sell, Reason: "backtest-exit"})
		}
		if ledger.Long() {
			positions[i] = 1
		}
	}

	res := &Result{
		Ticker:  ticker,
		Results: make([]Point, len(bars)),
		Markers: markers,
	}

	equity := 1.0
	for i, b := range bars {
		ret := 0.0
		if i+1 < len(bars) && b.Close != 0 {
			ret = bars[i+1].Close/b.Close - 1
		}
		equity *= 1 + ret*float64(positions[i])

		pt := Point{Time: b.Time, Value: round(equity, 4), Position: positions[i]}
		if v, ok := rsi[b.Time]; ok {
			pt.RSI = ptr(round(v, 2))
		}
		if macd.Len() > 0 {
			pt.MACD = ptr(round(macd.MACD[i].Value, 2))
			pt.MACDHist = ptr(round(macd.Histogram[i].Value, 2))
		}
		if bb, ok := bands[b.Time]; ok {
			pt.BBUpper = ptr(round(bb.Upper, 2))
			pt.BBMiddle = ptr(round(bb.Middle, 2))
			pt.BBLower = ptr(round(bb.Lower, 2))
		}
		res.Results[i] = pt
	}

	res.FinalReturn = round((equity-1)*100, 2)
	res.Trades = ledger.Trades(bars[len(bars)-1])
	sum := ledger.Summary()
	res.TotalTrades = sum.TotalTrades
	res.WinRate = sum.WinRate
	return res, nil
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}

func ptr(v float64) *float64 { return &v }
