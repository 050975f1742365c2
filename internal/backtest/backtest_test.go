package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/model"
)

func barsFromCloses(closes ...float64) []model.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{
			Time:   start.AddDate(0, 0, i).Format(model.DayLayout),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

// flatThenRise: 20 days at 100, then 101..120.
func flatThenRise() []model.PriceBar {
	closes := make([]float64, 0, 40)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	for i := 1; i <= 20; i++ {
		closes = append(closes, 100+float64(i))
	}
	return barsFromCloses(closes...)
}

// ────────────────────────────────────────────────────────────
// Run
// ────────────────────────────────────────────────────────────

func TestRun_EntersOnCrossAndHolds(t *testing.T) {
	p := DefaultParams()
	p.UseRSI = false
	bars := flatThenRise()

	res, err := Run("TEST", bars, p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Results) != len(bars) {
		t.Fatalf("expected %d points, got %d", len(bars), len(res.Results))
	}
	for i := 0; i < 20; i++ {
		if res.Results[i].Position != 0 || res.Results[i].Value != 1 {
			t.Fatalf("day %d: expected flat equity 1, got pos=%d value=%v", i, res.Results[i].Position, res.Results[i].Value)
		}
	}
	if res.Results[20].Position != 1 {
		t.Fatalf("expected entry on day 20")
	}

	last := res.Results[len(res.Results)-1]
	want := math.Round(120.0/101.0*1e4) / 1e4
	if last.Value != want {
		t.Errorf("final equity: expected %v, got %v", want, last.Value)
	}
	if res.FinalReturn != 18.81 {
		t.Errorf("final return: expected 18.81, got %v", res.FinalReturn)
	}
	if res.TotalTrades != 1 || res.WinRate != 0 {
		t.Errorf("expected 1 open trade and no closed win rate, got trades=%d win=%v", res.TotalTrades, res.WinRate)
	}
	if len(res.Trades) != 1 || !res.Trades[0].Open || res.Trades[0].EntryTime != bars[20].Time {
		t.Errorf("unexpected trades: %+v", res.Trades)
	}
	if len(res.Markers) != 1 || res.Markers[0].Direction != model.Buy {
		t.Errorf("expected a single buy marker, got %+v", res.Markers)
	}
}

func TestRun_RSIFilterBlocksOverboughtEntry(t *testing.T) {
	res, err := Run("TEST", flatThenRise(), DefaultParams())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// RSI of a pure uptrend is 100, above the 60 entry threshold.
	for _, pt := range res.Results {
		if pt.Position != 0 {
			t.Fatalf("unexpected position on %s", pt.Time)
		}
	}
	if res.FinalReturn != 0 || res.TotalTrades != 0 {
		t.Errorf("expected no trades, got return=%v trades=%d", res.FinalReturn, res.TotalTrades)
	}
}

func TestRun_RoundTripClosesTrade(t *testing.T) {
	closes := make([]float64, 0, 60)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	for i := 1; i <= 10; i++ {
		closes = append(closes, 100+float64(i))
	}
	for i := 1; i <= 20; i++ {
		closes = append(closes, 110-2*float64(i))
	}
	p := DefaultParams()
	p.UseRSI = false

	res, err := Run("TEST", barsFromCloses(closes...), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Open {
		t.Fatalf("expected one closed trade, got %+v", res.Trades)
	}
	if res.TotalTrades != 1 {
		t.Errorf("expected 1 trade, got %d", res.TotalTrades)
	}
	if len(res.Markers) != 2 || res.Markers[1].Direction != model.Sell {
		t.Errorf("expected buy then sell, got %+v", res.Markers)
	}
	tr := res.Trades[0]
	wantPct := round((tr.ExitPrice/tr.EntryPrice-1)*100, 2)
	if round(tr.ReturnPct, 2) != wantPct {
		t.Errorf("trade return: expected %v, got %v", wantPct, tr.ReturnPct)
	}
	if math.Abs(res.FinalReturn-wantPct) > 0.011 {
		t.Errorf("single trade should drive final return: trade=%v final=%v", wantPct, res.FinalReturn)
	}
}

func TestRun_Annotations(t *testing.T) {
	p := DefaultParams()
	res, err := Run("TEST", flatThenRise(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, pt := range res.Results {
		if (pt.RSI != nil) != (i >= p.RSIPeriod) {
			t.Errorf("day %d: rsi presence mismatch", i)
		}
		if (pt.BBUpper != nil) != (i >= p.BBWindow-1) {
			t.Errorf("day %d: bollinger presence mismatch", i)
		}
		if pt.MACD == nil || pt.MACDHist == nil {
			t.Errorf("day %d: macd should be defined for every bar", i)
		}
	}
	if got := *res.Results[19].BBMiddle; got != 100 {
		t.Errorf("bb middle on flat window: expected 100, got %v", got)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := Run("TEST", nil, DefaultParams()); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}

	p := DefaultParams()
	p.SMAShort = 30
	_, err := Run("TEST", flatThenRise(), p)
	var pe *indicator.ParamError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParamError, got %v", err)
	}
	if pe.Field != "sma_short" {
		t.Errorf("expected sma_short field, got %s", pe.Field)
	}
}

// ────────────────────────────────────────────────────────────
// Ledger
// ────────────────────────────────────────────────────────────

func TestLedger(t *testing.T) {
	bars := barsFromCloses(100, 110, 120, 90, 100)
	l := NewLedger()

	if got := l.Exit(bars[0]); got != 0 {
		t.Errorf("exit while flat: expected 0, got %v", got)
	}
	l.Enter(bars[0])
	l.Enter(bars[1]) // ignored, already long
	if got := l.Exit(bars[2]); math.Abs(got-20) > 1e-9 {
		t.Errorf("expected +20%%, got %v", got)
	}
	l.Enter(bars[2])
	l.Exit(bars[3])
	l.Enter(bars[3])

	s := l.Summary()
	if s.TotalTrades != 3 || s.ClosedTrades != 2 || s.Wins != 1 || s.WinRate != 50 {
		t.Errorf("unexpected summary: %+v", s)
	}
	trades := l.Trades(bars[4])
	if len(trades) != 3 || !trades[2].Open {
		t.Fatalf("expected open trade last, got %+v", trades)
	}
	if math.Abs(trades[2].ReturnPct-100.0/9.0) > 1e-9 {
		t.Errorf("open trade mark: expected %v, got %v", 100.0/9.0, trades[2].ReturnPct)
	}
}

func TestParams_Dashboard(t *testing.T) {
	p := DefaultParams()
	p.UseRSI = false
	d := p.Dashboard()
	if d.EnableRSI || !d.EnableSMA || d.RSIBuyCeiling != 60 || d.MACDSignal != p.MACDSignal {
		t.Errorf("unexpected dashboard params %+v", d)
	}

	p.SMAShort = p.SMALong
	if err := p.Validate(); err == nil {
		t.Error("expected validation error for sma_short >= sma_long")
	}
}
