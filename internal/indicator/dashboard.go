package indicator

import (
	"sync"
	"time"

	"quant-dashboard/internal/model"
)

// Dashboard is every indicator series for one bar sequence.
// A nil series means its family is disabled; an empty one means not enough
// history yet.
type Dashboard struct {
	Symbol   string                 `json:"symbol,omitempty"`
	Params   Params                 `json:"params"`
	Bars     int                    `json:"bars"`
	SMAShort []model.IndicatorPoint `json:"sma_short"`
	SMALong  []model.IndicatorPoint `json:"sma_long"`
	RSI      []model.IndicatorPoint `json:"rsi"`
	MACD     *model.MACDResult      `json:"macd"`
	Bands    []model.BandPoint      `json:"bollinger"`
	Markers  []model.SignalMarker   `json:"markers"`
}

// Observer receives the compute duration of each indicator family.
type Observer func(f Family, d time.Duration)

// Compute runs every enabled family over bars. Families share no state, so
// they run concurrently; observe may be nil.
func Compute(bars []model.PriceBar, p Params, observe Observer) Dashboard {
	d := Dashboard{Params: p, Bars: len(bars)}

	var wg sync.WaitGroup
	run := func(f Family, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			fn()
			if observe != nil {
				observe(f, time.Since(start))
			}
		}()
	}

	if p.EnableSMA {
		run(FamilySMA, func() {
			d.SMAShort = SMA(bars, p.SMAShort)
			d.SMALong = SMA(bars, p.SMALong)
		})
	}
	if p.EnableRSI {
		run(FamilyRSI, func() { d.RSI = RSI(bars, p.RSIPeriod) })
	}
	if p.EnableMACD {
		run(FamilyMACD, func() {
			m := MACD(bars, p.MACDFast, p.MACDSlow, p.MACDSignal)
			d.MACD = &m
		})
	}
	if p.EnableBB {
		run(FamilyBB, func() { d.Bands = BollingerBands(bars, p.BBWindow, p.BBStd) })
	}

	wg.Wait()
	return d
}
