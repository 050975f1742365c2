package indicator

import (
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/series"
)

// MACD defaults (12, 26, 9).
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACD computes the MACD line (EMA fast − EMA slow), its signal EMA and the
// histogram. All three series span every input bar. Fewer than slow bars
// yields an all-empty result.
func MACD(bars []model.PriceBar, fast, slow, signal int) model.MACDResult {
	if fast < 1 || slow < 1 || signal < 1 || len(bars) < slow {
		return model.MACDResult{MACD: emptyPoints(), Signal: emptyPoints(), Histogram: emptyPoints()}
	}

	closes := series.Closes(bars)
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	line := make([]model.IndicatorPoint, len(closes))
	for i, c := range closes {
		line[i] = model.IndicatorPoint{Time: c.Time, Value: emaFast[i].Value - emaSlow[i].Value}
	}

	sig := EMA(line, signal)
	hist := make([]model.IndicatorPoint, len(line))
	for i, m := range line {
		hist[i] = model.IndicatorPoint{Time: m.Time, Value: m.Value - sig[i].Value}
	}

	return model.MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
