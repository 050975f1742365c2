package indicator

import (
	"math"

	"quant-dashboard/internal/model"
)

// Bollinger defaults.
const (
	DefaultBBWindow     = 20
	DefaultBBMultiplier = 2.0
)

// stdDev is the population standard deviation of closes around mean.
func stdDev(bars []model.PriceBar, mean float64) float64 {
	if len(bars) == 0 {
		return 0
	}
	variance := 0.0
	for _, b := range bars {
		d := b.Close - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(bars)))
}

// BollingerBands computes middle = SMA(window) and upper/lower =
// middle ± multiplier·σ, where σ is the population standard deviation of the
// same window. Windowing matches SMA: first point at index window-1.
func BollingerBands(bars []model.PriceBar, window int, multiplier float64) []model.BandPoint {
	middle := SMA(bars, window)
	out := make([]model.BandPoint, len(middle))
	for j, m := range middle {
		i := j + window - 1
		sd := stdDev(bars[i-window+1:i+1], m.Value)
		out[j] = model.BandPoint{
			Time:   m.Time,
			Upper:  m.Value + multiplier*sd,
			Middle: m.Value,
			Lower:  m.Value - multiplier*sd,
		}
	}
	return out
}
