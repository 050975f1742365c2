package indicator

import "quant-dashboard/internal/model"

// SMA calculates the Simple Moving Average of closes over a rolling window.
// The first point is at bar index window-1; output length is
// max(0, len(bars)-window+1). Uses a running sum, so results may differ
// from a naive re-sum by floating-point rounding only.
func SMA(bars []model.PriceBar, window int) []model.IndicatorPoint {
	if window < 1 || len(bars) < window {
		return emptyPoints()
	}

	out := make([]model.IndicatorPoint, 0, len(bars)-window+1)
	w := float64(window)
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= window {
			// Drop the close leaving the window
			sum -= bars[i-window].Close
		}
		if i >= window-1 {
			out = append(out, model.IndicatorPoint{Time: b.Time, Value: sum / w})
		}
	}
	return out
}
