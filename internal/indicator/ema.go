package indicator

import "quant-dashboard/internal/model"

// EMA calculates the Exponential Moving Average of an arbitrary series.
//
// k = 2/(window+1). The first output equals the first input; there is no
// SMA warm-up seed. Output has the same length and times as points.
func EMA(points []model.IndicatorPoint, window int) []model.IndicatorPoint {
	if window < 1 || len(points) == 0 {
		return emptyPoints()
	}

	k := 2.0 / float64(window+1)
	out := make([]model.IndicatorPoint, len(points))
	ema := points[0].Value
	out[0] = model.IndicatorPoint{Time: points[0].Time, Value: ema}
	for i := 1; i < len(points); i++ {
		// EMA = price*k + prev*(1-k)
		ema = points[i].Value*k + ema*(1-k)
		out[i] = model.IndicatorPoint{Time: points[i].Time, Value: ema}
	}
	return out
}
