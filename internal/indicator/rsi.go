package indicator

import "quant-dashboard/internal/model"

// DefaultRSIWindow is the classic 14-day RSI period.
const DefaultRSIWindow = 14

// RSI calculates the Relative Strength Index using Wilder's smoothing.
//
// The seed averages are simple means of the first window day-over-day
// changes (bars 1..window). The recurrence then runs from bar window to the
// end, so the change at bar window feeds both the seed and the first
// smoothing step. First output is at bar window; length is len(bars)-window.
// A zero average loss yields exactly 100.
func RSI(bars []model.PriceBar, window int) []model.IndicatorPoint {
	if window < 1 || len(bars) <= window {
		return emptyPoints()
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= window; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	p := float64(window)
	avgGain := gains / p
	avgLoss := losses / p

	out := make([]model.IndicatorPoint, 0, len(bars)-window)
	for i := window; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		// Wilder's smoothing: avg = (prevAvg*(period-1) + x) / period
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p

		out = append(out, model.IndicatorPoint{Time: bars[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
