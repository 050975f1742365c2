// Package series shapes raw price bars into the canonical form the indicator
// pipeline expects: day-resolution keys, ascending order, one bar per day.
//
// The indicator functions never validate their input. Validate is an opt-in
// fail-fast check used on the ingest path.
package series

import (
	"strings"

	"quant-dashboard/internal/model"
)

// DayKey trims any time-of-day suffix from an ISO-8601 timestamp.
// "2025-01-25T00:00:00Z" → "2025-01-25". Plain day keys pass through.
func DayKey(ts string) string {
	if i := strings.IndexAny(ts, "T "); i >= 0 {
		return ts[:i]
	}
	return ts
}

// Normalize returns a copy of bars with every Time reduced to its day key.
func Normalize(bars []model.PriceBar) []model.PriceBar {
	out := make([]model.PriceBar, len(bars))
	for i, b := range bars {
		b.Time = DayKey(b.Time)
		out[i] = b
	}
	return out
}

// Dedupe drops earlier bars that share a day key with a later bar (keep-last).
// Input must already be sorted ascending.
func Dedupe(bars []model.PriceBar) []model.PriceBar {
	out := make([]model.PriceBar, 0, len(bars))
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Time == b.Time {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// Closes maps bars to their close series.
func Closes(bars []model.PriceBar) []model.IndicatorPoint {
	out := make([]model.IndicatorPoint, len(bars))
	for i, b := range bars {
		out[i] = model.IndicatorPoint{Time: b.Time, Value: b.Close}
	}
	return out
}

// DateIndex builds a date-keyed lookup over an indicator series.
func DateIndex(points []model.IndicatorPoint) map[string]float64 {
	m := make(map[string]float64, len(points))
	for _, p := range points {
		m[p.Time] = p.Value
	}
	return m
}
