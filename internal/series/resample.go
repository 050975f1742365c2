package series

import (
	"fmt"
	"time"

	"quant-dashboard/internal/model"
)

// Interval is a bar resolution.
type Interval string

const (
	Daily   Interval = "1d"
	Weekly  Interval = "1wk"
	Monthly Interval = "1mo"
)

// ParseInterval accepts "", "1d", "1wk" and "1mo". Empty means Daily.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case "", Daily:
		return Daily, nil
	case Weekly, Monthly:
		return Interval(s), nil
	}
	return "", fmt.Errorf("unknown interval %q (want 1d, 1wk or 1mo)", s)
}

// bucket returns the day key that starts iv's bucket containing day.
func (iv Interval) bucket(day time.Time) time.Time {
	switch iv {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

// Resample folds canonical daily bars into iv buckets. Each output bar is
// keyed by the first trading day in its bucket: open of the first day, close
// of the last, extreme high/low, summed volume. Bars whose Time is not a day
// key are skipped. Daily returns bars unchanged.
func Resample(bars []model.PriceBar, iv Interval) []model.PriceBar {
	if iv == Daily || iv == "" {
		return bars
	}

	out := make([]model.PriceBar, 0, len(bars)/4+1)
	var (
		cur     model.PriceBar
		bucket  time.Time
		started bool
	)
	for _, b := range bars {
		day, err := time.Parse(model.DayLayout, b.Time)
		if err != nil {
			continue
		}
		bk := iv.bucket(day)
		if started && bk.Equal(bucket) {
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		if started {
			out = append(out, cur)
		}
		cur, bucket, started = b, bk, true
	}
	if started {
		out = append(out, cur)
	}
	return out
}
