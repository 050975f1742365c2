// Package indicator computes technical indicator series over daily price bars.
//
// Every function is a pure transform: it never mutates or retains the input,
// and returns a freshly allocated result. Insufficient history yields an empty
// (non-nil) result, never an error. Non-positive windows are treated the same
// way; Params.Validate is the place that reports them as input errors.
package indicator

import "quant-dashboard/internal/model"

// Family identifies an indicator group for enable flags and metrics labels.
type Family string

const (
	FamilySMA  Family = "sma"
	FamilyRSI  Family = "rsi"
	FamilyMACD Family = "macd"
	FamilyBB   Family = "bb"
)

func emptyPoints() []model.IndicatorPoint { return []model.IndicatorPoint{} }
