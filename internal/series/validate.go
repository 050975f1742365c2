package series

import (
	"errors"
	"fmt"
	"math"

	"quant-dashboard/internal/model"
)

var (
	ErrUnsorted      = errors.New("bars not sorted ascending by time")
	ErrDuplicateDate = errors.New("duplicate bar date")
	ErrNonFinite     = errors.New("non-finite or negative price")
)

// ValidationError reports the first malformed bar.
type ValidationError struct {
	Index int
	Time  string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bar %d (%s): %v", e.Index, e.Time, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks ordering, uniqueness and numeric sanity of bars.
// OHLC consistency (high ≥ low etc.) is deliberately not enforced.
func Validate(bars []model.PriceBar) error {
	for i, b := range bars {
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return &ValidationError{Index: i, Time: b.Time, Err: ErrNonFinite}
			}
		}
		if i == 0 {
			continue
		}
		switch prev := bars[i-1].Time; {
		case b.Time == prev:
			return &ValidationError{Index: i, Time: b.Time, Err: ErrDuplicateDate}
		case b.Time < prev:
			return &ValidationError{Index: i, Time: b.Time, Err: ErrUnsorted}
		}
	}
	return nil
}
