package strategy

import (
	"log/slog"

	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/series"
)

// CrossoverOptions configures the SMA crossover detector.
type CrossoverOptions struct {
	ShortWindow   int
	LongWindow    int
	UseRSI        bool
	RSIWindow     int
	RSIBuyCeiling float64
}

// DefaultCrossoverOptions is SMA 5/20 with an RSI(14) < 70 buy filter.
func DefaultCrossoverOptions() CrossoverOptions {
	return CrossoverOptions{
		ShortWindow:   5,
		LongWindow:    20,
		UseRSI:        true,
		RSIWindow:     indicator.DefaultRSIWindow,
		RSIBuyCeiling: 70,
	}
}

// OptionsFromParams derives crossover options from dashboard params.
// The RSI filter follows the RSI enable flag.
func OptionsFromParams(p indicator.Params) CrossoverOptions {
	return CrossoverOptions{
		ShortWindow:   p.SMAShort,
		LongWindow:    p.SMALong,
		UseRSI:        p.EnableRSI,
		RSIWindow:     p.RSIPeriod,
		RSIBuyCeiling: p.RSIBuyCeiling,
	}
}

// DetectCrossovers scans for SMA golden/dead crosses.
//
// Buy: yesterday short ≤ long and today short > long, plus today's RSI below
// the ceiling when the filter is on. Sell: yesterday short ≥ long and today
// short < long; RSI never gates a sell. An index with any SMA value missing
// emits nothing. At most one marker per index.
func DetectCrossovers(bars []model.PriceBar, opts CrossoverOptions) []model.SignalMarker {
	markers := []model.SignalMarker{}
	if opts.ShortWindow < 1 || opts.LongWindow < 1 {
		return markers
	}

	short := series.DateIndex(indicator.SMA(bars, opts.ShortWindow))
	long := series.DateIndex(indicator.SMA(bars, opts.LongWindow))
	var rsi map[string]float64
	if opts.UseRSI {
		rsi = series.DateIndex(indicator.RSI(bars, opts.RSIWindow))
	}

	for i := opts.LongWindow; i < len(bars); i++ {
		today, yesterday := bars[i].Time, bars[i-1].Time

		s, ok1 := short[today]
		l, ok2 := long[today]
		prevS, ok3 := short[yesterday]
		prevL, ok4 := long[yesterday]
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}

		// Golden cross: short crosses above long
		if prevS <= prevL && s > l {
			if !opts.UseRSI {
				markers = append(markers, model.SignalMarker{Time: today, Direction: model.Buy, Reason: model.ReasonGoldenCross})
				continue
			}
			if r, ok := rsi[today]; ok && r < opts.RSIBuyCeiling {
				markers = append(markers, model.SignalMarker{Time: today, Direction: model.Buy, Reason: model.ReasonGoldenCrossFiltered})
			} else {
				slog.Debug("[strategy] golden cross filtered by RSI", "time", today, "rsi", r, "defined", ok)
			}
			continue
		}

		// Dead cross: short crosses below long
		if prevS >= prevL && s < l {
			markers = append(markers, model.SignalMarker{Time: today, Direction: model.Sell, Reason: model.ReasonDeadCross})
		}
	}
	return markers
}

// Crossover is the Detector form of DetectCrossovers.
type Crossover struct {
	opts CrossoverOptions
}

// NewCrossover creates a crossover detector.
func NewCrossover(opts CrossoverOptions) *Crossover {
	return &Crossover{opts: opts}
}

func (c *Crossover) Name() string { return "SMA_Crossover" }

func (c *Crossover) Detect(bars []model.PriceBar) []model.SignalMarker {
	return DetectCrossovers(bars, c.opts)
}
