package model

// IndicatorPoint is one scalar derived value keyed to a bar's date.
type IndicatorPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// BandPoint is one Bollinger envelope sample.
type BandPoint struct {
	Time   string  `json:"time"`
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// MACDResult holds three parallel, equal-length series time-aligned to the input bars.
type MACDResult struct {
	MACD      []IndicatorPoint `json:"macd"`
	Signal    []IndicatorPoint `json:"signal"`
	Histogram []IndicatorPoint `json:"histogram"`
}

// Len returns the common length of the three series.
func (m MACDResult) Len() int { return len(m.MACD) }
