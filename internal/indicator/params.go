package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// Params is the dashboard configuration surface: per-family enable flags
// plus every window length and threshold. JSON names match the web client's
// URL query parameters.
type Params struct {
	EnableSMA  bool `json:"enable_sma" yaml:"enable_sma"`
	EnableRSI  bool `json:"enable_rsi" yaml:"enable_rsi"`
	EnableMACD bool `json:"enable_macd" yaml:"enable_macd"`
	EnableBB   bool `json:"enable_bb" yaml:"enable_bb"`

	SMAShort      int     `json:"sma_short" yaml:"sma_short"`
	SMALong       int     `json:"sma_long" yaml:"sma_long"`
	RSIPeriod     int     `json:"rsi_period" yaml:"rsi_period"`
	RSIBuyCeiling float64 `json:"rsi_buy_k" yaml:"rsi_buy_k"`
	MACDFast      int     `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow      int     `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal    int     `json:"macd_sig" yaml:"macd_sig"`
	BBWindow      int     `json:"bb_window" yaml:"bb_window"`
	BBStd         float64 `json:"bb_std" yaml:"bb_std"`
}

// DefaultParams returns the dashboard defaults: every family enabled,
// SMA 5/20, RSI 14 with a 70 buy ceiling, MACD 12/26/9, Bollinger 20/2.
func DefaultParams() Params {
	return Params{
		EnableSMA:     true,
		EnableRSI:     true,
		EnableMACD:    true,
		EnableBB:      true,
		SMAShort:      5,
		SMALong:       20,
		RSIPeriod:     DefaultRSIWindow,
		RSIBuyCeiling: 70,
		MACDFast:      DefaultMACDFast,
		MACDSlow:      DefaultMACDSlow,
		MACDSignal:    DefaultMACDSignal,
		BBWindow:      DefaultBBWindow,
		BBStd:         DefaultBBMultiplier,
	}
}

// ParamError reports an out-of-range configuration value.
type ParamError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Validate checks every window and threshold, enabled or not.
func (p Params) Validate() error {
	windows := []struct {
		name string
		v    int
	}{
		{"sma_short", p.SMAShort},
		{"sma_long", p.SMALong},
		{"rsi_period", p.RSIPeriod},
		{"macd_fast", p.MACDFast},
		{"macd_slow", p.MACDSlow},
		{"macd_sig", p.MACDSignal},
		{"bb_window", p.BBWindow},
	}
	for _, w := range windows {
		if w.v < 1 {
			return &ParamError{Field: w.name, Value: w.v, Reason: "window must be >= 1"}
		}
	}
	if p.SMAShort >= p.SMALong {
		return &ParamError{Field: "sma_short", Value: p.SMAShort, Reason: "must be less than sma_long"}
	}
	if p.MACDFast >= p.MACDSlow {
		return &ParamError{Field: "macd_fast", Value: p.MACDFast, Reason: "must be less than macd_slow"}
	}
	if p.BBStd <= 0 {
		return &ParamError{Field: "bb_std", Value: p.BBStd, Reason: "multiplier must be positive"}
	}
	if p.RSIBuyCeiling <= 0 || p.RSIBuyCeiling > 100 {
		return &ParamError{Field: "rsi_buy_k", Value: p.RSIBuyCeiling, Reason: "must be in (0, 100]"}
	}
	return nil
}

// Key returns a stable cache key fragment for p.
func (p Params) Key() string {
	var sb strings.Builder
	for _, b := range [...]bool{p.EnableSMA, p.EnableRSI, p.EnableMACD, p.EnableBB} {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	for _, n := range [...]int{p.SMAShort, p.SMALong, p.RSIPeriod, p.MACDFast, p.MACDSlow, p.MACDSignal, p.BBWindow} {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(n))
	}
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatFloat(p.RSIBuyCeiling, 'g', -1, 64))
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatFloat(p.BBStd, 'g', -1, 64))
	return sb.String()
}
