package api

import (
	"net/url"
	"strconv"
	"strings"

	"quant-dashboard/internal/indicator"
)

// ParseParams overlays query parameters on defaults. Names follow the web
// client's URL state (enable_sma, sma_short, ..., bb_std). An "indicators"
// list such as "sma,rsi" enables exactly the listed families.
// The result is not validated.
func ParseParams(q url.Values, defaults indicator.Params) (indicator.Params, error) {
	p := defaults

	bools := []struct {
		name string
		dst  *bool
	}{
		{"enable_sma", &p.EnableSMA},
		{"enable_rsi", &p.EnableRSI},
		{"enable_macd", &p.EnableMACD},
		{"enable_bb", &p.EnableBB},
	}
	for _, b := range bools {
		if v := q.Get(b.name); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return p, &indicator.ParamError{Field: b.name, Value: v, Reason: "not a boolean"}
			}
			*b.dst = parsed
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"sma_short", &p.SMAShort},
		{"sma_long", &p.SMALong},
		{"rsi_period", &p.RSIPeriod},
		{"macd_fast", &p.MACDFast},
		{"macd_slow", &p.MACDSlow},
		{"macd_sig", &p.MACDSignal},
		{"bb_window", &p.BBWindow},
	}
	for _, n := range ints {
		if v := q.Get(n.name); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return p, &indicator.ParamError{Field: n.name, Value: v, Reason: "not an integer"}
			}
			*n.dst = parsed
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"rsi_buy_k", &p.RSIBuyCeiling},
		{"bb_std", &p.BBStd},
	}
	for _, f := range floats {
		if v := q.Get(f.name); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, &indicator.ParamError{Field: f.name, Value: v, Reason: "not a number"}
			}
			*f.dst = parsed
		}
	}

	if list := indicatorList(q); len(list) > 0 {
		p.EnableSMA, p.EnableRSI, p.EnableMACD, p.EnableBB = false, false, false, false
		for _, name := range list {
			switch name {
			case "sma":
				p.EnableSMA = true
			case "rsi":
				p.EnableRSI = true
			case "macd":
				p.EnableMACD = true
			case "bb", "bollinger":
				p.EnableBB = true
			default:
				return p, &indicator.ParamError{Field: "indicators", Value: name, Reason: "unknown indicator family"}
			}
		}
	}
	return p, nil
}

// indicatorList accepts both "indicators=sma,rsi" and repeated keys.
func indicatorList(q url.Values) []string {
	var out []string
	for _, v := range q["indicators"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
