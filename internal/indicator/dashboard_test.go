package indicator

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestCompute_AllFamilies(t *testing.T) {
	bars := wave(60)
	p := DefaultParams()

	var mu sync.Mutex
	seen := map[Family]bool{}
	d := Compute(bars, p, func(f Family, _ time.Duration) {
		mu.Lock()
		seen[f] = true
		mu.Unlock()
	})

	if d.Bars != 60 {
		t.Errorf("expected Bars=60, got %d", d.Bars)
	}
	if !reflect.DeepEqual(d.SMAShort, SMA(bars, 5)) || !reflect.DeepEqual(d.SMALong, SMA(bars, 20)) {
		t.Error("SMA series differ from direct computation")
	}
	if !reflect.DeepEqual(d.RSI, RSI(bars, 14)) {
		t.Error("RSI differs from direct computation")
	}
	if d.MACD == nil || !reflect.DeepEqual(*d.MACD, MACD(bars, 12, 26, 9)) {
		t.Error("MACD differs from direct computation")
	}
	if !reflect.DeepEqual(d.Bands, BollingerBands(bars, 20, 2)) {
		t.Error("Bollinger differs from direct computation")
	}
	for _, f := range []Family{FamilySMA, FamilyRSI, FamilyMACD, FamilyBB} {
		if !seen[f] {
			t.Errorf("observer not called for %s", f)
		}
	}
}

func TestCompute_DisabledFamiliesAreNil(t *testing.T) {
	p := DefaultParams()
	p.EnableRSI = false
	p.EnableMACD = false
	p.EnableBB = false

	d := Compute(wave(60), p, nil)
	if d.RSI != nil || d.MACD != nil || d.Bands != nil {
		t.Errorf("expected disabled families to be nil, got rsi=%v macd=%v bands=%v", d.RSI, d.MACD, d.Bands)
	}
	if len(d.SMAShort) == 0 {
		t.Error("expected SMA to be computed")
	}
}

func TestCompute_ShortHistoryIsEmptyNotNil(t *testing.T) {
	d := Compute(wave(3), DefaultParams(), nil)
	if d.SMALong == nil || len(d.SMALong) != 0 {
		t.Errorf("expected empty SMA long, got %#v", d.SMALong)
	}
	if d.RSI == nil || len(d.RSI) != 0 {
		t.Errorf("expected empty RSI, got %#v", d.RSI)
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Params)
		field string
	}{
		{"defaults", func(*Params) {}, ""},
		{"zero window", func(p *Params) { p.RSIPeriod = 0 }, "rsi_period"},
		{"negative window", func(p *Params) { p.BBWindow = -3 }, "bb_window"},
		{"short >= long", func(p *Params) { p.SMAShort = 20 }, "sma_short"},
		{"fast >= slow", func(p *Params) { p.MACDFast = 30 }, "macd_fast"},
		{"zero multiplier", func(p *Params) { p.BBStd = 0 }, "bb_std"},
		{"ceiling above 100", func(p *Params) { p.RSIBuyCeiling = 101 }, "rsi_buy_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mut(&p)
			err := p.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var pe *ParamError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParamError, got %v", err)
			}
			if pe.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, pe.Field)
			}
		})
	}
}

func TestParams_Key(t *testing.T) {
	a := DefaultParams()
	b := DefaultParams()
	if a.Key() != b.Key() {
		t.Fatal("equal params should produce equal keys")
	}
	b.BBStd = 2.5
	if a.Key() == b.Key() {
		t.Error("different multipliers should produce different keys")
	}
	b = DefaultParams()
	b.EnableMACD = false
	if a.Key() == b.Key() {
		t.Error("different enable flags should produce different keys")
	}
}
