package series

import (
	"errors"
	"math"
	"testing"

	"quant-dashboard/internal/model"
)

func bar(day string, close float64) model.PriceBar {
	return model.PriceBar{Time: day, Open: close, High: close, Low: close, Close: close, Volume: 1000}
}

func TestDayKey(t *testing.T) {
	cases := map[string]string{
		"2025-01-25":                "2025-01-25",
		"2025-01-25T00:00:00Z":      "2025-01-25",
		"2025-01-25T14:30:00+09:00": "2025-01-25",
		"2025-01-25 00:00:00":       "2025-01-25",
		"":                          "",
	}
	for in, want := range cases {
		if got := DayKey(in); got != want {
			t.Errorf("DayKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := []model.PriceBar{bar("2025-01-02T00:00:00Z", 10)}
	out := Normalize(in)

	if out[0].Time != "2025-01-02" {
		t.Errorf("expected trimmed key, got %q", out[0].Time)
	}
	if in[0].Time != "2025-01-02T00:00:00Z" {
		t.Errorf("input mutated: %q", in[0].Time)
	}
}

func TestDedupe_KeepsLast(t *testing.T) {
	in := []model.PriceBar{
		bar("2025-01-02", 10),
		bar("2025-01-03", 11),
		bar("2025-01-03", 12),
		bar("2025-01-06", 13),
	}
	out := Dedupe(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(out))
	}
	if out[1].Close != 12 {
		t.Errorf("expected later duplicate to win, got close=%.2f", out[1].Close)
	}
}

func TestClosesAndDateIndex(t *testing.T) {
	bars := []model.PriceBar{bar("2025-01-02", 10), bar("2025-01-03", 11)}
	closes := Closes(bars)
	if len(closes) != 2 || closes[1].Value != 11 || closes[1].Time != "2025-01-03" {
		t.Fatalf("unexpected closes: %+v", closes)
	}
	idx := DateIndex(closes)
	if v, ok := idx["2025-01-02"]; !ok || v != 10 {
		t.Errorf("expected 10 at 2025-01-02, got %v (ok=%v)", v, ok)
	}
	if _, ok := idx["2025-01-04"]; ok {
		t.Error("expected missing key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		bars    []model.PriceBar
		wantErr error
		wantIdx int
	}{
		{"ok", []model.PriceBar{bar("2025-01-02", 1), bar("2025-01-03", 2)}, nil, 0},
		{"empty", nil, nil, 0},
		{"duplicate", []model.PriceBar{bar("2025-01-02", 1), bar("2025-01-02", 2)}, ErrDuplicateDate, 1},
		{"unsorted", []model.PriceBar{bar("2025-01-03", 1), bar("2025-01-02", 2)}, ErrUnsorted, 1},
		{"nan", []model.PriceBar{bar("2025-01-02", 1), bar("2025-01-03", math.NaN())}, ErrNonFinite, 1},
		{"negative", []model.PriceBar{bar("2025-01-02", -1)}, ErrNonFinite, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.bars)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Index != tt.wantIdx {
				t.Errorf("expected index %d, got %+v", tt.wantIdx, ve)
			}
		})
	}
}
