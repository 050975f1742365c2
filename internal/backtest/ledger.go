package backtest

import "quant-dashboard/internal/model"

// Trade is one completed or still-open long round trip.
type Trade struct {
	EntryTime  string  `json:"entry_time"`
	EntryPrice float64 `json:"entry_price"`
	ExitTime   string  `json:"exit_time,omitempty"`
	ExitPrice  float64 `json:"exit_price,omitempty"`
	ReturnPct  float64 `json:"return_pct"`
	Open       bool    `json:"open"`
}

// Ledger tracks round trips for a single long-only position.
type Ledger struct {
	trades []Trade
	open   *Trade
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{trades: make([]Trade, 0, 32)}
}

// Enter opens a position at bar b's close. No-op when already long.
func (l *Ledger) Enter(b model.PriceBar) {
	if l.open != nil {
		return
	}
	l.open = &Trade{EntryTime: b.Time, EntryPrice: b.Close, Open: true}
}

// Exit closes the position at bar b's close and returns the realized return
// in percent. Returns 0 when flat.
func (l *Ledger) Exit(b model.PriceBar) float64 {
	if l.open == nil {
		return 0
	}
	t := *l.open
	t.ExitTime = b.Time
	t.ExitPrice = b.Close
	t.ReturnPct = pctChange(t.EntryPrice, t.ExitPrice)
	t.Open = false
	l.trades = append(l.trades, t)
	l.open = nil
	return t.ReturnPct
}

// Long reports whether a position is open.
func (l *Ledger) Long() bool { return l.open != nil }

// Trades returns a snapshot of all trades. An open position is marked to
// last and appended with Open=true.
func (l *Ledger) Trades(last model.PriceBar) []Trade {
	out := make([]Trade, len(l.trades), len(l.trades)+1)
	copy(out, l.trades)
	if l.open != nil {
		t := *l.open
		t.ReturnPct = pctChange(t.EntryPrice, last.Close)
		out = append(out, t)
	}
	return out
}

// LedgerSummary aggregates trade statistics.
type LedgerSummary struct {
	TotalTrades  int     `json:"total_trades"`
	ClosedTrades int     `json:"closed_trades"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"` // percent of closed trades
}

// Summary returns trade statistics; the open position counts toward
// TotalTrades only.
func (l *Ledger) Summary() LedgerSummary {
	s := LedgerSummary{ClosedTrades: len(l.trades), TotalTrades: len(l.trades)}
	if l.open != nil {
		s.TotalTrades++
	}
	for _, t := range l.trades {
		if t.ReturnPct > 0 {
			s.Wins++
		}
	}
	if s.ClosedTrades > 0 {
		s.WinRate = round(float64(s.Wins)/float64(s.ClosedTrades)*100, 2)
	}
	return s
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to/from - 1) * 100
}
