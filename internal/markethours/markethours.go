// Package markethours answers "was the exchange open on this day" using the
// scmhub/calendar holiday tables, with a Mon–Fri fallback when a calendar is
// unavailable.
package markethours

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/scmhub/calendar"

	"quant-dashboard/internal/model"
)

// DefaultMIC is the New York Stock Exchange.
const DefaultMIC = "xnys"

// Calendar is one exchange's trading calendar.
type Calendar struct {
	MIC      string
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool
}

// New loads the calendar for mic, falling back to NYSE and then to a plain
// weekday calendar in New York time.
func New(mic string) *Calendar {
	mic = strings.ToLower(strings.TrimSpace(mic))
	if mic == "" {
		mic = DefaultMIC
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil && mic != DefaultMIC {
		log.Printf("[markethours] no calendar for %q, using %s", mic, DefaultMIC)
		mic = DefaultMIC
		cal = calendar.GetCalendar(mic)
	}
	if cal == nil {
		log.Printf("[markethours] no calendar for %s, using Mon-Fri fallback", mic)
		return weekdayCalendar(mic)
	}
	return &Calendar{MIC: mic, cal: cal, loc: cal.Loc}
}

func weekdayCalendar(mic string) *Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Calendar{MIC: mic, loc: loc, fallback: true}
}

// Location is the exchange's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsWeekday reports whether t is Mon–Fri in exchange time.
func (c *Calendar) IsWeekday(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay reports whether the exchange has a session on t's local date.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if c.fallback {
		return c.IsWeekday(t)
	}
	return c.cal.IsBusinessDay(t)
}

// LastSession returns the most recent trading day on or before t, at local
// midnight. Looks back at most two weeks.
func (c *Calendar) LastSession(t time.Time) time.Time {
	local := t.In(c.loc)
	d := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i < 14; i++ {
		if c.IsTradingDay(d) {
			return d
		}
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastSessionKey is LastSession formatted as a bar day key.
func (c *Calendar) LastSessionKey(t time.Time) string {
	return c.LastSession(t).Format(model.DayLayout)
}

// suffixMIC maps Yahoo ticker suffixes to exchange MICs.
var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".MI": "xmil",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
	".KS": "xkrx",
	".KQ": "xkrx",
}

// MICForSymbol guesses a symbol's exchange from its Yahoo suffix; unsuffixed
// tickers map to fallback.
func MICForSymbol(symbol, fallback string) string {
	if i := strings.LastIndexByte(symbol, '.'); i > 0 {
		if mic, ok := suffixMIC[strings.ToUpper(symbol[i:])]; ok {
			return mic
		}
	}
	return fallback
}

// Registry hands out one Calendar per exchange, choosing the exchange from
// the symbol's suffix.
type Registry struct {
	fallback string

	mu   sync.Mutex
	cals map[string]*Calendar
}

// NewRegistry returns a registry whose unsuffixed symbols trade on fallbackMIC.
func NewRegistry(fallbackMIC string) *Registry {
	if fallbackMIC == "" {
		fallbackMIC = DefaultMIC
	}
	return &Registry{fallback: strings.ToLower(fallbackMIC), cals: make(map[string]*Calendar)}
}

// For returns the calendar of symbol's exchange.
func (r *Registry) For(symbol string) *Calendar {
	mic := MICForSymbol(symbol, r.fallback)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cals[mic]
	if !ok {
		c = New(mic)
		r.cals[mic] = c
	}
	return c
}

// LastSessionKey is For(symbol).LastSessionKey(t).
func (r *Registry) LastSessionKey(symbol string, t time.Time) string {
	return r.For(symbol).LastSessionKey(t)
}
