// Package scheduler refreshes the watchlist on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher ingests fresh bars for one symbol.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context, symbol string) error

// Refresh calls f.
func (f RefreshFunc) Refresh(ctx context.Context, symbol string) error { return f(ctx, symbol) }

// TradingCalendar decides whether a scheduled run has a session to collect.
type TradingCalendar interface {
	IsTradingDay(t time.Time) bool
	Location() *time.Location
}

// Scheduler runs refresh jobs.
type Scheduler struct {
	Cron      *cron.Cron
	refresher Refresher
	calendar  TradingCalendar
	symbols   func(ctx context.Context) []string
	timeout   time.Duration
	ctx       context.Context
	now       func() time.Time

	mu      sync.Mutex
	lastRun RunReport
}

// RunReport summarizes one pass over the watchlist.
type RunReport struct {
	Started   time.Time         `json:"started"`
	Duration  time.Duration     `json:"duration"`
	Refreshed int               `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
	Skipped   bool              `json:"skipped"`
}

// New creates a scheduler. symbols is evaluated on every run so additions to
// the store are picked up.
func New(ctx context.Context, r Refresher, cal TradingCalendar, symbols func(ctx context.Context) []string) *Scheduler {
	loc := time.UTC
	if cal != nil && cal.Location() != nil {
		loc = cal.Location()
	}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		refresher: r,
		calendar:  cal,
		symbols:   symbols,
		timeout:   2 * time.Minute,
		ctx:       ctx,
		now:       time.Now,
	}
}

// Register adds the watchlist refresh on spec (six-field, with seconds).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.scheduledRun); err != nil {
		return fmt.Errorf("register refresh task %q: %w", spec, err)
	}
	log.Printf("[scheduler] refresh registered: %s", spec)
	return nil
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the cron loop and waits for a running job.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// RunNow refreshes every symbol immediately, ignoring the calendar.
func (s *Scheduler) RunNow() RunReport {
	return s.run(true)
}

// LastRun returns the report of the most recent pass.
func (s *Scheduler) LastRun() RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Scheduler) scheduledRun() { s.run(false) }

func (s *Scheduler) run(force bool) RunReport {
	start := s.now()
	rep := RunReport{Started: start, Failed: map[string]string{}}

	if !force && s.calendar != nil && !s.calendar.IsTradingDay(start) {
		log.Printf("[scheduler] %s is not a trading day, skipping", start.Format("2006-01-02"))
		rep.Skipped = true
		s.record(rep)
		return rep
	}

	for _, sym := range s.symbols(s.ctx) {
		if s.ctx.Err() != nil {
			break
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		err := s.refresher.Refresh(ctx, sym)
		cancel()
		if err != nil {
			log.Printf("[scheduler] refresh %s failed: %v", sym, err)
			rep.Failed[sym] = err.Error()
			continue
		}
		rep.Refreshed++
	}

	rep.Duration = time.Since(start)
	log.Printf("[scheduler] refreshed %d symbols (%d failed) in %v", rep.Refreshed, len(rep.Failed), rep.Duration)
	s.record(rep)
	return rep
}

func (s *Scheduler) record(rep RunReport) {
	s.mu.Lock()
	s.lastRun = rep
	s.mu.Unlock()
}
