// Package strategy turns price bars into discrete buy/sell markers.
//
// A Detector scans a complete bar sequence and returns markers ordered by
// time. The Engine runs every registered detector and merges their output
// into one ascending sequence.
package strategy

import (
	"sort"

	"quant-dashboard/internal/model"
)

// Detector is the interface that all signal detectors implement.
type Detector interface {
	// Name returns the unique name of the detector.
	Name() string

	// Detect scans bars and returns markers ascending by time.
	Detect(bars []model.PriceBar) []model.SignalMarker
}

// Engine runs registered detectors over the same bars.
type Engine struct {
	detectors []Detector
}

// NewEngine creates a strategy engine with the given detectors.
func NewEngine(detectors ...Detector) *Engine {
	return &Engine{detectors: detectors}
}

// Register adds a detector to the engine.
func (e *Engine) Register(d Detector) {
	e.detectors = append(e.detectors, d)
}

// Detectors returns the registered detector names.
func (e *Engine) Detectors() []string {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// Run executes every detector and returns the merged markers.
func (e *Engine) Run(bars []model.PriceBar) []model.SignalMarker {
	sets := make([][]model.SignalMarker, 0, len(e.detectors))
	for _, d := range e.detectors {
		sets = append(sets, d.Detect(bars))
	}
	return Merge(sets...)
}

// Merge concatenates marker sets and re-sorts them ascending by time.
// The sort is stable, so markers on the same day keep detector order.
func Merge(sets ...[]model.SignalMarker) []model.SignalMarker {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make([]model.SignalMarker, 0, n)
	for _, s := range sets {
		out = append(out, s...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
