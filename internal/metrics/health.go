package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

type probe struct {
	name     string
	critical bool
	fn       Probe
}

// ProbeResult is the outcome of the latest check of one dependency.
type ProbeResult struct {
	OK        bool    `json:"ok"`
	Critical  bool    `json:"critical"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthStatus tracks dependency liveness. A failing critical probe makes the
// service unhealthy (503); a failing optional one only degrades it.
type HealthStatus struct {
	mu          sync.RWMutex
	probes      []probe
	results     map[string]ProbeResult
	lastCheckAt time.Time
	startedAt   time.Time
}

// NewHealthStatus returns an empty health tracker.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		results:   make(map[string]ProbeResult),
		startedAt: time.Now(),
	}
}

// AddProbe registers a dependency check. Register before Check/StartLivenessChecker.
func (h *HealthStatus) AddProbe(name string, critical bool, fn Probe) {
	h.mu.Lock()
	h.probes = append(h.probes, probe{name: name, critical: critical, fn: fn})
	h.mu.Unlock()
}

// Check runs every probe once and records the results.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	probes := append([]probe(nil), h.probes...)
	h.mu.RUnlock()

	results := make(map[string]ProbeResult, len(probes))
	for _, p := range probes {
		start := time.Now()
		err := p.fn(ctx)
		r := ProbeResult{
			OK:        err == nil,
			Critical:  p.critical,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
		if err != nil {
			r.Error = err.Error()
		}
		results[p.name] = r
	}

	h.mu.Lock()
	h.results = results
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker checks immediately, then every interval until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	run := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		h.Check(probeCtx)
		cancel()
	}
	run()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

// Report is the health payload.
type Report struct {
	Status       string                 `json:"status"` // healthy | degraded | unhealthy
	Uptime       string                 `json:"uptime"`
	LastCheckAt  string                 `json:"last_check_at"`
	Dependencies map[string]ProbeResult `json:"dependencies"`
	Failing      []string               `json:"failing,omitempty"`
}

// Snapshot summarizes the latest results.
func (h *HealthStatus) Snapshot() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rep := Report{
		Status:       "healthy",
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		LastCheckAt:  h.lastCheckAt.Format(time.RFC3339),
		Dependencies: make(map[string]ProbeResult, len(h.results)),
	}
	for name, r := range h.results {
		rep.Dependencies[name] = r
		if r.OK {
			continue
		}
		rep.Failing = append(rep.Failing, name)
		if r.Critical {
			rep.Status = "unhealthy"
		} else if rep.Status == "healthy" {
			rep.Status = "degraded"
		}
	}
	sort.Strings(rep.Failing)
	return rep
}

// HTTPCode maps a report status to a response code.
func (r Report) HTTPCode() int {
	if r.Status == "unhealthy" {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// ServeHTTP handles /healthz.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.HTTPCode())
	json.NewEncoder(w).Encode(rep)
}
