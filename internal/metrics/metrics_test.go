package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.BarsIngested.Add(3)
	if got := testutil.ToFloat64(b.BarsIngested); got != 0 {
		t.Errorf("registries must be independent, got %v", got)
	}
	if got := testutil.ToFloat64(a.BarsIngested); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestMetrics_BreakerState(t *testing.T) {
	m := NewMetrics()
	m.SetBreakerState(1)
	m.SetBreakerState(2)
	m.SetBreakerState(0)
	if got := testutil.ToFloat64(m.RedisCircuitBreakerTrips); got != 1 {
		t.Errorf("expected 1 trip, got %v", got)
	}
	if got := testutil.ToFloat64(m.RedisCircuitBreakerState); got != 0 {
		t.Errorf("expected closed, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveIndicator("rsi", 2*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `dashboard_indicator_compute_duration_seconds_count{family="rsi"} 1`) {
		t.Errorf("histogram not exposed:\n%s", body)
	}
}

func TestHealth_Statuses(t *testing.T) {
	down := errors.New("down")
	cases := []struct {
		name     string
		storeErr error
		cacheErr error
		want     string
		wantCode int
	}{
		{"all ok", nil, nil, "healthy", http.StatusOK},
		{"cache down", nil, down, "degraded", http.StatusOK},
		{"store down", down, nil, "unhealthy", http.StatusServiceUnavailable},
		{"both down", down, down, "unhealthy", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthStatus()
			h.AddProbe("store", true, func(context.Context) error { return tc.storeErr })
			h.AddProbe("redis", false, func(context.Context) error { return tc.cacheErr })
			h.Check(context.Background())

			rep := h.Snapshot()
			if rep.Status != tc.want {
				t.Errorf("status = %s, want %s", rep.Status, tc.want)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}

func TestHealth_FailingIncludesError(t *testing.T) {
	h := NewHealthStatus()
	h.AddProbe("redis", false, func(context.Context) error { return errors.New("connection refused") })
	h.Check(context.Background())

	rep := h.Snapshot()
	if len(rep.Failing) != 1 || rep.Failing[0] != "redis" {
		t.Fatalf("unexpected failing list %v", rep.Failing)
	}
	if rep.Dependencies["redis"].Error != "connection refused" {
		t.Errorf("error not recorded: %+v", rep.Dependencies["redis"])
	}
}
